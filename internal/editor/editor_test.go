package editor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/trattoria/internal/composer"
	"github.com/conneroisu/trattoria/internal/content"
	siteerrors "github.com/conneroisu/trattoria/internal/errors"
	"github.com/conneroisu/trattoria/internal/pubsub"
	"github.com/conneroisu/trattoria/internal/renderer"
	"github.com/conneroisu/trattoria/internal/storage"
	"github.com/conneroisu/trattoria/internal/testutils"
)

type recorder struct {
	mu     sync.Mutex
	events []pubsub.PageContentChange
}

func (r *recorder) Publish(eventType string, data interface{}) {
	if eventType != pubsub.TypePageContent {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data.(pubsub.PageContentChange))
}

func (r *recorder) all() []pubsub.PageContentChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pubsub.PageContentChange(nil), r.events...)
}

// blockingRepo holds UpdateSection for one section until released.
type blockingRepo struct {
	content.Repository
	blocked string
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRepo) UpdateSection(ctx context.Context, id string, upd content.SectionUpdate) (*content.Section, error) {
	if id == b.blocked {
		b.entered <- struct{}{}
		<-b.release
	}
	return b.Repository.UpdateSection(ctx, id, upd)
}

func setup(t *testing.T, repo content.Repository, specs ...testutils.SectionSpec) (*Editor, *recorder, *content.Page, []content.Section) {
	t.Helper()
	page, sections := testutils.SeedPage(t, repo, "home", specs...)
	rec := &recorder{}
	return New(repo, rec, nil), rec, page, sections
}

func TestSave_RoundTrip(t *testing.T) {
	repo := storage.NewMemoryStore()
	ed, rec, page, sections := setup(t, repo, testutils.SectionSpec{
		Type: content.TypeHero, SortOrder: 1, Content: content.Document{"title": "Old"},
	})
	ctx := context.Background()
	id := sections[0].ID

	snap, err := ed.BeginEdit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Old", snap.Draft["title"])
	assert.False(t, snap.Dirty)

	snap, err = ed.UpdateDraft(id, `{"title": "Benvenuti", "subtitle": "Since 1962"}`)
	require.NoError(t, err)
	assert.True(t, snap.Dirty)

	snap, err = ed.Save(ctx, id)
	require.NoError(t, err)
	assert.False(t, snap.Dirty)
	assert.False(t, snap.IsSaving)
	assert.Empty(t, snap.LastError)

	fresh, err := repo.ListSections(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.True(t, fresh[0].Content.Equal(content.Document{"title": "Benvenuti", "subtitle": "Since 1962"}))
	assert.True(t, fresh[0].IsVisible)
	assert.Equal(t, 1, fresh[0].SortOrder)

	assert.Equal(t, []pubsub.PageContentChange{{PageID: page.ID, SectionID: id, Action: ActionUpdate}}, rec.all())
}

func TestSave_FailurePreservesDraft(t *testing.T) {
	faulty := testutils.NewFaultyRepository(storage.NewMemoryStore())
	ed, rec, _, sections := setup(t, faulty, testutils.SectionSpec{
		Type: content.TypeCTA, Content: content.Document{"heading": "Committed"},
	})
	ctx := context.Background()
	id := sections[0].ID

	_, err := ed.BeginEdit(ctx, id)
	require.NoError(t, err)
	_, err = ed.UpdateDraft(id, "heading: Draft X")
	require.NoError(t, err)

	faulty.Injector.InjectErrorOnce(testutils.OpUpdateSection, testutils.ErrRejected)
	snap, err := ed.Save(ctx, id)

	require.Error(t, err)
	assert.True(t, siteerrors.IsSaveFailed(err))
	assert.ErrorIs(t, err, testutils.ErrRejected)
	assert.Equal(t, "Draft X", snap.Draft["heading"])
	assert.Equal(t, "Committed", snap.Committed["heading"])
	assert.NotEmpty(t, snap.LastError)
	assert.False(t, snap.IsSaving)
	assert.Empty(t, rec.all(), "failed saves publish nothing")

	stored, err := faulty.GetSection(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Committed", stored.Content["heading"])

	snap, err = ed.Save(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Draft X", snap.Committed["heading"])
	assert.Empty(t, snap.LastError)
}

func TestUpdateDraft_MalformedIsRejected(t *testing.T) {
	faulty := testutils.NewFaultyRepository(storage.NewMemoryStore())
	ed, _, _, sections := setup(t, faulty, testutils.SectionSpec{
		Type: content.TypeHero, Content: content.Document{"title": "Keep"},
	})
	id := sections[0].ID

	_, err := ed.BeginEdit(context.Background(), id)
	require.NoError(t, err)

	for _, raw := range []string{"", "[1, 2, 3]", "just a string", `{"title": "unterminated`} {
		_, err := ed.UpdateDraft(id, raw)
		assert.True(t, siteerrors.IsMalformedEdit(err), "input %q", raw)
	}

	snap, err := ed.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, "Keep", snap.Draft["title"])
	assert.False(t, snap.Dirty)
	assert.Zero(t, faulty.Calls(testutils.OpUpdateSection))
}

func TestSave_SecondSaveWhileInFlightIsRejected(t *testing.T) {
	mem := storage.NewMemoryStore()
	_, sections := testutils.SeedPage(t, mem, "home", testutils.SectionSpec{Type: content.TypeHero})
	id := sections[0].ID
	repo := &blockingRepo{Repository: mem, blocked: id, entered: make(chan struct{}, 1), release: make(chan struct{})}
	ed := New(repo, nil, nil)
	ctx := context.Background()

	_, err := ed.BeginEdit(ctx, id)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ed.Save(ctx, id)
		done <- err
	}()
	<-repo.entered

	snap, err := ed.Snapshot(id)
	require.NoError(t, err)
	assert.True(t, snap.IsSaving)

	_, err = ed.Save(ctx, id)
	assert.ErrorIs(t, err, siteerrors.ErrSaveInProgress)
	_, err = ed.ToggleVisibility(ctx, id, false)
	assert.ErrorIs(t, err, siteerrors.ErrSaveInProgress)

	close(repo.release)
	require.NoError(t, <-done)
}

func TestSave_SectionsAreIndependent(t *testing.T) {
	mem := storage.NewMemoryStore()
	_, sections := testutils.SeedPage(t, mem, "home",
		testutils.SectionSpec{Type: content.TypeHero, SortOrder: 1},
		testutils.SectionSpec{Type: content.TypeCTA, SortOrder: 2},
	)
	s1, s2 := sections[0].ID, sections[1].ID
	repo := &blockingRepo{Repository: mem, blocked: s1, entered: make(chan struct{}, 1), release: make(chan struct{})}
	ed := New(repo, nil, nil)
	ctx := context.Background()

	for _, id := range []string{s1, s2} {
		_, err := ed.BeginEdit(ctx, id)
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := ed.Save(ctx, s1)
		done <- err
	}()
	<-repo.entered

	finished := make(chan error, 1)
	go func() {
		if _, err := ed.UpdateDraft(s2, "heading: Book tonight"); err != nil {
			finished <- err
			return
		}
		_, err := ed.Save(ctx, s2)
		finished <- err
	}()

	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("saving S2 waited on the in-flight save of S1")
	}

	close(repo.release)
	require.NoError(t, <-done)
}

func TestSave_DraftEditedDuringSaveStaysDirty(t *testing.T) {
	mem := storage.NewMemoryStore()
	_, sections := testutils.SeedPage(t, mem, "home", testutils.SectionSpec{Type: content.TypeHero})
	id := sections[0].ID
	repo := &blockingRepo{Repository: mem, blocked: id, entered: make(chan struct{}, 1), release: make(chan struct{})}
	ed := New(repo, nil, nil)
	ctx := context.Background()

	_, err := ed.BeginEdit(ctx, id)
	require.NoError(t, err)
	_, err = ed.UpdateDraft(id, "title: first")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ed.Save(ctx, id)
		done <- err
	}()
	<-repo.entered

	_, err = ed.UpdateDraft(id, "title: second")
	require.NoError(t, err)
	close(repo.release)
	require.NoError(t, <-done)

	snap, err := ed.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, "first", snap.Committed["title"])
	assert.Equal(t, "second", snap.Draft["title"])
	assert.True(t, snap.Dirty)
}

func TestToggleVisibility_WritesCommittedNotDraft(t *testing.T) {
	repo := storage.NewMemoryStore()
	ed, rec, page, sections := setup(t, repo, testutils.SectionSpec{
		Type: content.TypeCTA, Content: content.Document{"heading": "Live"},
	})
	ctx := context.Background()
	id := sections[0].ID

	_, err := ed.BeginEdit(ctx, id)
	require.NoError(t, err)
	_, err = ed.UpdateDraft(id, "heading: Half finished")
	require.NoError(t, err)

	snap, err := ed.ToggleVisibility(ctx, id, false)
	require.NoError(t, err)
	assert.False(t, snap.IsVisible)
	assert.Equal(t, "Half finished", snap.Draft["heading"])

	stored, err := repo.GetSection(ctx, id)
	require.NoError(t, err)
	assert.False(t, stored.IsVisible)
	assert.Equal(t, "Live", stored.Content["heading"])

	assert.Equal(t, []pubsub.PageContentChange{{PageID: page.ID, SectionID: id, Action: ActionVisibility}}, rec.all())
}

func TestToggleVisibility_WithoutSession(t *testing.T) {
	repo := storage.NewMemoryStore()
	ed, _, _, sections := setup(t, repo, testutils.SectionSpec{Type: content.TypeHero})

	_, err := ed.ToggleVisibility(context.Background(), sections[0].ID, false)
	require.NoError(t, err)

	_, err = ed.ToggleVisibility(context.Background(), "missing", false)
	assert.True(t, siteerrors.IsNotFound(err))
}

func TestExampleScenario_HeroAndHiddenCTA(t *testing.T) {
	repo := storage.NewMemoryStore()
	ed, _, _, sections := setup(t, repo,
		testutils.SectionSpec{Type: content.TypeHero, SortOrder: 1},
		testutils.SectionSpec{Type: content.TypeCTA, SortOrder: 2, Hidden: true},
	)
	comp := composer.New(repo, renderer.NewRegistry(), testutils.TestTenant)
	ctx := context.Background()

	first, err := comp.Compose(ctx, "home")
	require.NoError(t, err)
	require.Len(t, first.Blocks, 1)
	assert.Equal(t, content.TypeHero, first.Blocks[0].Type)

	_, err = ed.ToggleVisibility(ctx, sections[1].ID, true)
	require.NoError(t, err)

	second, err := comp.Compose(ctx, "home")
	require.NoError(t, err)
	require.Len(t, second.Blocks, 2)
	assert.Equal(t, content.TypeHero, second.Blocks[0].Type)
	assert.Equal(t, content.TypeCTA, second.Blocks[1].Type)
}

func orderOf(t *testing.T, repo content.Repository, pageID string) []string {
	t.Helper()
	sections, err := repo.ListSections(context.Background(), pageID)
	require.NoError(t, err)
	var ids []string
	for _, s := range composer.Order(sections) {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestMove_SwapsWithNeighbour(t *testing.T) {
	repo := storage.NewMemoryStore()
	ed, rec, page, s := setup(t, repo,
		testutils.SectionSpec{Type: content.TypeHero, SortOrder: 10},
		testutils.SectionSpec{Type: content.TypeGallery, SortOrder: 20},
		testutils.SectionSpec{Type: content.TypeCTA, SortOrder: 30},
	)
	ctx := context.Background()

	require.NoError(t, ed.MoveUp(ctx, s[2].ID))
	assert.Equal(t, []string{s[0].ID, s[2].ID, s[1].ID}, orderOf(t, repo, page.ID))

	require.NoError(t, ed.MoveDown(ctx, s[0].ID))
	assert.Equal(t, []string{s[2].ID, s[0].ID, s[1].ID}, orderOf(t, repo, page.ID))

	for _, ev := range rec.all() {
		assert.Equal(t, ActionReorder, ev.Action)
	}
	assert.Len(t, rec.all(), 4)
}

func TestMove_EqualOrdersRenumber(t *testing.T) {
	repo := storage.NewMemoryStore()
	ed, _, page, s := setup(t, repo,
		testutils.SectionSpec{Type: content.TypeHero, SortOrder: 0},
		testutils.SectionSpec{Type: content.TypeGallery, SortOrder: 0},
		testutils.SectionSpec{Type: content.TypeCTA, SortOrder: 0},
	)

	require.NoError(t, ed.MoveDown(context.Background(), s[0].ID))
	assert.Equal(t, []string{s[1].ID, s[0].ID, s[2].ID}, orderOf(t, repo, page.ID))
}

func TestMove_AtEdgeIsNoop(t *testing.T) {
	faulty := testutils.NewFaultyRepository(storage.NewMemoryStore())
	ed, _, _, s := setup(t, faulty,
		testutils.SectionSpec{Type: content.TypeHero, SortOrder: 1},
		testutils.SectionSpec{Type: content.TypeCTA, SortOrder: 2},
	)

	require.NoError(t, ed.MoveUp(context.Background(), s[0].ID))
	require.NoError(t, ed.MoveDown(context.Background(), s[1].ID))
	assert.Zero(t, faulty.Calls(testutils.OpUpdateSection))
}

func sortOrders(t *testing.T, repo content.Repository, ids ...string) []int {
	t.Helper()
	orders := make([]int, len(ids))
	for i, id := range ids {
		s, err := repo.GetSection(context.Background(), id)
		require.NoError(t, err)
		orders[i] = s.SortOrder
	}
	return orders
}

func TestMove_FailedSwapRestoresFirstWrite(t *testing.T) {
	faulty := testutils.NewFaultyRepository(storage.NewMemoryStore())
	ed, _, _, s := setup(t, faulty,
		testutils.SectionSpec{Type: content.TypeHero, SortOrder: 1},
		testutils.SectionSpec{Type: content.TypeCTA, SortOrder: 2},
	)
	faulty.Injector.InjectErrorOnce(testutils.OpUpdateSection, testutils.ErrRejected).AfterCalls(1)

	err := ed.MoveDown(context.Background(), s[0].ID)
	assert.True(t, siteerrors.IsSaveFailed(err))
	assert.Equal(t, []int{1, 2}, sortOrders(t, faulty, s[0].ID, s[1].ID))
	assert.Equal(t, 3, faulty.Calls(testutils.OpUpdateSection))
}

func TestMove_FailedRenumberRestoresEarlierWrites(t *testing.T) {
	faulty := testutils.NewFaultyRepository(storage.NewMemoryStore())
	ed, _, page, s := setup(t, faulty,
		testutils.SectionSpec{Type: content.TypeHero, SortOrder: 0},
		testutils.SectionSpec{Type: content.TypeGallery, SortOrder: 0},
		testutils.SectionSpec{Type: content.TypeCTA, SortOrder: 0},
	)
	faulty.Injector.InjectErrorOnce(testutils.OpUpdateSection, testutils.ErrRejected).AfterCalls(1)

	err := ed.MoveDown(context.Background(), s[0].ID)
	assert.True(t, siteerrors.IsSaveFailed(err))
	assert.Equal(t, []int{0, 0, 0}, sortOrders(t, faulty, s[0].ID, s[1].ID, s[2].ID))
	assert.Equal(t, []string{s[0].ID, s[1].ID, s[2].ID}, orderOf(t, faulty, page.ID))
}

func TestImplicitSessionsCloseAfterWrite(t *testing.T) {
	repo := storage.NewMemoryStore()
	ed, _, _, s := setup(t, repo,
		testutils.SectionSpec{Type: content.TypeHero, SortOrder: 1},
		testutils.SectionSpec{Type: content.TypeGallery, SortOrder: 2},
		testutils.SectionSpec{Type: content.TypeCTA, SortOrder: 3},
	)
	ctx := context.Background()

	_, err := ed.BeginEdit(ctx, s[1].ID)
	require.NoError(t, err)

	require.NoError(t, ed.MoveUp(ctx, s[1].ID))
	require.NoError(t, ed.MoveUp(ctx, s[2].ID))
	_, err = ed.ToggleVisibility(ctx, s[2].ID, false)
	require.NoError(t, err)
	_, err = ed.SetSortOrder(ctx, s[0].ID, 7)
	require.NoError(t, err)

	sessions := ed.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, s[1].ID, sessions[0].SectionID)
	assert.Equal(t, 1, sessions[0].SortOrder)
}

func TestSetSortOrder_KeepsDraft(t *testing.T) {
	repo := storage.NewMemoryStore()
	ed, _, _, s := setup(t, repo, testutils.SectionSpec{Type: content.TypeHero, SortOrder: 1})
	ctx := context.Background()

	_, err := ed.BeginEdit(ctx, s[0].ID)
	require.NoError(t, err)
	_, err = ed.UpdateDraft(s[0].ID, "title: pending")
	require.NoError(t, err)

	snap, err := ed.SetSortOrder(ctx, s[0].ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.SortOrder)
	assert.True(t, snap.Dirty)

	snap, err = ed.Save(ctx, s[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.SortOrder, "a later content save keeps the new order")
}

func TestCreateAndDeleteSection(t *testing.T) {
	repo := storage.NewMemoryStore()
	ed, rec, page, _ := setup(t, repo)
	ctx := context.Background()

	section, err := ed.CreateSection(ctx, content.SectionInput{PageID: page.ID, Type: content.TypeGallery, IsVisible: true})
	require.NoError(t, err)
	assert.NotNil(t, section.Content)

	_, err = ed.BeginEdit(ctx, section.ID)
	require.NoError(t, err)
	require.NoError(t, ed.DeleteSection(ctx, section.ID))

	_, err = ed.Snapshot(section.ID)
	assert.ErrorIs(t, err, siteerrors.ErrNoSession)

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, ActionCreate, events[0].Action)
	assert.Equal(t, ActionDelete, events[1].Action)

	_, err = ed.CreateSection(ctx, content.SectionInput{PageID: "missing", Type: content.TypeCTA})
	assert.True(t, siteerrors.IsNotFound(err))
}

func TestCreateSection_BackendFailureIsSaveFailed(t *testing.T) {
	faulty := testutils.NewFaultyRepository(storage.NewMemoryStore())
	ed, _, page, _ := setup(t, faulty)
	faulty.Injector.InjectErrorOnce(testutils.OpCreateSection, testutils.ErrConnectionLost)

	_, err := ed.CreateSection(context.Background(), content.SectionInput{PageID: page.ID, Type: content.TypeCTA})
	assert.True(t, siteerrors.IsSaveFailed(err))
}

func TestBeginEdit_KeepsDirtyDraft(t *testing.T) {
	repo := storage.NewMemoryStore()
	ed, _, _, s := setup(t, repo, testutils.SectionSpec{Type: content.TypeHero})
	ctx := context.Background()

	_, err := ed.BeginEdit(ctx, s[0].ID)
	require.NoError(t, err)
	_, err = ed.UpdateDraft(s[0].ID, "title: unsaved")
	require.NoError(t, err)

	snap, err := ed.BeginEdit(ctx, s[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "unsaved", snap.Draft["title"])

	ed.Discard(s[0].ID)
	snap, err = ed.BeginEdit(ctx, s[0].ID)
	require.NoError(t, err)
	assert.Nil(t, snap.Draft["title"])
	assert.Len(t, ed.Sessions(), 1)
}

func TestOperationsWithoutSession(t *testing.T) {
	ed := New(storage.NewMemoryStore(), nil, nil)

	_, err := ed.UpdateDraft("nope", "title: x")
	assert.ErrorIs(t, err, siteerrors.ErrNoSession)

	_, err = ed.Save(context.Background(), "nope")
	assert.ErrorIs(t, err, siteerrors.ErrNoSession)

	_, err = ed.BeginEdit(context.Background(), "nope")
	assert.True(t, siteerrors.IsNotFound(err))
}

func TestBeginEdit_UnavailableRepository(t *testing.T) {
	faulty := testutils.NewFaultyRepository(storage.NewMemoryStore())
	ed, _, _, s := setup(t, faulty, testutils.SectionSpec{Type: content.TypeHero})
	faulty.Injector.InjectErrorOnce(testutils.OpGetSection, testutils.ErrConnectionLost)

	_, err := ed.BeginEdit(context.Background(), s[0].ID)
	assert.True(t, siteerrors.IsUnavailable(err))
}
