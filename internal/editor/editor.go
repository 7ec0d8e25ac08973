// Package editor is the admin edit pipeline: per-section edit sessions with
// explicit saves.
//
// Each open section holds a draft and the last committed content. Drafts
// change only through UpdateDraft and are never written implicitly. Every
// write (content, visibility, order) goes through one save path guarded by a
// per-section in-flight flag, so a second write to the same section while
// one is pending is rejected with ErrSaveInProgress. Writes to different
// sections never wait on each other. A failed write keeps the draft and
// records the error on the session. Concurrent writes by different operators
// resolve last-write-wins in the repository.
package editor

import (
	"cmp"
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/trattoria/internal/content"
	siteerrors "github.com/conneroisu/trattoria/internal/errors"
	"github.com/conneroisu/trattoria/internal/logging"
	"github.com/conneroisu/trattoria/internal/metrics"
	"github.com/conneroisu/trattoria/internal/pubsub"
)

// Actions carried in page-content events.
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionVisibility = "visibility"
	ActionReorder    = "reorder"
	ActionDelete     = "delete"
)

// Snapshot is a read-only view of one edit session.
type Snapshot struct {
	SectionID string           `json:"sectionId"`
	PageID    string           `json:"pageId"`
	Type      string           `json:"type"`
	Draft     content.Document `json:"draft"`
	Committed content.Document `json:"committed"`
	IsVisible bool             `json:"isVisible"`
	SortOrder int              `json:"sortOrder"`
	IsSaving  bool             `json:"isSaving"`
	Dirty     bool             `json:"dirty"`
	LastError string           `json:"lastError,omitempty"`
	SavedAt   time.Time        `json:"savedAt,omitempty"`
}

type session struct {
	sectionID   string
	pageID      string
	sectionType string
	draft       content.Document
	committed   content.Document
	isVisible   bool
	sortOrder   int
	isSaving    bool
	lastError   error
	savedAt     time.Time
	// implicit sessions were opened by a toggle or reorder, not by the
	// operator, and close once their write finishes.
	implicit bool
}

func newSession(s *content.Section) *session {
	return &session{
		sectionID:   s.ID,
		pageID:      s.PageID,
		sectionType: s.Type,
		draft:       s.Content.Clone(),
		committed:   s.Content.Clone(),
		isVisible:   s.IsVisible,
		sortOrder:   s.SortOrder,
	}
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		SectionID: s.sectionID,
		PageID:    s.pageID,
		Type:      s.sectionType,
		Draft:     s.draft.Clone(),
		Committed: s.committed.Clone(),
		IsVisible: s.isVisible,
		SortOrder: s.sortOrder,
		IsSaving:  s.isSaving,
		Dirty:     !s.draft.Equal(s.committed),
		SavedAt:   s.savedAt,
	}
	if s.lastError != nil {
		snap.LastError = s.lastError.Error()
	}
	return snap
}

// Editor owns the open edit sessions.
type Editor struct {
	repo      content.Repository
	publisher pubsub.Publisher
	logger    logging.Logger
	sessions  map[string]*session
	mutex     sync.Mutex
}

// New creates an editor writing to repo and announcing changes on publisher.
func New(repo content.Repository, publisher pubsub.Publisher, logger logging.Logger) *Editor {
	if publisher == nil {
		publisher = pubsub.Nop{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Editor{
		repo:      repo,
		publisher: publisher,
		logger:    logger.WithComponent("editor"),
		sessions:  make(map[string]*session),
	}
}

// BeginEdit opens a session for a section, seeding the draft from the
// persisted content. Re-opening a session that has unsaved changes keeps
// the draft.
func (e *Editor) BeginEdit(ctx context.Context, sectionID string) (Snapshot, error) {
	section, err := e.repo.GetSection(ctx, sectionID)
	if err != nil {
		return Snapshot{}, readError("get section", err)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if s, ok := e.sessions[sectionID]; ok && (s.isSaving || !s.draft.Equal(s.committed)) {
		s.implicit = false
		return s.snapshot(), nil
	}
	s := newSession(section)
	e.sessions[sectionID] = s
	return s.snapshot(), nil
}

// UpdateDraft replaces the draft with operator text. The text must parse to
// a structured document; otherwise the draft is left untouched and a
// MalformedEdit error is returned.
func (e *Editor) UpdateDraft(sectionID, raw string) (Snapshot, error) {
	doc, err := content.ParseDocument(raw)
	if err != nil {
		return Snapshot{}, siteerrors.NewMalformedEditError("content is not a structured document", err)
	}
	return e.UpdateDraftDocument(sectionID, doc)
}

// UpdateDraftDocument replaces the draft with an already structured document.
func (e *Editor) UpdateDraftDocument(sectionID string, doc content.Document) (Snapshot, error) {
	if doc == nil {
		return Snapshot{}, siteerrors.NewMalformedEditError("content is required", nil)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	s, ok := e.sessions[sectionID]
	if !ok {
		return Snapshot{}, noSession(sectionID)
	}
	s.draft = doc.Clone()
	return s.snapshot(), nil
}

// Save writes the draft together with the session's visibility and order.
func (e *Editor) Save(ctx context.Context, sectionID string) (Snapshot, error) {
	return e.write(ctx, sectionID, ActionUpdate, func(s *session) content.SectionUpdate {
		return content.SectionUpdate{Content: s.draft.Clone(), IsVisible: s.isVisible, SortOrder: s.sortOrder}
	})
}

// ToggleVisibility persists a new visibility for the section. The committed
// content is written, never the draft, so a half-finished edit does not
// leak out with the toggle.
func (e *Editor) ToggleVisibility(ctx context.Context, sectionID string, visible bool) (Snapshot, error) {
	if err := e.ensureSession(ctx, sectionID); err != nil {
		return Snapshot{}, err
	}
	return e.write(ctx, sectionID, ActionVisibility, func(s *session) content.SectionUpdate {
		return content.SectionUpdate{Content: s.committed.Clone(), IsVisible: visible, SortOrder: s.sortOrder}
	})
}

// SetSortOrder persists a new sortOrder for the section.
func (e *Editor) SetSortOrder(ctx context.Context, sectionID string, order int) (Snapshot, error) {
	if err := e.ensureSession(ctx, sectionID); err != nil {
		return Snapshot{}, err
	}
	return e.write(ctx, sectionID, ActionReorder, func(s *session) content.SectionUpdate {
		return content.SectionUpdate{Content: s.committed.Clone(), IsVisible: s.isVisible, SortOrder: order}
	})
}

// MoveUp swaps the section with its predecessor in display order.
func (e *Editor) MoveUp(ctx context.Context, sectionID string) error {
	return e.move(ctx, sectionID, -1)
}

// MoveDown swaps the section with its successor in display order.
func (e *Editor) MoveDown(ctx context.Context, sectionID string) error {
	return e.move(ctx, sectionID, 1)
}

func (e *Editor) move(ctx context.Context, sectionID string, delta int) error {
	section, err := e.repo.GetSection(ctx, sectionID)
	if err != nil {
		return readError("get section", err)
	}
	siblings, err := e.repo.ListSections(ctx, section.PageID)
	if err != nil {
		return readError("list sections", err)
	}

	// Display order over all sections, hidden ones included.
	ordered := slices.Clone(siblings)
	slices.SortStableFunc(ordered, func(a, b content.Section) int { return cmp.Compare(a.SortOrder, b.SortOrder) })

	idx := slices.IndexFunc(ordered, func(s content.Section) bool { return s.ID == sectionID })
	target := idx + delta
	if idx < 0 || target < 0 || target >= len(ordered) {
		return nil
	}

	current, neighbour := ordered[idx], ordered[target]
	if current.SortOrder != neighbour.SortOrder {
		return e.applyOrders(ctx, []orderChange{
			{section: current, order: neighbour.SortOrder},
			{section: neighbour, order: current.SortOrder},
		})
	}

	// Equal orders cannot be swapped; renumber the page with the pair exchanged.
	ordered[idx], ordered[target] = ordered[target], ordered[idx]
	var changes []orderChange
	for i, s := range ordered {
		if s.SortOrder != i+1 {
			changes = append(changes, orderChange{section: s, order: i + 1})
		}
	}
	return e.applyOrders(ctx, changes)
}

type orderChange struct {
	section content.Section
	order   int
}

// applyOrders writes each change in turn. When one fails, the changes
// already written are put back to their previous order so the page never
// keeps half a move.
func (e *Editor) applyOrders(ctx context.Context, changes []orderChange) error {
	for i, c := range changes {
		if _, err := e.setOrder(ctx, c.section, c.order); err != nil {
			for j := i - 1; j >= 0; j-- {
				prev := changes[j].section
				if _, rerr := e.setOrder(ctx, prev, prev.SortOrder); rerr != nil {
					e.logger.Error(ctx, rerr, "Restoring section order failed",
						"section_id", prev.ID, "sort_order", prev.SortOrder)
				}
			}
			return err
		}
	}
	return nil
}

func (e *Editor) setOrder(ctx context.Context, section content.Section, order int) (Snapshot, error) {
	e.mutex.Lock()
	if _, ok := e.sessions[section.ID]; !ok {
		s := newSession(&section)
		s.implicit = true
		e.sessions[section.ID] = s
	}
	e.mutex.Unlock()

	return e.write(ctx, section.ID, ActionReorder, func(s *session) content.SectionUpdate {
		return content.SectionUpdate{Content: s.committed.Clone(), IsVisible: s.isVisible, SortOrder: order}
	})
}

// write is the single save path. prepare runs under the lock and builds the
// update from the session; the repository call runs without it.
func (e *Editor) write(ctx context.Context, sectionID, action string, prepare func(s *session) content.SectionUpdate) (Snapshot, error) {
	e.mutex.Lock()
	s, ok := e.sessions[sectionID]
	if !ok {
		e.mutex.Unlock()
		return Snapshot{}, noSession(sectionID)
	}
	if s.isSaving {
		snap := s.snapshot()
		e.mutex.Unlock()
		metrics.SavesTotal.WithLabelValues("rejected").Inc()
		return snap, siteerrors.ErrSaveInProgress
	}
	upd := prepare(s)
	s.isSaving = true
	e.mutex.Unlock()

	saved, err := e.repo.UpdateSection(ctx, sectionID, upd)

	e.mutex.Lock()
	s.isSaving = false
	if s.implicit && e.sessions[sectionID] == s {
		delete(e.sessions, sectionID)
	}
	if err != nil {
		saveErr := siteerrors.NewSaveFailedError(sectionID, err)
		s.lastError = saveErr
		snap := s.snapshot()
		e.mutex.Unlock()

		metrics.SavesTotal.WithLabelValues("failure").Inc()
		e.logger.Warn(ctx, err, "Section write failed", "section_id", sectionID, "action", action)
		return snap, saveErr
	}
	s.committed = upd.Content
	s.isVisible = saved.IsVisible
	s.sortOrder = saved.SortOrder
	s.lastError = nil
	s.savedAt = time.Now().UTC()
	snap := s.snapshot()
	e.mutex.Unlock()

	metrics.SavesTotal.WithLabelValues("success").Inc()
	e.publish(s.pageID, sectionID, action)
	return snap, nil
}

// CreateSection adds a section to a page and announces it.
func (e *Editor) CreateSection(ctx context.Context, in content.SectionInput) (*content.Section, error) {
	if in.Content == nil {
		in.Content = content.Document{}
	}
	section, err := e.repo.CreateSection(ctx, in)
	if err != nil {
		if siteerrors.IsNotFound(err) {
			return nil, err
		}
		metrics.SavesTotal.WithLabelValues("failure").Inc()
		return nil, siteerrors.NewSaveFailedError("", err)
	}
	metrics.SavesTotal.WithLabelValues("success").Inc()
	e.publish(section.PageID, section.ID, ActionCreate)
	return section, nil
}

// DeleteSection removes a section and closes its session. A section with a
// write in flight cannot be deleted.
func (e *Editor) DeleteSection(ctx context.Context, sectionID string) error {
	section, err := e.repo.GetSection(ctx, sectionID)
	if err != nil {
		return readError("get section", err)
	}

	e.mutex.Lock()
	if s, ok := e.sessions[sectionID]; ok && s.isSaving {
		e.mutex.Unlock()
		return siteerrors.ErrSaveInProgress
	}
	e.mutex.Unlock()

	if err := e.repo.DeleteSection(ctx, sectionID); err != nil {
		if siteerrors.IsNotFound(err) {
			return err
		}
		return siteerrors.NewSaveFailedError(sectionID, err)
	}

	e.mutex.Lock()
	delete(e.sessions, sectionID)
	e.mutex.Unlock()

	e.publish(section.PageID, sectionID, ActionDelete)
	return nil
}

// Discard closes a session and drops its draft. An in-flight write still
// completes.
func (e *Editor) Discard(sectionID string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	delete(e.sessions, sectionID)
}

// Snapshot returns the state of an open session.
func (e *Editor) Snapshot(sectionID string) (Snapshot, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	s, ok := e.sessions[sectionID]
	if !ok {
		return Snapshot{}, noSession(sectionID)
	}
	return s.snapshot(), nil
}

// Sessions lists open sessions ordered by section id.
func (e *Editor) Sessions() []Snapshot {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	snaps := make([]Snapshot, 0, len(e.sessions))
	for _, s := range e.sessions {
		snaps = append(snaps, s.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].SectionID < snaps[j].SectionID })
	return snaps
}

func (e *Editor) ensureSession(ctx context.Context, sectionID string) error {
	e.mutex.Lock()
	_, ok := e.sessions[sectionID]
	e.mutex.Unlock()
	if ok {
		return nil
	}

	section, err := e.repo.GetSection(ctx, sectionID)
	if err != nil {
		return readError("get section", err)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	if _, ok := e.sessions[sectionID]; !ok {
		s := newSession(section)
		s.implicit = true
		e.sessions[sectionID] = s
	}
	return nil
}

func (e *Editor) publish(pageID, sectionID, action string) {
	e.publisher.Publish(pubsub.TypePageContent, pubsub.PageContentChange{
		PageID:    pageID,
		SectionID: sectionID,
		Action:    action,
	})
}

func noSession(sectionID string) error {
	return (&siteerrors.SiteError{
		Type:        siteerrors.ErrorTypeNotFound,
		Code:        siteerrors.ErrNoSession.Code,
		Message:     "no edit session for section",
		Recoverable: true,
	}).WithContext("id", sectionID)
}

func readError(op string, err error) error {
	if siteerrors.IsNotFound(err) || siteerrors.IsUnavailable(err) {
		return err
	}
	return siteerrors.NewUnavailableError(op, err)
}
