// Package storage implements content.Repository.
//
// MemoryStore keeps everything in maps and is used by tests and by the
// "memory" storage driver. SQLiteStore persists to a single SQLite file.
// Guarded wraps any repository with a per-call deadline and a circuit
// breaker so a stalled backend is reported as unavailable instead of hanging
// the composer.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/conneroisu/trattoria/internal/content"
	siteerrors "github.com/conneroisu/trattoria/internal/errors"
)

// NewID returns a fresh, lexically sortable record id.
func NewID() string {
	return ulid.Make().String()
}

// MemoryStore is an in-process repository.
type MemoryStore struct {
	pages    map[string]*content.Page
	sections map[string]*storedSection
	seq      int64
	now      func() time.Time
	mutex    sync.RWMutex
}

type storedSection struct {
	section content.Section
	seq     int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pages:    make(map[string]*content.Page),
		sections: make(map[string]*storedSection),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetPage returns the page with the given slug.
func (m *MemoryStore) GetPage(ctx context.Context, slug string) (*content.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, p := range m.pages {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, siteerrors.NewNotFoundError("page", slug)
}

// GetPageByID returns the page with the given id.
func (m *MemoryStore) GetPageByID(ctx context.Context, id string) (*content.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	p, ok := m.pages[id]
	if !ok {
		return nil, siteerrors.NewNotFoundError("page", id)
	}
	cp := *p
	return &cp, nil
}

// ListPages returns all pages ordered by slug.
func (m *MemoryStore) ListPages(ctx context.Context) ([]content.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	pages := make([]content.Page, 0, len(m.pages))
	for _, p := range m.pages {
		pages = append(pages, *p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Slug < pages[j].Slug })
	return pages, nil
}

// CreatePage adds a page. Slugs are unique.
func (m *MemoryStore) CreatePage(ctx context.Context, in content.PageInput) (*content.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, p := range m.pages {
		if p.Slug == in.Slug {
			return nil, duplicateSlug(in.Slug)
		}
	}

	now := m.now()
	p := &content.Page{
		ID:        NewID(),
		Slug:      in.Slug,
		Title:     in.Title,
		IsSystem:  in.IsSystem,
		IsVisible: in.IsVisible,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.pages[p.ID] = p
	cp := *p
	return &cp, nil
}

// UpdatePage changes a page's title and visibility.
func (m *MemoryStore) UpdatePage(ctx context.Context, id string, upd content.PageUpdate) (*content.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	p, ok := m.pages[id]
	if !ok {
		return nil, siteerrors.NewNotFoundError("page", id)
	}
	p.Title = upd.Title
	p.IsVisible = upd.IsVisible
	p.UpdatedAt = m.now()
	cp := *p
	return &cp, nil
}

// DeletePage removes a page and its sections. System pages cannot be deleted.
func (m *MemoryStore) DeletePage(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	p, ok := m.pages[id]
	if !ok {
		return siteerrors.NewNotFoundError("page", id)
	}
	if p.IsSystem {
		return siteerrors.ErrSystemPage
	}
	for sid, s := range m.sections {
		if s.section.PageID == id {
			delete(m.sections, sid)
		}
	}
	delete(m.pages, id)
	return nil
}

// GetSection returns one section.
func (m *MemoryStore) GetSection(ctx context.Context, id string) (*content.Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s, ok := m.sections[id]
	if !ok {
		return nil, siteerrors.NewNotFoundError("section", id)
	}
	return copySection(s.section), nil
}

// ListSections returns a page's sections in insertion order.
func (m *MemoryStore) ListSections(ctx context.Context, pageID string) ([]content.Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stored := make([]*storedSection, 0)
	for _, s := range m.sections {
		if s.section.PageID == pageID {
			stored = append(stored, s)
		}
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })

	sections := make([]content.Section, len(stored))
	for i, s := range stored {
		sections[i] = *copySection(s.section)
	}
	return sections, nil
}

// CreateSection adds a section to an existing page.
func (m *MemoryStore) CreateSection(ctx context.Context, in content.SectionInput) (*content.Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.pages[in.PageID]; !ok {
		return nil, siteerrors.NewNotFoundError("page", in.PageID)
	}

	now := m.now()
	m.seq++
	s := &storedSection{
		seq: m.seq,
		section: content.Section{
			ID:        NewID(),
			PageID:    in.PageID,
			Type:      in.Type,
			Content:   in.Content.Clone(),
			IsVisible: in.IsVisible,
			SortOrder: in.SortOrder,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	m.sections[s.section.ID] = s
	return copySection(s.section), nil
}

// UpdateSection overwrites a section's content, visibility and order.
func (m *MemoryStore) UpdateSection(ctx context.Context, id string, upd content.SectionUpdate) (*content.Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, ok := m.sections[id]
	if !ok {
		return nil, siteerrors.NewNotFoundError("section", id)
	}
	s.section.Content = upd.Content.Clone()
	s.section.IsVisible = upd.IsVisible
	s.section.SortOrder = upd.SortOrder
	s.section.UpdatedAt = m.now()
	return copySection(s.section), nil
}

// DeleteSection removes a section.
func (m *MemoryStore) DeleteSection(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.sections[id]; !ok {
		return siteerrors.NewNotFoundError("section", id)
	}
	delete(m.sections, id)
	return nil
}

func copySection(s content.Section) *content.Section {
	s.Content = s.Content.Clone()
	return &s
}

func duplicateSlug(slug string) error {
	return siteerrors.NewConflictError("DUPLICATE_SLUG", "a page with this slug already exists").
		WithContext("id", slug)
}
