// Package content defines the page model shared by the composer, the editor
// and every repository implementation.
//
// A Page owns an ordered collection of Sections. Each Section carries a type
// tag and an open-shaped Document; the tag selects a renderer and, through
// Decode, a strongly typed Body. The repository contract is kept deliberately
// small (CRUD by id, list by parent) so storage can be swapped freely.
package content

import (
	"context"
	"time"
)

// Page is one routable screen of the site.
type Page struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	IsSystem  bool      `json:"isSystem"`
	IsVisible bool      `json:"isVisible"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Section is one typed, orderable, hideable block of a page.
type Section struct {
	ID        string    `json:"id"`
	PageID    string    `json:"pageId"`
	Type      string    `json:"type"`
	Content   Document  `json:"content"`
	IsVisible bool      `json:"isVisible"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PageInput creates a page.
type PageInput struct {
	Slug      string `json:"slug" validate:"required,max=64,slug"`
	Title     string `json:"title" validate:"max=200"`
	IsSystem  bool   `json:"isSystem"`
	IsVisible bool   `json:"isVisible"`
}

// PageUpdate changes the editable fields of a page.
type PageUpdate struct {
	Title     string `json:"title" validate:"required,max=200"`
	IsVisible bool   `json:"isVisible"`
}

// SectionInput creates a section.
type SectionInput struct {
	PageID    string   `json:"pageId" validate:"required"`
	Type      string   `json:"type" validate:"required,max=64,slug"`
	Content   Document `json:"content"`
	IsVisible bool     `json:"isVisible"`
	SortOrder int      `json:"sortOrder"`
}

// SectionUpdate is the full set of fields an edit writes back.
type SectionUpdate struct {
	Content   Document `json:"content"`
	IsVisible bool     `json:"isVisible"`
	SortOrder int      `json:"sortOrder"`
}

// Repository persists pages and sections.
//
// Implementations return errors.ErrNotFound (or an error matching it) for
// missing records. ListSections returns sections in insertion order; the
// composer relies on that order to break sortOrder ties.
type Repository interface {
	GetPage(ctx context.Context, slug string) (*Page, error)
	GetPageByID(ctx context.Context, id string) (*Page, error)
	ListPages(ctx context.Context) ([]Page, error)
	CreatePage(ctx context.Context, in PageInput) (*Page, error)
	UpdatePage(ctx context.Context, id string, upd PageUpdate) (*Page, error)
	DeletePage(ctx context.Context, id string) error

	GetSection(ctx context.Context, id string) (*Section, error)
	ListSections(ctx context.Context, pageID string) ([]Section, error)
	CreateSection(ctx context.Context, in SectionInput) (*Section, error)
	UpdateSection(ctx context.Context, id string, upd SectionUpdate) (*Section, error)
	DeleteSection(ctx context.Context, id string) error
}

// TenantContext is the explicit site identity handed to the composer and on
// to every renderer. It replaces any "first branch" style lookup.
type TenantContext struct {
	SiteName string `json:"siteName"`
	Branch   string `json:"branch"`
	Locale   string `json:"locale"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}
