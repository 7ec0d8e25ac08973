// Package composer turns a page's sections into ordered rendered blocks.
//
// Composition filters hidden sections, stable-sorts the rest by sortOrder
// (ties keep repository insertion order), resolves each section's renderer
// and renders it. Sections with no renderer, or whose renderer fails, are
// skipped without affecting their siblings. A confirmed page with no visible
// sections is replaced by its curated defaults at presentation time only;
// nothing is written back. A page with visible sections never falls back,
// even when none of them renders. A repository failure is reported as Unavailable
// and never substituted with defaults.
package composer

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/conneroisu/trattoria/internal/content"
	"github.com/conneroisu/trattoria/internal/defaults"
	siteerrors "github.com/conneroisu/trattoria/internal/errors"
	"github.com/conneroisu/trattoria/internal/logging"
	"github.com/conneroisu/trattoria/internal/metrics"
	"github.com/conneroisu/trattoria/internal/registry"
)

// State describes how a composition was produced.
type State string

const (
	// StateReady means the page has visible sections. Blocks may still be
	// empty when every one of them was skipped.
	StateReady State = "ready"
	// StateFallback means the page had no visible sections and defaults were used.
	StateFallback State = "fallback"
	// StateEmpty means the page had no visible sections and no defaults exist for it.
	StateEmpty State = "empty"
	// StateHidden means the page's own visibility switch is off.
	StateHidden State = "hidden"
	// StateNotFound means no page has the requested slug.
	StateNotFound State = "not_found"
	// StateUnavailable means the repository could not be read.
	StateUnavailable State = "unavailable"
)

// RenderedBlock is one section's rendered output.
type RenderedBlock struct {
	SectionID string `json:"sectionId"`
	Type      string `json:"type"`
	HTML      string `json:"renderedOutput"`
}

// Composition is the result of composing one page.
type Composition struct {
	Slug   string          `json:"slug"`
	Page   *content.Page   `json:"page,omitempty"`
	State  State           `json:"state"`
	Blocks []RenderedBlock `json:"blocks"`
}

// DefaultsFunc supplies fallback sections for a slug.
type DefaultsFunc func(slug string) []content.Section

// Composer composes pages read from a repository.
type Composer struct {
	repo     content.Repository
	registry *registry.Registry
	tenant   content.TenantContext
	defaults DefaultsFunc
	logger   logging.Logger
}

// Option configures a Composer.
type Option func(*Composer)

// WithDefaults replaces the default content provider.
func WithDefaults(fn DefaultsFunc) Option {
	return func(c *Composer) {
		c.defaults = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Composer) {
		c.logger = logger
	}
}

// New creates a composer. The tenant is passed to every renderer.
func New(repo content.Repository, reg *registry.Registry, tenant content.TenantContext, opts ...Option) *Composer {
	c := &Composer{
		repo:     repo,
		registry: reg,
		tenant:   tenant,
		defaults: defaults.For,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("composer")
	return c
}

// Compose reads the page and its sections and renders them. The returned
// composition is never nil. The error is non-nil only for StateUnavailable.
func (c *Composer) Compose(ctx context.Context, slug string) (*Composition, error) {
	start := time.Now()
	comp, err := c.compose(ctx, slug)
	metrics.CompositionDuration.Observe(time.Since(start).Seconds())
	metrics.CompositionsTotal.WithLabelValues(string(comp.State)).Inc()
	return comp, err
}

func (c *Composer) compose(ctx context.Context, slug string) (*Composition, error) {
	comp := &Composition{Slug: slug, Blocks: []RenderedBlock{}}

	page, err := c.repo.GetPage(ctx, slug)
	if err != nil {
		if siteerrors.IsNotFound(err) {
			comp.State = StateNotFound
			return comp, nil
		}
		comp.State = StateUnavailable
		c.logger.Warn(ctx, err, "Page read failed", "slug", slug)
		return comp, unavailable("get page "+slug, err)
	}
	comp.Page = page

	if !page.IsVisible {
		comp.State = StateHidden
		return comp, nil
	}

	sections, err := c.repo.ListSections(ctx, page.ID)
	if err != nil {
		comp.State = StateUnavailable
		c.logger.Warn(ctx, err, "Section list failed", "slug", slug, "page_id", page.ID)
		return comp, unavailable("list sections "+slug, err)
	}

	if len(Order(sections)) > 0 {
		comp.Blocks = c.ComposeSections(ctx, sections)
		comp.State = StateReady
		return comp, nil
	}

	comp.Blocks = c.ComposeSections(ctx, c.fallback(slug))
	if len(comp.Blocks) == 0 {
		comp.State = StateEmpty
		return comp, nil
	}
	comp.State = StateFallback
	c.logger.Debug(ctx, "Using default content", "slug", slug, "blocks", len(comp.Blocks))
	return comp, nil
}

// ComposeSections is the pure transform from sections to rendered blocks. It
// does not touch the repository.
func (c *Composer) ComposeSections(ctx context.Context, sections []content.Section) []RenderedBlock {
	ordered := Order(sections)

	blocks := make([]RenderedBlock, 0, len(ordered))
	for _, section := range ordered {
		html, ok := c.renderSection(ctx, section)
		if !ok {
			continue
		}
		blocks = append(blocks, RenderedBlock{
			SectionID: section.ID,
			Type:      section.Type,
			HTML:      html,
		})
	}
	return blocks
}

// Order drops hidden sections and stable-sorts the rest by sortOrder. The
// input slice is not modified.
func Order(sections []content.Section) []content.Section {
	visible := make([]content.Section, 0, len(sections))
	for _, s := range sections {
		if s.IsVisible {
			visible = append(visible, s)
		}
	}
	slices.SortStableFunc(visible, func(a, b content.Section) int {
		return cmp.Compare(a.SortOrder, b.SortOrder)
	})
	return visible
}

func (c *Composer) renderSection(ctx context.Context, section content.Section) (html string, ok bool) {
	fn, found := c.registry.Resolve(section.Type)
	if !found {
		metrics.SectionsSkippedTotal.WithLabelValues("unknown_type").Inc()
		c.logger.Debug(ctx, "Skipping section with unregistered type", "section_id", section.ID, "type", section.Type)
		return "", false
	}

	body, decodeErr := content.Decode(section.Type, section.Content)
	if decodeErr != nil {
		c.logger.Debug(ctx, "Section content partially decoded", "section_id", section.ID, "type", section.Type, "detail", decodeErr.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.SectionsSkippedTotal.WithLabelValues("render_error").Inc()
			c.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Renderer panicked", "section_id", section.ID, "type", section.Type)
			html, ok = "", false
		}
	}()

	var sb strings.Builder
	in := registry.Input{SectionID: section.ID, Body: body, Tenant: c.tenant}
	if err := fn(in).Render(ctx, &sb); err != nil {
		metrics.SectionsSkippedTotal.WithLabelValues("render_error").Inc()
		c.logger.Warn(ctx, err, "Section render failed", "section_id", section.ID, "type", section.Type)
		return "", false
	}
	return sb.String(), true
}

func (c *Composer) fallback(slug string) []content.Section {
	if c.defaults == nil {
		return nil
	}
	return c.defaults(slug)
}

func unavailable(op string, err error) error {
	if siteerrors.IsUnavailable(err) {
		return err
	}
	return siteerrors.NewUnavailableError(op, err)
}
