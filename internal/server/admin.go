package server

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/conneroisu/trattoria/internal/content"
	"github.com/conneroisu/trattoria/internal/editor"
	siteerrors "github.com/conneroisu/trattoria/internal/errors"
	"github.com/conneroisu/trattoria/internal/pubsub"
	"github.com/conneroisu/trattoria/internal/renderer"
	"github.com/conneroisu/trattoria/internal/seed"
	"github.com/conneroisu/trattoria/internal/validation"
	"github.com/conneroisu/trattoria/internal/websocket"
)

// adminRequestsPerMinute bounds admin API traffic per client address.
const adminRequestsPerMinute = 300

func (s *Server) adminRoutes(r chi.Router) {
	r.Use(httprate.LimitByIP(adminRequestsPerMinute, time.Minute))

	r.Get("/section-types", s.handleSectionTypes)
	r.Get("/sessions", s.handleSessions)
	r.Get("/live/clients", s.handleLiveClients)

	r.Get("/pages", s.handleListPages)
	r.Post("/pages", s.handleCreatePage)
	r.Route("/pages/{pageID}", func(r chi.Router) {
		r.Get("/", s.handleGetPage)
		r.Put("/", s.handleUpdatePage)
		r.Delete("/", s.handleDeletePage)
		r.Get("/sections", s.handleListSections)
		r.Get("/preview", s.handlePreview)
	})

	r.Post("/sections", s.handleCreateSection)
	r.Route("/sections/{sectionID}", func(r chi.Router) {
		r.Get("/", s.handleGetSection)
		r.Delete("/", s.handleDeleteSection)

		r.Post("/edit", s.handleBeginEdit)
		r.Get("/edit", s.handleSnapshot)
		r.Delete("/edit", s.handleDiscard)
		r.Put("/draft", s.handleUpdateDraft)
		r.Post("/save", s.handleSave)
		r.Put("/visibility", s.handleVisibility)
		r.Put("/order", s.handleOrder)
		r.Post("/move-up", s.handleMove(s.editor.MoveUp))
		r.Post("/move-down", s.handleMove(s.editor.MoveDown))
	})
}

// SectionType is one entry of the block catalogue offered to operators.
type SectionType struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

func (s *Server) handleSectionTypes(w http.ResponseWriter, r *http.Request) {
	types := s.registry.Types()
	catalogue := make([]SectionType, 0, len(types))
	// Known types first in their curated order, then anything else registered.
	for _, t := range content.KnownTypes {
		if slices.Contains(types, t) {
			catalogue = append(catalogue, SectionType{Type: t, Label: renderer.Label(t)})
		}
	}
	for _, t := range types {
		if !content.IsKnownType(t) {
			catalogue = append(catalogue, SectionType{Type: t, Label: renderer.Label(t)})
		}
	}
	writeJSON(w, http.StatusOK, catalogue)
}

// handleLiveClients lists connected tabs, oldest first. It is empty when the
// live channel is disabled.
func (s *Server) handleLiveClients(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		writeJSON(w, http.StatusOK, []websocket.ClientInfo{})
		return
	}
	clients := s.live.Clients()
	slices.SortFunc(clients, func(a, b websocket.ClientInfo) int {
		return a.ConnectedAt.Compare(b.ConnectedAt)
	})
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.editor.Sessions())
}

// Pages

type createPageRequest struct {
	Slug      string `json:"slug" validate:"required,max=64,slug"`
	Title     string `json:"title" validate:"max=200"`
	IsVisible *bool  `json:"isVisible"`
}

type updatePageRequest struct {
	Title     string `json:"title" validate:"required,max=200"`
	IsVisible *bool  `json:"isVisible" validate:"required"`
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.repo.ListPages(r.Context())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pages)
}

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var req createPageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	req.Slug = strings.TrimSpace(req.Slug)
	req.Title = strings.TrimSpace(validation.SanitizeInput(req.Title))
	if err := validation.Check(&req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if req.Title == "" {
		req.Title = seed.TitleFromSlug(req.Slug)
	}

	page, err := s.repo.CreatePage(r.Context(), content.PageInput{
		Slug:      req.Slug,
		Title:     req.Title,
		IsVisible: req.IsVisible == nil || *req.IsVisible,
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	s.publisher.Publish(pubsub.TypePages, pubsub.PagesChange{Slugs: []string{page.Slug}, Action: "create"})
	s.logger.Info(r.Context(), "Page created", "slug", page.Slug, "page_id", page.ID)
	writeJSON(w, http.StatusCreated, page)
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.repo.GetPageByID(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	var req updatePageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	req.Title = strings.TrimSpace(validation.SanitizeInput(req.Title))
	if err := validation.Check(&req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	page, err := s.repo.UpdatePage(r.Context(), chi.URLParam(r, "pageID"), content.PageUpdate{
		Title:     req.Title,
		IsVisible: *req.IsVisible,
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	s.publisher.Publish(pubsub.TypePages, pubsub.PagesChange{Slugs: []string{page.Slug}, Action: "update"})
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pageID")
	page, err := s.repo.GetPageByID(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if err := s.repo.DeletePage(r.Context(), id); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	s.publisher.Publish(pubsub.TypePages, pubsub.PagesChange{Slugs: []string{page.Slug}, Action: "delete"})
	s.logger.Info(r.Context(), "Page deleted", "slug", page.Slug, "page_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleListSections returns every section of the page, hidden ones included,
// in display order.
func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) {
	sections, err := s.pageSections(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sections)
}

// handlePreview composes the page's persisted sections without the page
// visibility switch or the default fallback, so operators see exactly what
// their sections produce.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sections, err := s.pageSections(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s.composer.ComposeSections(r.Context(), sections))
}

func (s *Server) pageSections(r *http.Request) ([]content.Section, error) {
	id := chi.URLParam(r, "pageID")
	if _, err := s.repo.GetPageByID(r.Context(), id); err != nil {
		return nil, err
	}
	sections, err := s.repo.ListSections(r.Context(), id)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(sections, func(a, b content.Section) int { return cmp.Compare(a.SortOrder, b.SortOrder) })
	return sections, nil
}

// Sections

type createSectionRequest struct {
	PageID    string           `json:"pageId" validate:"required"`
	Type      string           `json:"type" validate:"required,max=64,slug"`
	Content   content.Document `json:"content"`
	IsVisible *bool            `json:"isVisible"`
	SortOrder *int             `json:"sortOrder"`
}

func (s *Server) handleCreateSection(w http.ResponseWriter, r *http.Request) {
	var req createSectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if err := validation.Check(&req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if _, ok := s.registry.Resolve(req.Type); !ok {
		writeError(w, r, s.logger, siteerrors.NewValidationError("UNKNOWN_SECTION_TYPE", "no renderer for section type").
			WithContext("type", req.Type))
		return
	}

	if _, err := s.repo.GetPageByID(r.Context(), req.PageID); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	order := 0
	if req.SortOrder != nil {
		order = *req.SortOrder
	} else {
		// Append after the last section.
		existing, err := s.repo.ListSections(r.Context(), req.PageID)
		if err != nil {
			writeError(w, r, s.logger, err)
			return
		}
		for _, sec := range existing {
			order = max(order, sec.SortOrder)
		}
		order++
	}

	section, err := s.editor.CreateSection(r.Context(), content.SectionInput{
		PageID:    req.PageID,
		Type:      req.Type,
		Content:   req.Content,
		IsVisible: req.IsVisible == nil || *req.IsVisible,
		SortOrder: order,
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, section)
}

func (s *Server) handleGetSection(w http.ResponseWriter, r *http.Request) {
	section, err := s.repo.GetSection(r.Context(), chi.URLParam(r, "sectionID"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, section)
}

func (s *Server) handleDeleteSection(w http.ResponseWriter, r *http.Request) {
	if err := s.editor.DeleteSection(r.Context(), chi.URLParam(r, "sectionID")); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Edit sessions

// sessionErrorBody pairs a failed write with the session it left behind, so
// the operator's draft and error stay visible.
type sessionErrorBody struct {
	Error   ErrorDetail      `json:"error"`
	Session *editor.Snapshot `json:"session,omitempty"`
}

// writeSession answers a session operation. A failed write still reports the
// session when the editor returned one.
func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, status int, snap editor.Snapshot, err error) {
	if err == nil {
		writeJSON(w, status, snap)
		return
	}
	code, detail := describeError(w, r, s.logger, err)
	body := sessionErrorBody{Error: detail}
	if snap.SectionID != "" {
		body.Session = &snap
	}
	writeJSON(w, code, body)
}

func (s *Server) handleBeginEdit(w http.ResponseWriter, r *http.Request) {
	snap, err := s.editor.BeginEdit(r.Context(), chi.URLParam(r, "sectionID"))
	s.writeSession(w, r, http.StatusOK, snap, err)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.editor.Snapshot(chi.URLParam(r, "sectionID"))
	s.writeSession(w, r, http.StatusOK, snap, err)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	s.editor.Discard(chi.URLParam(r, "sectionID"))
	w.WriteHeader(http.StatusNoContent)
}

// draftRequest carries either operator text or a structured document.
type draftRequest struct {
	Raw     *string          `json:"raw"`
	Content content.Document `json:"content"`
}

func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	id := chi.URLParam(r, "sectionID")
	var (
		snap editor.Snapshot
		err  error
	)
	switch {
	case req.Raw != nil && req.Content != nil:
		err = siteerrors.NewValidationError("AMBIGUOUS_DRAFT", "send either raw or content, not both")
	case req.Raw != nil:
		snap, err = s.editor.UpdateDraft(id, *req.Raw)
	default:
		snap, err = s.editor.UpdateDraftDocument(id, req.Content)
	}
	if err != nil && siteerrors.IsMalformedEdit(err) {
		// The draft is untouched; report it alongside the rejection.
		snap, _ = s.editor.Snapshot(id)
	}
	s.writeSession(w, r, http.StatusOK, snap, err)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	snap, err := s.editor.Save(r.Context(), chi.URLParam(r, "sectionID"))
	s.writeSession(w, r, http.StatusOK, snap, err)
}

type visibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if err := validation.Check(&req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	snap, err := s.editor.ToggleVisibility(r.Context(), chi.URLParam(r, "sectionID"), *req.Visible)
	s.writeSession(w, r, http.StatusOK, snap, err)
}

type orderRequest struct {
	SortOrder *int `json:"sortOrder" validate:"required"`
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if err := validation.Check(&req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	snap, err := s.editor.SetSortOrder(r.Context(), chi.URLParam(r, "sectionID"), *req.SortOrder)
	s.writeSession(w, r, http.StatusOK, snap, err)
}

func (s *Server) handleMove(move func(ctx context.Context, sectionID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := move(r.Context(), chi.URLParam(r, "sectionID")); err != nil {
			writeError(w, r, s.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
