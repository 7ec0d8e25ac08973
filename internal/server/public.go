package server

import (
	"context"
	"embed"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/conneroisu/trattoria/internal/composer"
	"github.com/conneroisu/trattoria/internal/content"
	"github.com/conneroisu/trattoria/internal/validation"
	"github.com/conneroisu/trattoria/internal/version"
)

//go:embed assets
var assets embed.FS

func assetHandler() http.Handler {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	files := http.StripPrefix("/assets/", http.FileServer(http.FS(sub)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300")
		files.ServeHTTP(w, r)
	})
}

// pageView is everything the layout needs for one response.
type pageView struct {
	Tenant content.TenantContext
	Title  string
	Slug   string
	PageID string
	Nav    []content.Page
	Blocks []composer.RenderedBlock
	Notice *notice
	Live   bool
}

// notice replaces the blocks when a page cannot be shown as composed.
type notice struct {
	Heading string
	Message string
	Retry   bool
}

// compositionStatus maps a composition state to the response status.
func compositionStatus(state composer.State) int {
	switch state {
	case composer.StateNotFound, composer.StateHidden:
		return http.StatusNotFound
	case composer.StateUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "home")
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !validation.IsSlug(slug) {
		s.handleNotFound(w, r)
		return
	}
	s.renderPage(w, r, slug)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/admin/") {
		writeError(w, r, s.logger, &notFoundRoute)
		return
	}
	view := s.baseView(r.Context(), "")
	view.Title = "Not found"
	view.Notice = &notice{Heading: "Page not found", Message: "We couldn't find the page you were looking for."}
	s.writePage(w, r, http.StatusNotFound, view)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, slug string) {
	comp, err := s.composer.Compose(r.Context(), slug)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Composition unavailable", "slug", slug)
	}

	view := s.baseView(r.Context(), slug)
	if comp.Page != nil {
		view.PageID = comp.Page.ID
		view.Title = comp.Page.Title
	}

	switch comp.State {
	case composer.StateNotFound, composer.StateHidden:
		view.PageID = ""
		view.Title = "Not found"
		view.Notice = &notice{Heading: "Page not found", Message: "We couldn't find the page you were looking for."}
	case composer.StateUnavailable:
		w.Header().Set("Retry-After", "5")
		view.Notice = &notice{
			Heading: "This page is taking a moment",
			Message: "We couldn't load this page right now. Please try again shortly.",
			Retry:   true,
		}
	case composer.StateEmpty:
		view.Notice = &notice{Heading: view.Title, Message: "Check back soon."}
	default:
		view.Blocks = comp.Blocks
	}

	s.writePage(w, r, compositionStatus(comp.State), view)
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, status int, view pageView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := layout(view).Render(r.Context(), w); err != nil {
		s.logger.Warn(r.Context(), err, "Page render failed", "slug", view.Slug)
	}
}

// handlePageJSON serves the composition open tabs refetch after a change
// event. The body is returned for every state so tabs can tell them apart.
func (s *Server) handlePageJSON(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !validation.IsSlug(slug) {
		writeJSON(w, http.StatusNotFound, &composer.Composition{Slug: slug, State: composer.StateNotFound, Blocks: []composer.RenderedBlock{}})
		return
	}

	comp, err := s.composer.Compose(r.Context(), slug)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Composition unavailable", "slug", slug)
		w.Header().Set("Retry-After", "5")
	}
	if comp.State == composer.StateHidden {
		// A hidden page is indistinguishable from a missing one to visitors.
		comp = &composer.Composition{Slug: slug, State: composer.StateNotFound, Blocks: []composer.RenderedBlock{}}
	}
	writeJSON(w, compositionStatus(comp.State), comp)
}

func (s *Server) baseView(ctx context.Context, slug string) pageView {
	return pageView{
		Tenant: s.config.TenantContext(),
		Slug:   slug,
		Nav:    s.navPages(ctx),
		Live:   s.live != nil,
	}
}

// navPages lists visible pages for the header. A failed read drops the
// navigation rather than the page.
func (s *Server) navPages(ctx context.Context) []content.Page {
	pages, err := s.repo.ListPages(ctx)
	if err != nil {
		s.logger.Debug(ctx, "Navigation unavailable", "error", err.Error())
		return nil
	}
	nav := pages[:0]
	for _, p := range pages {
		if p.IsVisible {
			nav = append(nav, p)
		}
	}
	return nav
}

func pagePath(slug string) string {
	if slug == "home" {
		return "/"
	}
	return "/" + slug
}

// layout wraps the composed blocks in the site chrome.
func layout(v pageView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &pageWriter{w: w}

		title := v.Tenant.SiteName
		if v.Title != "" && v.Title != v.Tenant.SiteName {
			title = v.Title + " | " + v.Tenant.SiteName
		}
		lang := v.Tenant.Locale
		if lang == "" {
			lang = "en"
		}

		hw.raw(`<!DOCTYPE html><html lang="`)
		hw.text(lang)
		hw.raw(`"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">`)
		hw.raw(`<meta name="generator" content="trattoria `)
		hw.text(version.GetVersion())
		hw.raw(`"><title>`)
		hw.text(title)
		hw.raw(`</title><link rel="stylesheet" href="/assets/site.css"></head>`)

		hw.raw(`<body data-slug="`)
		hw.text(v.Slug)
		hw.raw(`" data-page-id="`)
		hw.text(v.PageID)
		hw.raw(`">`)

		hw.raw(`<header class="site-header"><a class="brand" href="/">`)
		hw.text(v.Tenant.SiteName)
		if v.Tenant.Branch != "" {
			hw.raw(` <span class="branch">`)
			hw.text(v.Tenant.Branch)
			hw.raw(`</span>`)
		}
		hw.raw(`</a>`)
		if len(v.Nav) > 0 {
			hw.raw(`<nav>`)
			for _, p := range v.Nav {
				hw.raw(`<a href="`)
				hw.text(pagePath(p.Slug))
				hw.raw(`"`)
				if p.Slug == v.Slug {
					hw.raw(` aria-current="page"`)
				}
				hw.raw(`>`)
				hw.text(p.Title)
				hw.raw(`</a>`)
			}
			hw.raw(`</nav>`)
		}
		hw.raw(`</header>`)

		hw.raw(`<main id="page-content">`)
		if v.Notice != nil {
			hw.raw(`<section class="status"><h1>`)
			hw.text(v.Notice.Heading)
			hw.raw(`</h1><p>`)
			hw.text(v.Notice.Message)
			hw.raw(`</p>`)
			if v.Notice.Retry {
				hw.raw(`<a class="retry button" href="`)
				hw.text(pagePath(v.Slug))
				hw.raw(`">Try again</a>`)
			}
			hw.raw(`</section>`)
		} else {
			for _, b := range v.Blocks {
				hw.raw(b.HTML)
			}
		}
		hw.raw(`</main>`)

		hw.raw(`<footer class="site-footer">`)
		if v.Tenant.Address != "" {
			hw.raw(`<span class="address">`)
			hw.text(v.Tenant.Address)
			hw.raw(`</span>`)
		}
		if v.Tenant.Phone != "" {
			hw.raw(`<a class="phone" href="tel:`)
			hw.text(strings.ReplaceAll(v.Tenant.Phone, " ", ""))
			hw.raw(`">`)
			hw.text(v.Tenant.Phone)
			hw.raw(`</a>`)
		}
		hw.raw(`</footer>`)

		if v.Live && v.PageID != "" {
			hw.raw(`<script src="/assets/live.js" defer></script>`)
		}
		hw.raw(`</body></html>`)
		return hw.err
	})
}

// pageWriter keeps the first write error so markup can be emitted without
// checking every call.
type pageWriter struct {
	w   io.Writer
	err error
}

func (pw *pageWriter) raw(s string) {
	if pw.err != nil {
		return
	}
	_, pw.err = io.WriteString(pw.w, s)
}

func (pw *pageWriter) text(s string) {
	pw.raw(templ.EscapeString(s))
}
