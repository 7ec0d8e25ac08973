package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/trattoria/internal/composer"
	"github.com/conneroisu/trattoria/internal/config"
	"github.com/conneroisu/trattoria/internal/content"
	"github.com/conneroisu/trattoria/internal/editor"
	"github.com/conneroisu/trattoria/internal/pubsub"
	"github.com/conneroisu/trattoria/internal/renderer"
	"github.com/conneroisu/trattoria/internal/storage"
	"github.com/conneroisu/trattoria/internal/testutils"
)

type recorder struct {
	mu     sync.Mutex
	events []pubsub.Event
}

func (r *recorder) Publish(eventType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, pubsub.Event{Type: eventType, Data: data})
}

func (r *recorder) all() []pubsub.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pubsub.Event(nil), r.events...)
}

type fixture struct {
	server *Server
	repo   content.Repository
	events *recorder
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "localhost",
			Port:           8080,
			Environment:    "testing",
			AllowedOrigins: []string{"https://admin.trattoria.example"},
		},
		Tenant: config.TenantConfig{
			SiteName: testutils.TestTenant.SiteName,
			Branch:   testutils.TestTenant.Branch,
			Locale:   testutils.TestTenant.Locale,
			Phone:    testutils.TestTenant.Phone,
			Address:  testutils.TestTenant.Address,
		},
	}
}

func newFixture(t *testing.T, repo content.Repository, checks map[string]HealthCheck) *fixture {
	t.Helper()
	if repo == nil {
		repo = storage.NewMemoryStore()
	}
	cfg := testConfig()
	events := &recorder{}
	reg := renderer.NewRegistry()

	srv, err := New(Deps{
		Config:    cfg,
		Repo:      repo,
		Composer:  composer.New(repo, reg, cfg.TenantContext()),
		Editor:    editor.New(repo, events, nil),
		Registry:  reg,
		Publisher: events,
		Checks:    checks,
	})
	require.NoError(t, err)
	return &fixture{server: srv, repo: repo, events: events}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}

func TestPublicPage_RendersComposedBlocks(t *testing.T) {
	f := newFixture(t, nil, nil)
	testutils.SeedPage(t, f.repo, "home",
		testutils.SectionSpec{Type: content.TypeHero, Content: content.Document{"subtitle": "Since 1962"}, SortOrder: 1},
		testutils.SectionSpec{Type: content.TypeCTA, Content: content.Document{"heading": "Secret menu"}, Hidden: true, SortOrder: 2},
	)

	rec := f.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "Since 1962")
	assert.NotContains(t, body, "Secret menu")
	assert.Contains(t, body, `data-slug="home"`)
	assert.Contains(t, body, "Trattoria Nonna")
	assert.Contains(t, body, "Via Roma 1")
	assert.NotContains(t, body, "live.js", "no live endpoint configured")
}

func TestPublicPage_SecurityHeadersAndRequestID(t *testing.T) {
	f := newFixture(t, nil, nil)
	testutils.SeedPage(t, f.repo, "home")

	rec := f.do(t, http.MethodGet, "/", nil, RequestIDHeader, "trace-123")
	assert.Equal(t, "trace-123", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "script-src 'self'")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = f.do(t, http.MethodGet, "/", nil, RequestIDHeader, "bad id with spaces")
	assert.NotEqual(t, "bad id with spaces", rec.Header().Get(RequestIDHeader))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestPublicPage_States(t *testing.T) {
	repo := storage.NewMemoryStore()
	f := newFixture(t, repo, nil)
	ctx := context.Background()

	testutils.SeedPage(t, repo, "home")
	hidden, err := repo.CreatePage(ctx, content.PageInput{Slug: "events", Title: "Events", IsVisible: false})
	require.NoError(t, err)
	testutils.SeedPage(t, repo, "private-dining")

	tests := []struct {
		name     string
		path     string
		status   int
		contains string
	}{
		{"fallback for empty home", "/", http.StatusOK, "block-hero"},
		{"empty page without defaults", "/private-dining", http.StatusOK, "Check back soon"},
		{"hidden page", "/events", http.StatusNotFound, "Page not found"},
		{"missing page", "/nope", http.StatusNotFound, "Page not found"},
		{"invalid slug", "/Not_A_Slug", http.StatusNotFound, "Page not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
	assert.NotContains(t, f.do(t, http.MethodGet, "/events", nil).Body.String(), hidden.ID)
}

func TestPublicPage_UnavailableShowsRetry(t *testing.T) {
	repo := testutils.NewFaultyRepository(storage.NewMemoryStore())
	f := newFixture(t, repo, nil)
	testutils.SeedPage(t, repo, "home",
		testutils.SectionSpec{Type: content.TypeHero, Content: content.Document{"subtitle": "Since 1962"}})
	repo.Injector.InjectError(testutils.OpListSections, testutils.ErrConnectionLost)

	rec := f.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	body := rec.Body.String()
	assert.Contains(t, body, "Try again")
	assert.NotContains(t, body, "block-hero", "defaults must not replace a failed read")
}

func TestPageJSON(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, sections := testutils.SeedPage(t, f.repo, "menu",
		testutils.SectionSpec{Type: content.TypeRichText, Content: content.Document{"html": "<p>second</p>"}, SortOrder: 2},
		testutils.SectionSpec{Type: content.TypeHero, Content: content.Document{"title": "first"}, SortOrder: 1},
		testutils.SectionSpec{Type: "retired-block", SortOrder: 3},
	)

	rec := f.do(t, http.MethodGet, "/api/pages/menu", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	comp := decode[composer.Composition](t, rec)
	assert.Equal(t, composer.StateReady, comp.State)
	require.Len(t, comp.Blocks, 2, "unknown types are skipped")
	assert.Equal(t, sections[1].ID, comp.Blocks[0].SectionID)
	assert.Equal(t, sections[0].ID, comp.Blocks[1].SectionID)
	assert.Contains(t, rec.Body.String(), `"renderedOutput"`)
}

func TestPageJSON_HiddenLooksMissing(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.repo.CreatePage(context.Background(), content.PageInput{Slug: "events", Title: "Events"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/pages/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	comp := decode[composer.Composition](t, rec)
	assert.Equal(t, composer.StateNotFound, comp.State)
	assert.Nil(t, comp.Page)
}

func TestPageJSON_Unavailable(t *testing.T) {
	repo := testutils.NewFaultyRepository(storage.NewMemoryStore())
	f := newFixture(t, repo, nil)
	repo.Injector.InjectError(testutils.OpGetPage, testutils.ErrConnectionLost)

	rec := f.do(t, http.MethodGet, "/api/pages/home", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, composer.StateUnavailable, decode[composer.Composition](t, rec).State)
}

func TestUnknownAPIRouteIsJSON(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(t, http.MethodGet, "/admin/api/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[ErrorBody](t, rec)
	assert.Equal(t, "ROUTE_NOT_FOUND", body.Error.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, map[string]HealthCheck{
		"storage": func(context.Context) error { return nil },
	})
	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Checks["storage"])

	f = newFixture(t, nil, map[string]HealthCheck{
		"storage": func(context.Context) error { return errors.New("disk gone") },
	})
	rec = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp = decode[HealthResponse](t, rec)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "disk gone", resp.Checks["storage"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil, nil)
	testutils.SeedPage(t, f.repo, "home")
	f.do(t, http.MethodGet, "/api/pages/home", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "trattoria_compositions_total")
	assert.Contains(t, body, `route="/api/pages/{slug}"`)
}

func TestAssets(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(t, http.MethodGet, "/assets/live.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/pages/")
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/javascript") ||
		strings.HasPrefix(rec.Header().Get("Content-Type"), "application/javascript"))
}

func TestSecurity_CrossOriginWrites(t *testing.T) {
	f := newFixture(t, nil, nil)
	body := map[string]interface{}{"slug": "wine-list"}

	rec := f.do(t, http.MethodPost, "/admin/api/pages", body, "Origin", "https://evil.example")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "INVALID_ORIGIN", decode[ErrorBody](t, rec).Error.Code)

	rec = f.do(t, http.MethodPost, "/admin/api/pages", body, "Origin", "https://admin.trattoria.example")
	assert.Equal(t, http.StatusCreated, rec.Code)

	// httptest requests target example.com.
	rec = f.do(t, http.MethodPost, "/admin/api/pages", map[string]interface{}{"slug": "bar"}, "Origin", "http://example.com")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestBuildCSPHeader(t *testing.T) {
	csp := buildCSPHeader(&CSPConfig{
		DefaultSrc:              []string{"'self'"},
		ImgSrc:                  []string{"'self'", "https:"},
		UpgradeInsecureRequests: true,
	})
	assert.Equal(t, "default-src 'self'; img-src 'self' https:; upgrade-insecure-requests", csp)
	assert.Contains(t, buildCSPHeader(ProductionSecurityConfig().CSP), "connect-src 'self' wss:")
}
