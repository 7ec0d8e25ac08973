// Package server is the HTTP surface of the site: composed public pages, the
// composed-page JSON used by open tabs to refetch, the admin API driving the
// edit pipeline, the /live websocket endpoint and the operational routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/trattoria/internal/composer"
	"github.com/conneroisu/trattoria/internal/config"
	"github.com/conneroisu/trattoria/internal/content"
	"github.com/conneroisu/trattoria/internal/editor"
	"github.com/conneroisu/trattoria/internal/logging"
	"github.com/conneroisu/trattoria/internal/pubsub"
	"github.com/conneroisu/trattoria/internal/registry"
	"github.com/conneroisu/trattoria/internal/websocket"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// LiveEndpoint is the websocket handler mounted at /live.
type LiveEndpoint interface {
	http.Handler
	ConnectedClients() int
	Clients() []websocket.ClientInfo
	IsShutdown() bool
	Shutdown(ctx context.Context) error
}

// Deps are the collaborators the server routes requests to. Live and
// Publisher are optional.
type Deps struct {
	Config    *config.Config
	Repo      content.Repository
	Composer  *composer.Composer
	Editor    *editor.Editor
	Registry  *registry.Registry
	Publisher pubsub.Publisher
	Live      LiveEndpoint
	Checks    map[string]HealthCheck
	Logger    logging.Logger
}

// Server serves the site.
type Server struct {
	config    *config.Config
	repo      content.Repository
	composer  *composer.Composer
	editor    *editor.Editor
	registry  *registry.Registry
	publisher pubsub.Publisher
	live      LiveEndpoint
	checks    map[string]HealthCheck
	logger    logging.Logger
	router    chi.Router

	httpServer  *http.Server
	serverMutex sync.Mutex
	started     time.Time
}

// New builds the server and its routes. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Repo == nil || deps.Composer == nil || deps.Editor == nil || deps.Registry == nil {
		return nil, errors.New("server: config, repository, composer, editor and registry are required")
	}
	if deps.Publisher == nil {
		deps.Publisher = pubsub.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}

	s := &Server{
		config:    deps.Config,
		repo:      deps.Repo,
		composer:  deps.Composer,
		editor:    deps.Editor,
		registry:  deps.Registry,
		publisher: deps.Publisher,
		live:      deps.Live,
		checks:    deps.Checks,
		logger:    deps.Logger.WithComponent("server"),
		started:   time.Now(),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	secConfig := DefaultSecurityConfig()
	if s.config.IsProduction() {
		secConfig = ProductionSecurityConfig()
	}
	secConfig.AllowedOrigins = s.config.Server.AllowedOrigins
	secConfig.Logger = s.logger

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(RequestIDWithLogging())
	r.Use(RequestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(SecurityMiddleware(secConfig))

	r.NotFound(s.handleNotFound)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/assets/*", assetHandler())
	if s.live != nil {
		r.Handle("/live", s.live)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.Server.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
			AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader},
			MaxAge:         300,
		}))
		r.Get("/pages/{slug}", s.handlePageJSON)
	})

	r.Route("/admin/api", s.adminRoutes)

	r.Get("/", s.handleHome)
	r.Get("/{slug}", s.handlePage)

	return r
}

// Start listens on the configured address and serves until ctx is done or
// Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.config.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		// Websocket connections manage their own write deadlines.
		WriteTimeout: 0,
		IdleTimeout:  2 * time.Minute,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	srv := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Server listening", "addr", ln.Addr().String(), "environment", s.config.Server.Environment)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// Shutdown closes live connections first, then drains HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.live != nil {
		if err := s.live.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown live clients: %w", err))
		}
	}

	s.serverMutex.Lock()
	srv := s.httpServer
	s.serverMutex.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}

	s.logger.Info(ctx, "Server stopped")
	return errors.Join(errs...)
}
