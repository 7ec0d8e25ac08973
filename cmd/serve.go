package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/trattoria/internal/editor"
	"github.com/conneroisu/trattoria/internal/pubsub"
	"github.com/conneroisu/trattoria/internal/seed"
	"github.com/conneroisu/trattoria/internal/server"
	"github.com/conneroisu/trattoria/internal/watcher"
	"github.com/conneroisu/trattoria/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the public site and the admin API",
	Long: `Start the HTTP server. Missing standard pages are provisioned on
startup, then the seed file (seed.path) is applied when one is configured.
With seed.watch enabled the seed file is re-applied whenever it changes.

Saved admin edits are pushed to open tabs over /live unless live.enabled
is false.

Examples:
  trattoria serve                       # Serve on localhost:8080
  trattoria serve -p 3000               # Serve on port 3000
  TRATTORIA_STORAGE_DRIVER=memory trattoria serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	AddStandardFlags(serveCmd, "server")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := loadSite(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	app, err := newApplication(ctx, s)
	if err != nil {
		return err
	}
	defer app.stop()

	s.logger.Info(ctx, "Starting trattoria", "addr", s.cfg.Address(), "live", s.cfg.Live.Enabled)
	return app.server.Start(ctx)
}

// application is a fully wired server with its background helpers.
type application struct {
	server   *server.Server
	broker   *pubsub.Broker
	watcher  *watcher.FileWatcher
	cancel   context.CancelFunc
	stopOnce bool
}

// newApplication provisions content and wires the editor, live channel and
// HTTP server on top of s.
func newApplication(ctx context.Context, s *site) (*application, error) {
	ctx, cancel := context.WithCancel(ctx)
	app := &application{cancel: cancel}

	app.broker = pubsub.NewBroker(s.cfg.Live.BufferSize, s.logger)
	ed := editor.New(s.repo, app.broker, s.logger)

	prov := seed.NewProvisioner(s.repo, app.broker, s.logger)
	if res, err := prov.Apply(ctx, seed.DefaultFile()); err != nil {
		// The site still serves defaults while storage is down.
		s.logger.Warn(ctx, err, "Provisioning standard pages failed")
	} else if len(res.Created) > 0 {
		s.logger.Info(ctx, "Provisioned standard pages", "created", res.Created)
	}

	if path := s.cfg.Seed.Path; path != "" {
		if _, err := prov.ApplyFile(ctx, path); err != nil {
			app.stop()
			return nil, fmt.Errorf("apply seed file: %w", err)
		}
		if s.cfg.Seed.Watch {
			fw, err := prov.Watch(ctx, path, s.cfg.Seed.Debounce)
			if err != nil {
				app.stop()
				return nil, err
			}
			app.watcher = fw
		}
	}

	deps := server.Deps{
		Config:    s.cfg,
		Repo:      s.repo,
		Composer:  s.composer,
		Editor:    ed,
		Registry:  s.registry,
		Publisher: app.broker,
		Checks:    s.checks,
		Logger:    s.logger,
	}

	if s.cfg.Live.Enabled {
		limiter := websocket.NewIPRateLimiter(s.cfg.Live.ConnectionsPerMinute, s.cfg.Live.Burst)
		origins := websocket.NewAllowList(s.cfg.Server.Host, s.cfg.Server.Port, s.cfg.Server.AllowedOrigins)
		deps.Live = websocket.NewManager(app.broker, origins, limiter, s.logger)
		go sweepLimiter(ctx, limiter)
	}

	srv, err := server.New(deps)
	if err != nil {
		app.stop()
		return nil, err
	}
	app.server = srv
	return app, nil
}

// stop shuts the server down and releases background resources.
func (a *application) stop() {
	if a.stopOnce {
		return
	}
	a.stopOnce = true
	a.cancel()
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.server.Shutdown(ctx)
		cancel()
	}
	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	a.broker.Close()
}

func sweepLimiter(ctx context.Context, limiter *websocket.IPRateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Cleanup(10 * time.Minute)
		}
	}
}
