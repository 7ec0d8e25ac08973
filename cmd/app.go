package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sony/gobreaker/v2"
	"github.com/spf13/viper"

	"github.com/conneroisu/trattoria/internal/composer"
	"github.com/conneroisu/trattoria/internal/config"
	"github.com/conneroisu/trattoria/internal/content"
	"github.com/conneroisu/trattoria/internal/logging"
	"github.com/conneroisu/trattoria/internal/registry"
	"github.com/conneroisu/trattoria/internal/renderer"
	"github.com/conneroisu/trattoria/internal/server"
	"github.com/conneroisu/trattoria/internal/storage"
)

// site is the set of collaborators every command builds from configuration.
type site struct {
	cfg      *config.Config
	logger   logging.Logger
	repo     *storage.Guarded
	registry *registry.Registry
	composer *composer.Composer
	checks   map[string]server.HealthCheck
	closers  []func() error
}

// loadSite reads the configuration and assembles the repository stack and
// the composer. Callers must Close the result.
func loadSite(logOutput io.Writer) (*site, error) {
	cfg, err := config.LoadFrom(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := newLogger(cfg.Log, logOutput)
	if err != nil {
		return nil, err
	}
	return openSite(cfg, logger)
}

// openSite wires storage behind the breaker and builds the renderer
// registry and composer around it.
func openSite(cfg *config.Config, logger logging.Logger) (*site, error) {
	s := &site{
		cfg:    cfg,
		logger: logger,
		checks: make(map[string]server.HealthCheck),
	}

	var inner content.Repository
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		inner = storage.NewMemoryStore()
	case config.DriverSQLite:
		db, err := storage.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open storage %s: %w", cfg.Storage.Path, err)
		}
		s.closers = append(s.closers, db.Close)
		s.checks["storage"] = db.Ping
		inner = db
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	s.repo = storage.NewGuarded(inner, cfg.GuardConfig(), logger)
	s.checks["breaker"] = func(context.Context) error {
		if s.repo.State() == gobreaker.StateOpen {
			return errors.New("repository breaker open")
		}
		return nil
	}

	s.registry = renderer.NewRegistry()
	s.composer = composer.New(s.repo, s.registry, cfg.TenantContext(), composer.WithLogger(logger))

	logger.Debug(context.Background(), "Site assembled",
		"driver", cfg.Storage.Driver,
		"section_types", s.registry.Count(),
	)
	return s, nil
}

// Close releases storage handles.
func (s *site) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stderr
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Format,
		Output: out,
	}), nil
}
