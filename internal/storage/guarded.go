package storage

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/conneroisu/trattoria/internal/content"
	siteerrors "github.com/conneroisu/trattoria/internal/errors"
	"github.com/conneroisu/trattoria/internal/logging"
	"github.com/conneroisu/trattoria/internal/metrics"
)

var _ content.Repository = (*Guarded)(nil)

// GuardConfig tunes a Guarded repository.
type GuardConfig struct {
	Name        string
	CallTimeout time.Duration
	// MinRequests and FailureRatio decide when the breaker opens.
	MinRequests  uint32
	FailureRatio float64
	// Interval clears closed-state counts; zero never clears them.
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	MaxProbes   uint32
}

// DefaultGuardConfig returns the production breaker settings.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Name:         "content-repository",
		CallTimeout:  2 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
		Interval:     time.Minute,
		OpenTimeout:  30 * time.Second,
		MaxProbes:    2,
	}
}

// Guarded bounds every repository call with a deadline and a circuit
// breaker. Infrastructure failures surface as unavailable errors; domain
// outcomes (not found, conflicts, forbidden deletes) pass through untouched
// and do not count against the breaker.
type Guarded struct {
	inner   content.Repository
	cb      *gobreaker.CircuitBreaker[any]
	timeout time.Duration
	name    string
	logger  logging.Logger
}

// NewGuarded wraps inner.
func NewGuarded(inner content.Repository, cfg GuardConfig, logger logging.Logger) *Guarded {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("storage")
	name := cfg.Name

	metrics.RepositoryBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxProbes,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isDomainError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info(context.Background(), "Repository breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
			metrics.RepositoryBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Guarded{
		inner:   inner,
		cb:      cb,
		timeout: cfg.CallTimeout,
		name:    name,
		logger:  logger,
	}
}

// State returns the breaker state.
func (g *Guarded) State() gobreaker.State {
	return g.cb.State()
}

func guard[T any](g *Guarded, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	result, err := g.cb.Execute(func() (any, error) {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return fn(callCtx)
	})

	switch {
	case err == nil:
		metrics.RepositoryCallsTotal.WithLabelValues(op, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RepositoryCallsTotal.WithLabelValues(op, "rejected").Inc()
		return zero, siteerrors.NewUnavailableError(op, err)
	case isDomainError(err):
		metrics.RepositoryCallsTotal.WithLabelValues(op, "success").Inc()
		return zero, err
	default:
		metrics.RepositoryCallsTotal.WithLabelValues(op, "failure").Inc()
		g.logger.Warn(ctx, err, "Repository call failed", "op", op)
		return zero, siteerrors.NewUnavailableError(op, err)
	}

	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, siteerrors.NewInternalError("UNEXPECTED_RESULT", "unexpected result type for "+op, nil)
	}
	return typed, nil
}

type none struct{}

func guardErr(g *Guarded, ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := guard(g, ctx, op, func(ctx context.Context) (none, error) {
		return none{}, fn(ctx)
	})
	return err
}

// GetPage implements content.Repository.
func (g *Guarded) GetPage(ctx context.Context, slug string) (*content.Page, error) {
	return guard(g, ctx, "get_page", func(ctx context.Context) (*content.Page, error) {
		return g.inner.GetPage(ctx, slug)
	})
}

// GetPageByID implements content.Repository.
func (g *Guarded) GetPageByID(ctx context.Context, id string) (*content.Page, error) {
	return guard(g, ctx, "get_page_by_id", func(ctx context.Context) (*content.Page, error) {
		return g.inner.GetPageByID(ctx, id)
	})
}

// ListPages implements content.Repository.
func (g *Guarded) ListPages(ctx context.Context) ([]content.Page, error) {
	return guard(g, ctx, "list_pages", func(ctx context.Context) ([]content.Page, error) {
		return g.inner.ListPages(ctx)
	})
}

// CreatePage implements content.Repository.
func (g *Guarded) CreatePage(ctx context.Context, in content.PageInput) (*content.Page, error) {
	return guard(g, ctx, "create_page", func(ctx context.Context) (*content.Page, error) {
		return g.inner.CreatePage(ctx, in)
	})
}

// UpdatePage implements content.Repository.
func (g *Guarded) UpdatePage(ctx context.Context, id string, upd content.PageUpdate) (*content.Page, error) {
	return guard(g, ctx, "update_page", func(ctx context.Context) (*content.Page, error) {
		return g.inner.UpdatePage(ctx, id, upd)
	})
}

// DeletePage implements content.Repository.
func (g *Guarded) DeletePage(ctx context.Context, id string) error {
	return guardErr(g, ctx, "delete_page", func(ctx context.Context) error {
		return g.inner.DeletePage(ctx, id)
	})
}

// GetSection implements content.Repository.
func (g *Guarded) GetSection(ctx context.Context, id string) (*content.Section, error) {
	return guard(g, ctx, "get_section", func(ctx context.Context) (*content.Section, error) {
		return g.inner.GetSection(ctx, id)
	})
}

// ListSections implements content.Repository.
func (g *Guarded) ListSections(ctx context.Context, pageID string) ([]content.Section, error) {
	return guard(g, ctx, "list_sections", func(ctx context.Context) ([]content.Section, error) {
		return g.inner.ListSections(ctx, pageID)
	})
}

// CreateSection implements content.Repository.
func (g *Guarded) CreateSection(ctx context.Context, in content.SectionInput) (*content.Section, error) {
	return guard(g, ctx, "create_section", func(ctx context.Context) (*content.Section, error) {
		return g.inner.CreateSection(ctx, in)
	})
}

// UpdateSection implements content.Repository.
func (g *Guarded) UpdateSection(ctx context.Context, id string, upd content.SectionUpdate) (*content.Section, error) {
	return guard(g, ctx, "update_section", func(ctx context.Context) (*content.Section, error) {
		return g.inner.UpdateSection(ctx, id, upd)
	})
}

// DeleteSection implements content.Repository.
func (g *Guarded) DeleteSection(ctx context.Context, id string) error {
	return guardErr(g, ctx, "delete_section", func(ctx context.Context) error {
		return g.inner.DeleteSection(ctx, id)
	})
}

// isDomainError reports errors that describe the request rather than the
// health of the backend.
func isDomainError(err error) bool {
	var se *siteerrors.SiteError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Type {
	case siteerrors.ErrorTypeNotFound, siteerrors.ErrorTypeConflict,
		siteerrors.ErrorTypeForbidden, siteerrors.ErrorTypeValidation:
		return true
	default:
		return false
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
