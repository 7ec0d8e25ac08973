package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/conneroisu/trattoria/internal/content"
)

// Operation names understood by FaultyRepository.
const (
	OpGetPage       = "get_page"
	OpGetPageByID   = "get_page_by_id"
	OpListPages     = "list_pages"
	OpCreatePage    = "create_page"
	OpUpdatePage    = "update_page"
	OpDeletePage    = "delete_page"
	OpGetSection    = "get_section"
	OpListSections  = "list_sections"
	OpCreateSection = "create_section"
	OpUpdateSection = "update_section"
	OpDeleteSection = "delete_section"
)

// Common injected failures.
var (
	ErrConnectionLost = errors.New("connection lost")
	ErrRejected       = errors.New("write rejected by backend")
)

// ErrorInjector provides controlled failure injection for testing.
type ErrorInjector struct {
	targets map[string]*ErrorTarget
	mu      sync.Mutex
}

// ErrorTarget is one injection point.
type ErrorTarget struct {
	Name      string
	Error     error
	Count     int64 // injections performed
	Remaining int64 // -1 for unlimited
	Skip      int64 // calls let through before injecting
	Delay     time.Duration
	// Gate, when set, holds the call until it is closed or the context ends.
	Gate chan struct{}
}

// NewErrorInjector creates an injector with no targets.
func NewErrorInjector() *ErrorInjector {
	return &ErrorInjector{targets: make(map[string]*ErrorTarget)}
}

// InjectError makes every call to operation fail with err. A nil err with a
// delay or gate only slows the call down.
func (ei *ErrorInjector) InjectError(operation string, err error) *ErrorTarget {
	ei.mu.Lock()
	defer ei.mu.Unlock()

	target := &ErrorTarget{Name: operation, Error: err, Remaining: -1}
	ei.targets[operation] = target
	return target
}

// InjectErrorOnce fails the next call to operation only.
func (ei *ErrorInjector) InjectErrorOnce(operation string, err error) *ErrorTarget {
	target := ei.InjectError(operation, err)
	target.Remaining = 1
	return target
}

// RemoveTarget stops injecting into operation.
func (ei *ErrorInjector) RemoveTarget(operation string) {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	delete(ei.targets, operation)
}

// Clear removes all targets.
func (ei *ErrorInjector) Clear() {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	ei.targets = make(map[string]*ErrorTarget)
}

// Injections returns how many times operation has been hit.
func (ei *ErrorInjector) Injections(operation string) int64 {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	if t, ok := ei.targets[operation]; ok {
		return t.Count
	}
	return 0
}

// Apply blocks for any configured delay or gate and returns the injected
// error, if any.
func (ei *ErrorInjector) Apply(ctx context.Context, operation string) error {
	ei.mu.Lock()
	target, ok := ei.targets[operation]
	if !ok || target.Remaining == 0 {
		ei.mu.Unlock()
		return nil
	}
	if target.Skip > 0 {
		target.Skip--
		ei.mu.Unlock()
		return nil
	}
	target.Count++
	if target.Remaining > 0 {
		target.Remaining--
	}
	delay, gate, err := target.Delay, target.Gate, target.Error
	ei.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// AfterCalls lets the next n calls through before injecting.
func (et *ErrorTarget) AfterCalls(n int64) *ErrorTarget {
	et.Skip = n
	return et
}

// WithDelay sets the injection delay.
func (et *ErrorTarget) WithDelay(delay time.Duration) *ErrorTarget {
	et.Delay = delay
	return et
}

// WithGate holds calls until gate is closed.
func (et *ErrorTarget) WithGate(gate chan struct{}) *ErrorTarget {
	et.Gate = gate
	return et
}

// FaultyRepository wraps a repository and consults an ErrorInjector before
// every call.
type FaultyRepository struct {
	Inner    content.Repository
	Injector *ErrorInjector

	mu    sync.Mutex
	calls map[string]int
}

var _ content.Repository = (*FaultyRepository)(nil)

// NewFaultyRepository wraps inner.
func NewFaultyRepository(inner content.Repository) *FaultyRepository {
	return &FaultyRepository{
		Inner:    inner,
		Injector: NewErrorInjector(),
		calls:    make(map[string]int),
	}
}

// Calls returns how many times operation was invoked.
func (f *FaultyRepository) Calls(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[operation]
}

func (f *FaultyRepository) before(ctx context.Context, operation string) error {
	f.mu.Lock()
	f.calls[operation]++
	f.mu.Unlock()
	return f.Injector.Apply(ctx, operation)
}

func (f *FaultyRepository) GetPage(ctx context.Context, slug string) (*content.Page, error) {
	if err := f.before(ctx, OpGetPage); err != nil {
		return nil, err
	}
	return f.Inner.GetPage(ctx, slug)
}

func (f *FaultyRepository) GetPageByID(ctx context.Context, id string) (*content.Page, error) {
	if err := f.before(ctx, OpGetPageByID); err != nil {
		return nil, err
	}
	return f.Inner.GetPageByID(ctx, id)
}

func (f *FaultyRepository) ListPages(ctx context.Context) ([]content.Page, error) {
	if err := f.before(ctx, OpListPages); err != nil {
		return nil, err
	}
	return f.Inner.ListPages(ctx)
}

func (f *FaultyRepository) CreatePage(ctx context.Context, in content.PageInput) (*content.Page, error) {
	if err := f.before(ctx, OpCreatePage); err != nil {
		return nil, err
	}
	return f.Inner.CreatePage(ctx, in)
}

func (f *FaultyRepository) UpdatePage(ctx context.Context, id string, upd content.PageUpdate) (*content.Page, error) {
	if err := f.before(ctx, OpUpdatePage); err != nil {
		return nil, err
	}
	return f.Inner.UpdatePage(ctx, id, upd)
}

func (f *FaultyRepository) DeletePage(ctx context.Context, id string) error {
	if err := f.before(ctx, OpDeletePage); err != nil {
		return err
	}
	return f.Inner.DeletePage(ctx, id)
}

func (f *FaultyRepository) GetSection(ctx context.Context, id string) (*content.Section, error) {
	if err := f.before(ctx, OpGetSection); err != nil {
		return nil, err
	}
	return f.Inner.GetSection(ctx, id)
}

func (f *FaultyRepository) ListSections(ctx context.Context, pageID string) ([]content.Section, error) {
	if err := f.before(ctx, OpListSections); err != nil {
		return nil, err
	}
	return f.Inner.ListSections(ctx, pageID)
}

func (f *FaultyRepository) CreateSection(ctx context.Context, in content.SectionInput) (*content.Section, error) {
	if err := f.before(ctx, OpCreateSection); err != nil {
		return nil, err
	}
	return f.Inner.CreateSection(ctx, in)
}

func (f *FaultyRepository) UpdateSection(ctx context.Context, id string, upd content.SectionUpdate) (*content.Section, error) {
	if err := f.before(ctx, OpUpdateSection); err != nil {
		return nil, err
	}
	return f.Inner.UpdateSection(ctx, id, upd)
}

func (f *FaultyRepository) DeleteSection(ctx context.Context, id string) error {
	if err := f.before(ctx, OpDeleteSection); err != nil {
		return err
	}
	return f.Inner.DeleteSection(ctx, id)
}
