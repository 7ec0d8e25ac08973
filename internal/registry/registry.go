// Package registry maps section type tags to the functions that render them.
//
// The registry is populated once at startup and then sealed; after Seal it is
// a read-only lookup table and Register fails. Resolve never fails loudly: a
// missing tag is reported through the boolean so callers can skip the section.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/a-h/templ"

	"github.com/conneroisu/trattoria/internal/content"
)

// ErrSealed is returned by Register once the registry has been sealed.
var ErrSealed = errors.New("registry is sealed")

// Input is everything a renderer gets for one section.
type Input struct {
	SectionID string
	Body      content.Body
	Tenant    content.TenantContext
}

// RenderFunc turns a decoded section body into a component.
type RenderFunc func(in Input) templ.Component

// Registry is the type -> renderer lookup table.
type Registry struct {
	renderers map[string]RenderFunc
	sealed    bool
	mutex     sync.RWMutex
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		renderers: make(map[string]RenderFunc),
	}
}

// Register adds the renderer for a type tag.
func (r *Registry) Register(sectionType string, fn RenderFunc) error {
	if sectionType == "" {
		return fmt.Errorf("register: empty section type")
	}
	if fn == nil {
		return fmt.Errorf("register %q: nil render function", sectionType)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.sealed {
		return fmt.Errorf("register %q: %w", sectionType, ErrSealed)
	}
	if _, exists := r.renderers[sectionType]; exists {
		return fmt.Errorf("register %q: already registered", sectionType)
	}

	r.renderers[sectionType] = fn
	return nil
}

// MustRegister is Register for startup code where a failure is a bug.
func (r *Registry) MustRegister(sectionType string, fn RenderFunc) {
	if err := r.Register(sectionType, fn); err != nil {
		panic(err)
	}
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.mutex.Lock()
	r.sealed = true
	r.mutex.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.sealed
}

// Resolve returns the renderer for a type tag.
func (r *Registry) Resolve(sectionType string) (RenderFunc, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	fn, ok := r.renderers[sectionType]
	return fn, ok
}

// Types returns the registered tags in sorted order.
func (r *Registry) Types() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	types := make([]string, 0, len(r.renderers))
	for t := range r.renderers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count returns the number of registered renderers.
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.renderers)
}
