//go:build property

package watcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDebouncerProperties validates batching of rapid changes.
func TestDebouncerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	// Property: a burst yields one batch holding each touched path once
	properties.Property("burst collapses to one deduplicated batch", prop.ForAll(
		func(paths []int) bool {
			if len(paths) == 0 {
				return true
			}

			d := NewDebouncer(20 * time.Millisecond)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go d.start(ctx)

			distinct := make(map[string]bool)
			for _, p := range paths {
				name := fmt.Sprintf("file-%d.yml", p)
				distinct[name] = true
				d.Add(ChangeEvent{Path: name, Type: EventTypeModified})
			}

			select {
			case batch := <-d.Output():
				if len(batch) != len(distinct) {
					return false
				}
				seen := make(map[string]bool)
				for i, ev := range batch {
					if seen[ev.Path] || !distinct[ev.Path] {
						return false
					}
					if i > 0 && batch[i-1].Path >= ev.Path {
						return false
					}
					seen[ev.Path] = true
				}
				return true
			case <-time.After(time.Second):
				return false
			}
		},
		gen.SliceOfN(20, gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}
