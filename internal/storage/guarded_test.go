package storage

import (
	"context"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/trattoria/internal/content"
	siteerrors "github.com/conneroisu/trattoria/internal/errors"
	"github.com/conneroisu/trattoria/internal/testutils"
)

func testGuardConfig() GuardConfig {
	cfg := DefaultGuardConfig()
	cfg.Name = "test"
	cfg.CallTimeout = 50 * time.Millisecond
	cfg.MinRequests = 3
	cfg.OpenTimeout = time.Hour
	return cfg
}

func TestGuarded_PassesThrough(t *testing.T) {
	g := NewGuarded(NewMemoryStore(), testGuardConfig(), nil)
	ctx := context.Background()

	page, _ := testutils.SeedPage(t, g, "home", testutils.SectionSpec{Type: "hero", SortOrder: 1})

	sections, err := g.ListSections(ctx, page.ID)
	require.NoError(t, err)
	assert.Len(t, sections, 1)
}

func TestGuarded_TimeoutIsUnavailable(t *testing.T) {
	faulty := testutils.NewFaultyRepository(NewMemoryStore())
	faulty.Injector.InjectError(testutils.OpGetPage, nil).WithDelay(time.Second)
	g := NewGuarded(faulty, testGuardConfig(), nil)

	start := time.Now()
	_, err := g.GetPage(context.Background(), "home")

	require.Error(t, err)
	assert.True(t, siteerrors.IsUnavailable(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGuarded_BackendErrorIsUnavailable(t *testing.T) {
	faulty := testutils.NewFaultyRepository(NewMemoryStore())
	faulty.Injector.InjectErrorOnce(testutils.OpListPages, testutils.ErrConnectionLost)
	g := NewGuarded(faulty, testGuardConfig(), nil)

	_, err := g.ListPages(context.Background())
	assert.True(t, siteerrors.IsUnavailable(err))
	assert.ErrorIs(t, err, testutils.ErrConnectionLost)
}

func TestGuarded_NotFoundDoesNotTrip(t *testing.T) {
	g := NewGuarded(NewMemoryStore(), testGuardConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := g.GetPage(ctx, "missing")
		require.True(t, siteerrors.IsNotFound(err))
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestGuarded_OpensAfterRepeatedFailures(t *testing.T) {
	faulty := testutils.NewFaultyRepository(NewMemoryStore())
	faulty.Injector.InjectError(testutils.OpGetPage, testutils.ErrConnectionLost)
	g := NewGuarded(faulty, testGuardConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = g.GetPage(ctx, "home")
	}
	require.Equal(t, gobreaker.StateOpen, g.State())

	callsBefore := faulty.Calls(testutils.OpGetPage)
	_, err := g.GetPage(ctx, "home")
	assert.True(t, siteerrors.IsUnavailable(err))
	assert.Equal(t, callsBefore, faulty.Calls(testutils.OpGetPage), "open breaker must not reach the backend")
}

func TestGuarded_DomainErrorsPassUntouched(t *testing.T) {
	g := NewGuarded(NewMemoryStore(), testGuardConfig(), nil)
	ctx := context.Background()

	page, err := g.CreatePage(ctx, content.PageInput{Slug: "home", IsSystem: true})
	require.NoError(t, err)

	err = g.DeletePage(ctx, page.ID)
	assert.ErrorIs(t, err, siteerrors.ErrSystemPage)
	assert.False(t, siteerrors.IsUnavailable(err))
}
