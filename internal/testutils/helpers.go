// Package testutils holds fixtures shared by package tests: page seeding
// helpers and a fault-injecting repository wrapper.
package testutils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/trattoria/internal/content"
)

// TestTenant is the site identity used across tests.
var TestTenant = content.TenantContext{
	SiteName: "Trattoria Nonna",
	Branch:   "centro",
	Locale:   "en",
	Phone:    "+39 06 555 0101",
	Address:  "Via Roma 1",
}

// SectionSpec describes a section to seed.
type SectionSpec struct {
	Type      string
	Content   content.Document
	Hidden    bool
	SortOrder int
}

// SeedPage creates a visible page and its sections, in the given order.
func SeedPage(t testing.TB, repo content.Repository, slug string, specs ...SectionSpec) (*content.Page, []content.Section) {
	t.Helper()
	ctx := context.Background()

	page, err := repo.CreatePage(ctx, content.PageInput{Slug: slug, Title: slug, IsVisible: true})
	require.NoError(t, err)

	sections := make([]content.Section, 0, len(specs))
	for _, spec := range specs {
		s, err := repo.CreateSection(ctx, content.SectionInput{
			PageID:    page.ID,
			Type:      spec.Type,
			Content:   spec.Content,
			IsVisible: !spec.Hidden,
			SortOrder: spec.SortOrder,
		})
		require.NoError(t, err)
		sections = append(sections, *s)
	}
	return page, sections
}
