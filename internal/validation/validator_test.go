package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/trattoria/internal/content"
	siteerrors "github.com/conneroisu/trattoria/internal/errors"
)

func TestIsSlug(t *testing.T) {
	tests := []struct {
		slug string
		want bool
	}{
		{"home", true},
		{"about-us", true},
		{"menu-2025", true},
		{"", false},
		{"About", false},
		{"about--us", false},
		{"-about", false},
		{"about-", false},
		{"about us", false},
		{"../etc", false},
		{"caffè", false},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSlug(tt.slug))
		})
	}
}

func TestValidateStruct_PageInput(t *testing.T) {
	assert.NoError(t, ValidateStruct(&content.PageInput{Slug: "events", Title: "Events"}))

	err := ValidateStruct(&content.PageInput{Slug: "Bad Slug"})
	require.Error(t, err)

	var ve *RequestValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "slug", ve.Fields[0].Field, "json names are reported")
	assert.Equal(t, "slug", ve.Fields[0].Tag)
	assert.Contains(t, ve.Error(), "single hyphens")
}

func TestValidateStruct_MultipleFields(t *testing.T) {
	err := ValidateStruct(&content.SectionInput{})
	require.Error(t, err)

	var ve *RequestValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 2)
	assert.Contains(t, ve.Error(), "pageId is required")
	assert.Contains(t, ve.Error(), "type is required")
}

func TestValidateStruct_MaxLength(t *testing.T) {
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}
	err := ValidateStruct(&content.PageUpdate{Title: string(long)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title must be at most 200 characters")
}

func TestCheck_ReturnsValidationSiteError(t *testing.T) {
	assert.NoError(t, Check(&content.PageUpdate{Title: "Menu"}))

	err := Check(&content.PageUpdate{})
	require.Error(t, err)
	assert.True(t, siteerrors.IsValidation(err))
	assert.Equal(t, 422, siteerrors.HTTPStatus(err))

	var se *siteerrors.SiteError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "title", se.Context["field"])
}
