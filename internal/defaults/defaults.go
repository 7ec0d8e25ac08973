// Package defaults holds the curated content shown for a page before an
// administrator has populated it. The records are section-shaped so they go
// through the same registry as persisted sections, but they are never written
// to the repository.
package defaults

import (
	"github.com/conneroisu/trattoria/internal/content"
)

// IDPrefix marks section ids that come from this package.
const IDPrefix = "default:"

// For returns the default sections for a slug, in display order. Unknown
// slugs yield nil. Each call returns fresh copies.
func For(slug string) []content.Section {
	build, ok := catalogue[slug]
	if !ok {
		return nil
	}

	specs := build()
	sections := make([]content.Section, len(specs))
	for i, s := range specs {
		sections[i] = content.Section{
			ID:        IDPrefix + slug + ":" + s.sectionType,
			PageID:    IDPrefix + slug,
			Type:      s.sectionType,
			Content:   s.doc,
			IsVisible: true,
			SortOrder: i + 1,
		}
	}
	return sections
}

// Slugs returns the slugs that have defaults.
func Slugs() []string {
	return []string{"home", "about", "menu", "gallery", "contact"}
}

// Has reports whether a slug has defaults.
func Has(slug string) bool {
	_, ok := catalogue[slug]
	return ok
}

type spec struct {
	sectionType string
	doc         content.Document
}

var catalogue = map[string]func() []spec{
	"home": func() []spec {
		return []spec{
			{content.TypeHero, content.Document{
				"subtitle":    "Seasonal cooking, generous portions, and a table waiting for you.",
				"buttonLabel": "Book a table",
				"buttonHref":  "/bookings",
			}},
			{content.TypeMenuHighlights, content.Document{
				"heading": "From our kitchen",
			}},
			{content.TypeTestimonials, content.Document{
				"heading": "What our guests say",
				"items": []interface{}{
					map[string]interface{}{"author": "A regular", "quote": "Feels like eating at a friend's house.", "rating": 5},
				},
			}},
			{content.TypeCTA, content.Document{
				"heading":     "Hungry yet?",
				"text":        "Reserve online in under a minute.",
				"buttonLabel": "Reserve",
				"buttonHref":  "/bookings",
			}},
		}
	},
	"about": func() []spec {
		return []spec{
			{content.TypeAboutStory, content.Document{
				"heading": "Our story",
				"paragraphs": []interface{}{
					"We started with a handful of family recipes and a small dining room.",
					"Every dish is still made from scratch, every day.",
				},
			}},
			{content.TypeOpeningHours, content.Document{
				"heading": "Visit us",
			}},
		}
	},
	"menu": func() []spec {
		return []spec{
			{content.TypeRichText, content.Document{
				"html": "<h2>Our menu</h2><p>The menu changes with the seasons. Ask your server about today's specials.</p>",
			}},
		}
	},
	"gallery": func() []spec {
		return []spec{
			{content.TypeGallery, content.Document{
				"heading": "Gallery",
			}},
		}
	},
	"contact": func() []spec {
		return []spec{
			{content.TypeOpeningHours, content.Document{
				"heading": "Find us",
			}},
			{content.TypeCTA, content.Document{
				"heading":     "Planning an event?",
				"text":        "Private dining for groups of ten or more.",
				"buttonLabel": "Get in touch",
				"buttonHref":  "/bookings?type=event",
			}},
		}
	},
}
