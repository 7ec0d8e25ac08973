// Package renderer provides the built-in section renderers.
//
// Every renderer is a registry.RenderFunc returning a templ component. A
// renderer never fails on missing or malformed content: empty fields fall
// back to tenant-derived or fixed defaults, and list entries that lack their
// essential field are skipped. Rich HTML fragments pass through Sanitize.
package renderer

import (
	"io"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/trattoria/internal/content"
	"github.com/conneroisu/trattoria/internal/registry"
)

// Builtins returns the renderers for every known section type, keyed by tag.
func Builtins() map[string]registry.RenderFunc {
	return map[string]registry.RenderFunc{
		content.TypeHero:           Hero,
		content.TypeAboutStory:     AboutStory,
		content.TypeTestimonials:   Testimonials,
		content.TypeCTA:            CTA,
		content.TypeGallery:        Gallery,
		content.TypeMenuHighlights: MenuHighlights,
		content.TypeOpeningHours:   OpeningHours,
		content.TypeRichText:       RichText,
	}
}

// NewRegistry builds and seals a registry holding the built-in renderers.
func NewRegistry() *registry.Registry {
	reg := registry.New()
	for _, t := range content.KnownTypes {
		reg.MustRegister(t, Builtins()[t])
	}
	reg.Seal()
	return reg
}

// Label turns a type tag into a display label: "about-story" -> "About Story".
func Label(sectionType string) string {
	words := strings.FieldsFunc(sectionType, func(r rune) bool {
		return r == '-' || r == '_'
	})
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// htmlWriter accumulates the first write error so renderers can emit markup
// without checking every call.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (hw *htmlWriter) raw(s string) {
	if hw.err != nil {
		return
	}
	_, hw.err = io.WriteString(hw.w, s)
}

func (hw *htmlWriter) text(s string) {
	hw.raw(templ.EscapeString(s))
}

func (hw *htmlWriter) tag(name, class, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	hw.raw("<" + name)
	if class != "" {
		hw.raw(` class="` + class + `"`)
	}
	hw.raw(">")
	hw.text(text)
	hw.raw("</" + name + ">")
}

func (hw *htmlWriter) open(in registry.Input, sectionType string) {
	hw.raw(`<section class="block block-` + templ.EscapeString(sectionType) + `"`)
	if in.SectionID != "" {
		hw.raw(` data-section-id="` + templ.EscapeString(in.SectionID) + `"`)
	}
	hw.raw(">")
}

func (hw *htmlWriter) close() {
	hw.raw("</section>")
}

func (hw *htmlWriter) link(href, class, label string) {
	if strings.TrimSpace(href) == "" || strings.TrimSpace(label) == "" {
		return
	}
	hw.raw(`<a href="` + templ.EscapeString(string(templ.URL(href))) + `"`)
	if class != "" {
		hw.raw(` class="` + class + `"`)
	}
	hw.raw(">")
	hw.text(label)
	hw.raw("</a>")
}

func (hw *htmlWriter) img(src, alt string) {
	if strings.TrimSpace(src) == "" {
		return
	}
	hw.raw(`<img src="` + templ.EscapeString(string(templ.URL(src))) + `" alt="` + templ.EscapeString(alt) + `" loading="lazy">`)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
