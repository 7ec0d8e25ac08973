// Package seed provisions pages and their initial sections from a YAML file.
//
// Provisioning is additive: a page that already exists is left alone along
// with its sections, so operators can re-run it (or let the watcher re-run
// it) without clobbering edits made through the admin pipeline.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/trattoria/internal/content"
	"github.com/conneroisu/trattoria/internal/defaults"
	siteerrors "github.com/conneroisu/trattoria/internal/errors"
	"github.com/conneroisu/trattoria/internal/validation"
)

// File is the parsed seed document.
//
//	pages:
//	  - slug: home
//	    system: true
//	    sections:
//	      - type: hero
//	        content:
//	          subtitle: Since 1962
type File struct {
	Pages []PageSpec `yaml:"pages" json:"pages" validate:"unique=Slug,dive"`
}

// PageSpec describes one page. Title defaults to the slug in title case and
// Visible defaults to true.
type PageSpec struct {
	Slug     string        `yaml:"slug" json:"slug" validate:"required,max=64,slug"`
	Title    string        `yaml:"title" json:"title" validate:"max=200"`
	System   bool          `yaml:"system" json:"system"`
	Visible  *bool         `yaml:"visible" json:"visible"`
	Sections []SectionSpec `yaml:"sections" json:"sections" validate:"dive"`
}

// SectionSpec describes one section of a new page. SortOrder defaults to
// the section's 1-based position in the list.
type SectionSpec struct {
	Type      string    `yaml:"type" json:"type" validate:"required,max=64,slug"`
	Visible   *bool     `yaml:"visible" json:"visible"`
	SortOrder *int      `yaml:"sortOrder" json:"sortOrder"`
	Content   yaml.Node `yaml:"content" json:"-" validate:"-"`
}

// Load reads and validates a seed file.
func Load(path string) (*File, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, siteerrors.NewConfigError("SEED_PATH", err.Error()).WithContext("path", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, siteerrors.NewConfigError("SEED_READ", fmt.Sprintf("read seed file: %v", err)).WithContext("path", path)
	}
	f, err := Parse(data)
	if err != nil {
		var se *siteerrors.SiteError
		if errors.As(err, &se) {
			return nil, se.WithContext("path", path)
		}
		return nil, err
	}
	return f, nil
}

// Parse decodes and validates seed YAML. Unknown keys are rejected so typos
// surface instead of being silently ignored.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, siteerrors.NewValidationError("SEED_PARSE", fmt.Sprintf("parse seed file: %v", err))
	}
	if err := validation.Check(&f); err != nil {
		return nil, err
	}
	for _, p := range f.Pages {
		for i, s := range p.Sections {
			if _, err := s.Document(); err != nil {
				return nil, siteerrors.NewValidationError("SEED_CONTENT",
					fmt.Sprintf("page %q section %d (%s): %v", p.Slug, i+1, s.Type, err))
			}
		}
	}
	return &f, nil
}

// DefaultFile lists the system pages every site starts with. They carry no
// sections, so they compose from the default content until edited.
func DefaultFile() *File {
	slugs := defaults.Slugs()
	f := &File{Pages: make([]PageSpec, len(slugs))}
	for i, slug := range slugs {
		f.Pages[i] = PageSpec{Slug: slug, System: true}
	}
	return f
}

// PageInput converts p into a repository create request.
func (p PageSpec) PageInput() content.PageInput {
	title := strings.TrimSpace(validation.SanitizeInput(p.Title))
	if title == "" {
		title = TitleFromSlug(p.Slug)
	}
	return content.PageInput{
		Slug:      p.Slug,
		Title:     title,
		IsSystem:  p.System,
		IsVisible: p.Visible == nil || *p.Visible,
	}
}

// SectionInput converts s at position i into a create request.
func (s SectionSpec) SectionInput(pageID string, i int) (content.SectionInput, error) {
	doc, err := s.Document()
	if err != nil {
		return content.SectionInput{}, err
	}
	order := i + 1
	if s.SortOrder != nil {
		order = *s.SortOrder
	}
	return content.SectionInput{
		PageID:    pageID,
		Type:      s.Type,
		Content:   doc,
		IsVisible: s.Visible == nil || *s.Visible,
		SortOrder: order,
	}, nil
}

// Document returns the section content. A missing content key is an empty
// document; anything other than a mapping is an error.
func (s SectionSpec) Document() (content.Document, error) {
	if s.Content.Kind == 0 || s.Content.Tag == "!!null" {
		return content.Document{}, nil
	}
	raw, err := yaml.Marshal(&s.Content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	return content.ParseDocument(string(raw))
}

// TitleFromSlug turns "private-dining" into "Private Dining".
func TitleFromSlug(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	return cases.Title(language.Und).String(strings.Join(words, " "))
}
