package content

import (
	"github.com/go-viper/mapstructure/v2"
)

// Section type tags with a known body shape.
const (
	TypeHero           = "hero"
	TypeAboutStory     = "about-story"
	TypeTestimonials   = "testimonials"
	TypeCTA            = "cta"
	TypeGallery        = "gallery"
	TypeMenuHighlights = "menu-highlights"
	TypeOpeningHours   = "opening-hours"
	TypeRichText       = "rich-text"
)

// KnownTypes lists every tag that decodes to a typed body, in catalogue order.
var KnownTypes = []string{
	TypeHero,
	TypeAboutStory,
	TypeMenuHighlights,
	TypeGallery,
	TypeTestimonials,
	TypeOpeningHours,
	TypeCTA,
	TypeRichText,
}

// Body is the typed content of a section. The set of implementations is
// closed; unknown tags decode to Unrecognized.
type Body interface {
	Kind() string
	isBody()
}

type Hero struct {
	Title       string `mapstructure:"title"`
	Subtitle    string `mapstructure:"subtitle"`
	ImageURL    string `mapstructure:"imageUrl"`
	ButtonLabel string `mapstructure:"buttonLabel"`
	ButtonHref  string `mapstructure:"buttonHref"`
}

type AboutStory struct {
	Heading    string   `mapstructure:"heading"`
	Paragraphs []string `mapstructure:"paragraphs"`
	ImageURL   string   `mapstructure:"imageUrl"`
	Signature  string   `mapstructure:"signature"`
}

type Testimonial struct {
	Author string `mapstructure:"author"`
	Quote  string `mapstructure:"quote"`
	Rating int    `mapstructure:"rating"`
}

type Testimonials struct {
	Heading string        `mapstructure:"heading"`
	Items   []Testimonial `mapstructure:"items"`
}

type CTA struct {
	Heading     string `mapstructure:"heading"`
	Text        string `mapstructure:"text"`
	ButtonLabel string `mapstructure:"buttonLabel"`
	ButtonHref  string `mapstructure:"buttonHref"`
}

type Image struct {
	URL     string `mapstructure:"url"`
	Alt     string `mapstructure:"alt"`
	Caption string `mapstructure:"caption"`
}

type Gallery struct {
	Heading string  `mapstructure:"heading"`
	Images  []Image `mapstructure:"images"`
}

type MenuItem struct {
	Name        string   `mapstructure:"name"`
	Description string   `mapstructure:"description"`
	Price       float64  `mapstructure:"price"`
	Tags        []string `mapstructure:"tags"`
}

type MenuHighlights struct {
	Heading  string     `mapstructure:"heading"`
	Currency string     `mapstructure:"currency"`
	Items    []MenuItem `mapstructure:"items"`
}

type HoursRow struct {
	Days  string `mapstructure:"days"`
	Hours string `mapstructure:"hours"`
}

type OpeningHours struct {
	Heading string     `mapstructure:"heading"`
	Rows    []HoursRow `mapstructure:"rows"`
	Note    string     `mapstructure:"note"`
}

type RichText struct {
	HTML string `mapstructure:"html"`
}

// Unrecognized carries the raw payload of a section whose tag has no typed
// body. It is never an error.
type Unrecognized struct {
	Type string
	Raw  Document
}

func (Hero) Kind() string           { return TypeHero }
func (AboutStory) Kind() string     { return TypeAboutStory }
func (Testimonials) Kind() string   { return TypeTestimonials }
func (CTA) Kind() string            { return TypeCTA }
func (Gallery) Kind() string        { return TypeGallery }
func (MenuHighlights) Kind() string { return TypeMenuHighlights }
func (OpeningHours) Kind() string   { return TypeOpeningHours }
func (RichText) Kind() string       { return TypeRichText }
func (u Unrecognized) Kind() string { return u.Type }

func (Hero) isBody()           {}
func (AboutStory) isBody()     {}
func (Testimonials) isBody()   {}
func (CTA) isBody()            {}
func (Gallery) isBody()        {}
func (MenuHighlights) isBody() {}
func (OpeningHours) isBody()   {}
func (RichText) isBody()       {}
func (Unrecognized) isBody()   {}

// Decode maps a section's tag and document onto its typed body.
//
// Decoding is lenient: values are weakly typed ("12" fills an int) and a
// field that cannot be decoded is left at its zero value while the rest of
// the document still applies. The returned error lists the fields that were
// dropped; callers that only need a renderable body may ignore it.
func Decode(sectionType string, doc Document) (Body, error) {
	switch sectionType {
	case TypeHero:
		return decodeInto(doc, &Hero{})
	case TypeAboutStory:
		return decodeInto(doc, &AboutStory{})
	case TypeTestimonials:
		return decodeInto(doc, &Testimonials{})
	case TypeCTA:
		return decodeInto(doc, &CTA{})
	case TypeGallery:
		return decodeInto(doc, &Gallery{})
	case TypeMenuHighlights:
		return decodeInto(doc, &MenuHighlights{})
	case TypeOpeningHours:
		return decodeInto(doc, &OpeningHours{})
	case TypeRichText:
		return decodeInto(doc, &RichText{})
	default:
		return Unrecognized{Type: sectionType, Raw: doc.Clone()}, nil
	}
}

// IsKnownType reports whether a tag decodes to a typed body.
func IsKnownType(sectionType string) bool {
	for _, t := range KnownTypes {
		if t == sectionType {
			return true
		}
	}
	return false
}

type bodyPtr interface {
	*Hero | *AboutStory | *Testimonials | *CTA | *Gallery | *MenuHighlights | *OpeningHours | *RichText
}

func decodeInto[P bodyPtr](doc Document, target P) (Body, error) {
	var err error
	if len(doc) > 0 {
		var dec *mapstructure.Decoder
		dec, err = mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           target,
		})
		if err == nil {
			err = dec.Decode(map[string]interface{}(doc))
		}
	}
	return deref(target), err
}

func deref(p interface{}) Body {
	switch t := p.(type) {
	case *Hero:
		return *t
	case *AboutStory:
		return *t
	case *Testimonials:
		return *t
	case *CTA:
		return *t
	case *Gallery:
		return *t
	case *MenuHighlights:
		return *t
	case *OpeningHours:
		return *t
	case *RichText:
		return *t
	default:
		return nil
	}
}
