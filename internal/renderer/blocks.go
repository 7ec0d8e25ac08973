package renderer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/trattoria/internal/content"
	"github.com/conneroisu/trattoria/internal/registry"
)

// render adapts a body-specific writer into a templ component. A body of the
// wrong variant renders as the zero value of the expected one.
func render(in registry.Input, sectionType string, fn func(hw *htmlWriter)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.open(in, sectionType)
		fn(hw)
		hw.close()
		return hw.err
	})
}

func Hero(in registry.Input) templ.Component {
	body, _ := in.Body.(content.Hero)
	return render(in, content.TypeHero, func(hw *htmlWriter) {
		hw.img(body.ImageURL, orDefault(body.Title, in.Tenant.SiteName))
		hw.tag("h1", "hero-title", orDefault(body.Title, orDefault(in.Tenant.SiteName, "Welcome")))
		hw.tag("p", "hero-subtitle", body.Subtitle)
		hw.link(body.ButtonHref, "button button-primary", orDefault(body.ButtonLabel, "Learn more"))
	})
}

func AboutStory(in registry.Input) templ.Component {
	body, _ := in.Body.(content.AboutStory)
	return render(in, content.TypeAboutStory, func(hw *htmlWriter) {
		hw.tag("h2", "", orDefault(body.Heading, "Our story"))
		hw.img(body.ImageURL, body.Heading)
		for _, p := range body.Paragraphs {
			if strings.TrimSpace(p) == "" {
				continue
			}
			hw.raw("<p>" + Sanitize(p) + "</p>")
		}
		hw.tag("p", "signature", body.Signature)
	})
}

func Testimonials(in registry.Input) templ.Component {
	body, _ := in.Body.(content.Testimonials)
	return render(in, content.TypeTestimonials, func(hw *htmlWriter) {
		hw.tag("h2", "", orDefault(body.Heading, "What our guests say"))
		hw.raw(`<ul class="testimonials">`)
		for _, item := range body.Items {
			if strings.TrimSpace(item.Quote) == "" {
				continue
			}
			hw.raw("<li><blockquote>")
			hw.text(item.Quote)
			hw.raw("</blockquote>")
			if stars := clampRating(item.Rating); stars > 0 {
				hw.raw(fmt.Sprintf(`<span class="rating" aria-label="%d out of 5">`, stars))
				hw.text(strings.Repeat("★", stars))
				hw.raw("</span>")
			}
			hw.tag("cite", "", orDefault(item.Author, "A happy guest"))
			hw.raw("</li>")
		}
		hw.raw("</ul>")
	})
}

func CTA(in registry.Input) templ.Component {
	body, _ := in.Body.(content.CTA)
	return render(in, content.TypeCTA, func(hw *htmlWriter) {
		hw.tag("h2", "", orDefault(body.Heading, "Reserve your table"))
		hw.tag("p", "", body.Text)
		hw.link(orDefault(body.ButtonHref, "/bookings"), "button button-primary", orDefault(body.ButtonLabel, "Book now"))
	})
}

func Gallery(in registry.Input) templ.Component {
	body, _ := in.Body.(content.Gallery)
	return render(in, content.TypeGallery, func(hw *htmlWriter) {
		hw.tag("h2", "", orDefault(body.Heading, "Gallery"))
		hw.raw(`<div class="gallery-grid">`)
		for _, image := range body.Images {
			if strings.TrimSpace(image.URL) == "" {
				continue
			}
			hw.raw("<figure>")
			hw.img(image.URL, orDefault(image.Alt, image.Caption))
			hw.tag("figcaption", "", image.Caption)
			hw.raw("</figure>")
		}
		hw.raw("</div>")
	})
}

func MenuHighlights(in registry.Input) templ.Component {
	body, _ := in.Body.(content.MenuHighlights)
	currency := orDefault(body.Currency, "$")
	return render(in, content.TypeMenuHighlights, func(hw *htmlWriter) {
		hw.tag("h2", "", orDefault(body.Heading, "From our kitchen"))
		hw.raw(`<ul class="menu-highlights">`)
		for _, item := range body.Items {
			if strings.TrimSpace(item.Name) == "" {
				continue
			}
			hw.raw("<li>")
			hw.tag("h3", "dish", item.Name)
			if item.Price > 0 {
				hw.tag("span", "price", fmt.Sprintf("%s%.2f", currency, item.Price))
			}
			hw.tag("p", "", item.Description)
			if len(item.Tags) > 0 {
				hw.tag("small", "tags", strings.Join(item.Tags, " · "))
			}
			hw.raw("</li>")
		}
		hw.raw("</ul>")
		hw.link("/menu", "button", "See the full menu")
	})
}

func OpeningHours(in registry.Input) templ.Component {
	body, _ := in.Body.(content.OpeningHours)
	return render(in, content.TypeOpeningHours, func(hw *htmlWriter) {
		hw.tag("h2", "", orDefault(body.Heading, "Opening hours"))
		hw.raw("<dl>")
		for _, row := range body.Rows {
			if strings.TrimSpace(row.Days) == "" {
				continue
			}
			hw.tag("dt", "", row.Days)
			hw.tag("dd", "", orDefault(row.Hours, "Closed"))
		}
		hw.raw("</dl>")
		hw.tag("p", "note", body.Note)
		hw.tag("p", "address", in.Tenant.Address)
		hw.tag("p", "phone", in.Tenant.Phone)
	})
}

func RichText(in registry.Input) templ.Component {
	body, _ := in.Body.(content.RichText)
	return render(in, content.TypeRichText, func(hw *htmlWriter) {
		hw.raw(`<div class="prose">`)
		hw.raw(Sanitize(body.HTML))
		hw.raw("</div>")
	})
}

func clampRating(r int) int {
	switch {
	case r < 0:
		return 0
	case r > 5:
		return 5
	default:
		return r
	}
}
