package renderer

import (
	"bytes"
	"io"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/net/html"
)

var allowedTags = map[string]bool{
	"p": true, "br": true, "strong": true, "em": true, "b": true, "i": true,
	"u": true, "ul": true, "ol": true, "li": true, "h2": true, "h3": true,
	"h4": true, "blockquote": true, "a": true, "span": true, "small": true,
}

// Tags whose text content is dropped along with the tag itself.
var droppedContent = map[string]bool{
	"script": true, "style": true, "iframe": true, "object": true, "template": true,
}

// Sanitize reduces an HTML fragment to a small allow-list of formatting tags.
// Attributes are stripped except href on links, which must pass templ's URL
// sanitiser. Disallowed tags are removed but their text is kept, except for
// script-like elements whose content is dropped too. Unclosed allowed tags
// are closed at the end of the fragment.
func Sanitize(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	var out bytes.Buffer
	var open []string
	skipDepth := 0

	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return templ.EscapeString(fragment)
			}
			for i := len(open) - 1; i >= 0; i-- {
				out.WriteString("</" + open[i] + ">")
			}
			return out.String()

		case html.TextToken:
			if skipDepth == 0 {
				out.WriteString(html.EscapeString(string(z.Text())))
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if droppedContent[tok.Data] {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if skipDepth > 0 || !allowedTags[tok.Data] {
				continue
			}
			out.WriteString("<" + tok.Data)
			if tok.Data == "a" {
				for _, attr := range tok.Attr {
					if attr.Key == "href" {
						out.WriteString(` href="` + html.EscapeString(string(templ.URL(attr.Val))) + `" rel="noopener"`)
					}
				}
			}
			out.WriteString(">")
			if tok.Data != "br" && tt == html.StartTagToken {
				open = append(open, tok.Data)
			}

		case html.EndTagToken:
			tok := z.Token()
			if droppedContent[tok.Data] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if skipDepth > 0 || !allowedTags[tok.Data] {
				continue
			}
			// Close only tags that are actually open, innermost first.
			for i := len(open) - 1; i >= 0; i-- {
				if open[i] == tok.Data {
					for j := len(open) - 1; j >= i; j-- {
						out.WriteString("</" + open[j] + ">")
					}
					open = open[:i]
					break
				}
			}
		}
	}
}
