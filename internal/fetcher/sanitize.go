package fetcher

import (
	"html"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer cleans upstream text before it is stored.
type Sanitizer struct {
	text *bluemonday.Policy
	html *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		text: bluemonday.StrictPolicy(),
		html: bluemonday.UGCPolicy(),
	}
}

// Text strips all markup and surrounding whitespace. The result is plain
// text; templates escape it on output.
func (s *Sanitizer) Text(in string) string {
	return strings.TrimSpace(html.UnescapeString(s.text.Sanitize(in)))
}

// HTML keeps a restricted, safe subset of markup.
func (s *Sanitizer) HTML(in string) string {
	return s.html.Sanitize(in)
}

// excerpt derives a short summary from article content when the upstream
// sent no description. It returns "" when nothing readable is found.
func excerpt(content, rawURL string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	pageURL, err := url.Parse(rawURL)
	if err != nil || pageURL.Host == "" {
		pageURL = &url.URL{Scheme: "https", Host: "localhost"}
	}

	doc := "<html><body><article><p>" + content + "</p></article></body></html>"
	art, err := readability.FromReader(strings.NewReader(doc), pageURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(art.Excerpt)
}
