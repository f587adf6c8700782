package provider

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlReducer converts HTML message bodies to plain text when a message
// carries no text/plain part (spec §4.2: "prefer text/plain, else
// text/html reduced to text").
type htmlReducer struct {
	invisible *regexp.Regexp
	whitespace *regexp.Regexp
	newlines  *regexp.Regexp
}

func newHTMLReducer() *htmlReducer {
	return &htmlReducer{
		whitespace: regexp.MustCompile(`[^\S\n]+`),
		newlines:   regexp.MustCompile(`\n{3,}`),
		invisible:  regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{2060}-\x{2064}\x{FE00}-\x{FE0F}]+`),
	}
}

func (r *htmlReducer) reduce(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link").Remove()
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := doc.Text()
	text = r.invisible.ReplaceAllString(text, "")
	text = r.whitespace.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	text = strings.Join(lines, "\n")
	text = r.newlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}
