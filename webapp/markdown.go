package webapp

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdown renders the free-text fields of quiz content (instructions,
// reasoning, feedback). Raw HTML in the source is not passed through.
type markdown struct {
	md goldmark.Markdown
}

func newMarkdown() *markdown {
	return &markdown{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func (m *markdown) render(s string) string {
	if s == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(s), &buf); err != nil {
		return "<p>" + html.EscapeString(s) + "</p>"
	}
	return buf.String()
}
