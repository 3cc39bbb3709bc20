// ABOUTME: Markdown rendering for answer text shown in the web frontend
// ABOUTME: The remote answers in markdown; the frontend wants ready HTML

package api

import (
	"bytes"

	"github.com/yuin/goldmark"
)

var markdown = goldmark.New()

// renderMarkdown converts answer markdown to HTML. On conversion
// failure the raw text is still available to the frontend, so an empty
// string is fine here.
func renderMarkdown(text string) string {
	if text == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return ""
	}
	return buf.String()
}
