// Package goldmark renders assistant replies, written in markdown, as
// ANSI-styled terminal text. Parsing is done by goldmark with the GitHub
// flavoured extensions; styling by lipgloss.
//
// Replies are rendered repeatedly while they stream in, so input is often
// cut mid-construct. goldmark treats an unterminated fence or emphasis as
// plain content, which is what a reader expects to see.
package goldmark

import (
	"strings"

	"github.com/fwojciec/relay"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

const defaultWidth = 80

// Renderer converts markdown to terminal output. Safe for concurrent use.
type Renderer struct {
	parser parser.Parser
	styles styles
}

// New creates a Renderer using theme's colours.
func New(theme relay.Theme) *Renderer {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	return &Renderer{parser: md.Parser(), styles: newStyles(theme)}
}

// Render returns source styled for a terminal of the given width.
// Paragraphs, quotes and list items are word-wrapped; code is not.
func (r *Renderer) Render(source string, width int) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	src := []byte(source)
	doc := r.parser.Parse(text.NewReader(src))

	w := &writer{styles: r.styles, source: src}
	w.blocks(doc, width)
	return strings.TrimRight(w.String(), "\n")
}

// Render is a convenience for New(theme).Render(source, width).
func Render(source string, width int, theme relay.Theme) string {
	return New(theme).Render(source, width)
}
