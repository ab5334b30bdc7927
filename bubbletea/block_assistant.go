package bubbletea

import (
	"strings"

	"github.com/fwojciec/relay/goldmark"
)

// AssistantBlock renders a streamed reply as markdown. Text before the last
// paragraph break outside a code fence is stable: it is rendered once per
// width and cached, so only the tail is re-rendered on each delta.
type AssistantBlock struct {
	md      *goldmark.Renderer
	content strings.Builder

	stable   int
	rendered map[int]string
}

// NewAssistantBlock creates an empty AssistantBlock.
func NewAssistantBlock(md *goldmark.Renderer) *AssistantBlock {
	return &AssistantBlock{md: md, rendered: make(map[int]string)}
}

// Append adds a delta.
func (b *AssistantBlock) Append(text string) {
	b.content.WriteString(text)
	b.advance()
}

// Reset discards everything received so far.
func (b *AssistantBlock) Reset() {
	b.content.Reset()
	b.stable = 0
	clear(b.rendered)
}

// Text returns the raw markdown received so far.
func (b *AssistantBlock) Text() string {
	return b.content.String()
}

func (b *AssistantBlock) View(width int) string {
	raw := b.content.String()
	head := b.renderStable(raw, width)
	tail := b.md.Render(raw[b.stable:], width)
	switch {
	case tail == "":
		return head
	case head == "":
		return tail
	default:
		return head + "\n\n" + tail
	}
}

// advance moves the stable boundary to the last blank line that is not
// inside an open fence.
func (b *AssistantBlock) advance() {
	raw := b.content.String()
	for end := len(raw); end > b.stable; {
		i := strings.LastIndex(raw[:end], "\n\n")
		if i < b.stable {
			return
		}
		if !openFence(raw[:i]) {
			b.stable = i + 2
			clear(b.rendered)
			return
		}
		end = i
	}
}

func (b *AssistantBlock) renderStable(raw string, width int) string {
	if b.stable == 0 {
		return ""
	}
	if out, ok := b.rendered[width]; ok {
		return out
	}
	out := b.md.Render(raw[:b.stable], width)
	b.rendered[width] = out
	return out
}

// openFence reports whether s ends inside a fenced code block.
func openFence(s string) bool {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimLeft(line, " "), "```") {
			n++
		}
	}
	return n%2 == 1
}
