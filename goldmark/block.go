package goldmark

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
)

const (
	gutter    = "│ "
	minWidth  = 10
	listInset = "  "
)

// writer accumulates rendered output for one document.
type writer struct {
	strings.Builder
	styles styles
	source []byte
}

// blocks renders the children of n separated by blank lines.
func (w *writer) blocks(n ast.Node, width int) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		w.block(c, width)
		if c.NextSibling() != nil {
			w.WriteString("\n")
		}
	}
}

func (w *writer) block(n ast.Node, width int) {
	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		w.line(wrap(w.inline(n), width))

	case *ast.Heading:
		title := w.styles.heading.Render(strings.Repeat("#", n.Level) + " " + w.inline(n))
		w.line(wrap(title, width))

	case *ast.FencedCodeBlock:
		if lang := string(n.Language(w.source)); lang != "" {
			w.line(w.styles.muted.Render(lang))
		}
		w.code(n)

	case *ast.CodeBlock:
		w.code(n)

	case *ast.Blockquote:
		inner := &writer{styles: w.styles, source: w.source}
		inner.blocks(n, max(width-len(gutter), minWidth))
		bar := w.styles.muted.Render(gutter)
		for _, l := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			if l == "" {
				w.line(w.styles.muted.Render(strings.TrimSpace(gutter)))
				continue
			}
			w.line(bar + l)
		}

	case *ast.List:
		w.list(n, width, 0)

	case *ast.ThematicBreak:
		w.line(w.styles.muted.Render(strings.Repeat("─", min(width, defaultWidth))))

	case *ast.HTMLBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			w.Write(seg.Value(w.source))
		}

	case *east.Table:
		w.table(n)

	default:
		w.blocks(n, width)
	}
}

func (w *writer) line(s string) {
	w.WriteString(s)
	w.WriteString("\n")
}

func (w *writer) code(n ast.Node) {
	bar := w.styles.muted.Render(gutter)
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		w.line(bar + strings.TrimRight(string(seg.Value(w.source)), "\n"))
	}
}

func (w *writer) list(n *ast.List, width, depth int) {
	num := n.Start
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		marker := "• "
		if n.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		w.item(item, marker, width, depth)
	}
}

// item renders a list item. Text wraps under the first character after the
// marker; nested lists are indented one level further.
func (w *writer) item(item *ast.ListItem, marker string, width, depth int) {
	prefix := strings.Repeat(listInset, depth) + marker
	pending := prefix
	hang := strings.Repeat(" ", lipgloss.Width(prefix))

	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		if sub, ok := c.(*ast.List); ok {
			if pending == prefix {
				w.line(strings.TrimRight(prefix, " "))
			}
			w.list(sub, width, depth+1)
			pending = hang
			continue
		}
		inner := &writer{styles: w.styles, source: w.source}
		inner.block(c, max(width-lipgloss.Width(prefix), minWidth))
		for _, l := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			w.line(pending + l)
			pending = hang
		}
	}
	if pending == prefix {
		w.line(strings.TrimRight(prefix, " "))
	}
}

// table renders cells separated by a muted bar, with columns padded to
// their widest cell. Tables are not wrapped.
func (w *writer) table(n *east.Table) {
	var rows [][]string
	for r := n.FirstChild(); r != nil; r = r.NextSibling() {
		var row []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			row = append(row, w.inline(c))
		}
		rows = append(rows, row)
	}

	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	sep := w.styles.muted.Render(" │ ")
	for ri, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		if ri == 0 {
			for i := range cells {
				cells[i] = w.styles.bold.Render(cells[i])
			}
		}
		w.line(strings.TrimRight(strings.Join(cells, sep), " "))
		if ri == 0 {
			rules := make([]string, len(widths))
			for i, cw := range widths {
				rules[i] = strings.Repeat("─", cw)
			}
			w.line(w.styles.muted.Render(strings.Join(rules, "─┼─")))
		}
	}
}

// wrap word-wraps s to width and drops the padding lipgloss adds.
func wrap(s string, width int) string {
	lines := strings.Split(lipgloss.NewStyle().Width(width).Render(s), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}
