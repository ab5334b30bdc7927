package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// RunWith exports run for testing with custom program options.
func RunWith(ctx context.Context, m Model, opts ...tea.ProgramOption) error {
	return run(ctx, m, opts...)
}

// RenderContent exports renderContent for testing.
func RenderContent(m Model) string {
	return m.renderContent()
}

// Stable exports the length of the cached prefix of b for testing.
func Stable(b *AssistantBlock) int {
	return b.stable
}
