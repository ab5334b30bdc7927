package bubbletea

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Block is a renderable element of the conversation. View takes the width
// so the root model controls layout and blocks are testable in isolation.
type Block interface {
	View(width int) string
}

var (
	_ Block = (*UserBlock)(nil)
	_ Block = (*NoticeBlock)(nil)
	_ Block = (*ErrorBlock)(nil)
	_ Block = (*AssistantBlock)(nil)
)

// UserBlock renders a user message with a "> " prefix.
type UserBlock struct {
	text   string
	styles Styles
}

// NewUserBlock creates a UserBlock.
func NewUserBlock(text string, styles Styles) *UserBlock {
	return &UserBlock{text: text, styles: styles}
}

func (b *UserBlock) View(width int) string {
	return wrap(b.styles.UserMsg.Render(">")+" "+b.text, width)
}

// NoticeBlock renders a status line such as a retry or a cancelled turn.
type NoticeBlock struct {
	text   string
	styles Styles
}

// NewNoticeBlock creates a NoticeBlock.
func NewNoticeBlock(text string, styles Styles) *NoticeBlock {
	return &NoticeBlock{text: text, styles: styles}
}

// NewRetryBlock describes an upcoming retry attempt.
func NewRetryBlock(msg RetryMsg, styles Styles) *NoticeBlock {
	text := fmt.Sprintf("Retrying (attempt %d) in %s", msg.Attempt, msg.Delay.Round(time.Millisecond))
	if msg.Err != nil {
		text += ": " + msg.Err.Error()
	}
	return NewNoticeBlock(text, styles)
}

func (b *NoticeBlock) View(width int) string {
	return wrap(b.styles.Notice.Render(b.text), width)
}

// ErrorBlock renders a failed turn.
type ErrorBlock struct {
	err    error
	styles Styles
}

// NewErrorBlock creates an ErrorBlock.
func NewErrorBlock(err error, styles Styles) *ErrorBlock {
	return &ErrorBlock{err: err, styles: styles}
}

func (b *ErrorBlock) View(width int) string {
	return wrap(b.styles.Error.Render(fmt.Sprintf("Error: %v", b.err)), width)
}

func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	out := lipgloss.NewStyle().Width(width).Render(s)
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}
