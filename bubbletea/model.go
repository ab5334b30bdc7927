package bubbletea

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/goldmark"
	"github.com/mattn/go-runewidth"
)

var _ tea.Model = Model{}

// eventBuffer bounds how far a turn can run ahead of the UI before its
// callbacks block.
const eventBuffer = 256

// Model is the Bubble Tea model for the relay chat TUI.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable output area. Exported for test access.
	Viewport viewport.Model

	send    SendFunc
	history []relay.Message
	md      *goldmark.Renderer
	styles  Styles

	blocks []Block
	active *AssistantBlock

	turn    int
	running bool
	cancel  context.CancelFunc
	next    tea.Cmd
	err     error
	ready   bool
}

// New creates a Model that sends user input through send. history is
// rendered once the terminal size is known.
func New(send SendFunc, history []relay.Message, theme relay.Theme) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	return Model{
		Input:   ti,
		send:    send,
		history: history,
		md:      goldmark.New(theme),
		styles:  NewStyles(theme),
	}
}

// Running returns whether a turn is in progress.
func (m Model) Running() bool { return m.running }

// Err returns the error of the last failed turn, if any.
func (m Model) Err() error { return m.err }

// Turn returns the number of the current or most recent turn.
func (m Model) Turn() int { return m.turn }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ChunkMsg:
		if !m.current(msg.Turn) {
			return m, nil
		}
		if m.active == nil {
			m.active = NewAssistantBlock(m.md)
			m.blocks = append(m.blocks, m.active)
		}
		m.active.Append(msg.Text)
		m = m.refresh()
		return m, m.next

	case RetryMsg:
		if !m.current(msg.Turn) {
			return m, nil
		}
		m = m.dropActive()
		m.blocks = append(m.blocks, NewRetryBlock(msg, m.styles))
		m = m.refresh()
		return m, m.next

	case DoneMsg:
		if !m.current(msg.Turn) {
			return m, nil
		}
		m.active = nil
		return m.finish()

	case ErrorMsg:
		if !m.current(msg.Turn) {
			return m, nil
		}
		m = m.dropActive()
		m.err = msg.Err
		m.blocks = append(m.blocks, NewErrorBlock(msg.Err, m.styles))
		return m.finish()
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)
	if !m.running {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputH := 1
	statusHeight := 1
	borderHeight := 2
	vpHeight := max(msg.Height-inputH-statusHeight-borderHeight, 1)

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m = m.renderHistory()
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}
	m.Input.Width = msg.Width
	return m.refresh()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			m = m.stop()
			cmd := m.Input.Focus()
			return m, cmd
		}
		return m, tea.Quit

	case tea.KeyEsc:
		if m.running {
			m = m.stop()
			cmd := m.Input.Focus()
			return m, cmd
		}
		return m, nil

	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		return m.submit(text)
	}

	if m.running {
		return m, nil
	}
	var cmds []tea.Cmd
	var cmd tea.Cmd
	if msg.Type != tea.KeyRunes {
		m.Viewport, cmd = m.Viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	m.Input.SetValue("")
	m.Input.Blur()
	m.err = nil
	m.blocks = append(m.blocks, NewUserBlock(text, m.styles))

	m.turn++
	turn := m.turn
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan tea.Msg, eventBuffer)
	m.cancel = cancel
	m.next = listen(ctx, ch)
	m.running = true
	m = m.refresh()

	deliver := func(msg tea.Msg) {
		select {
		case ch <- msg:
		case <-ctx.Done():
		}
	}
	h := relay.Handler{
		OnChunk: func(text string) { deliver(ChunkMsg{Turn: turn, Text: text}) },
		OnRetry: func(attempt int, delay time.Duration, err error) {
			deliver(RetryMsg{Turn: turn, Attempt: attempt, Delay: delay, Err: err})
		},
		OnDone:  func() { deliver(DoneMsg{Turn: turn}) },
		OnError: func(err error) { deliver(ErrorMsg{Turn: turn, Err: err}) },
	}
	send := m.send
	start := func() tea.Msg {
		send(ctx, text, h)
		return nil
	}
	return m, tea.Batch(start, m.next)
}

// stop cancels the running turn. Its partial reply is discarded.
func (m Model) stop() Model {
	m = m.dropActive()
	m.blocks = append(m.blocks, NewNoticeBlock("Cancelled", m.styles))
	m.release()
	m.running = false
	return m.refresh()
}

func (m Model) finish() (tea.Model, tea.Cmd) {
	m.release()
	m.running = false
	m = m.refresh()
	cmd := m.Input.Focus()
	return m, cmd
}

func (m *Model) release() {
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = nil
	m.next = nil
}

func (m Model) current(turn int) bool {
	return m.running && turn == m.turn
}

func (m Model) dropActive() Model {
	if m.active == nil {
		return m
	}
	blocks := m.blocks[:0:0]
	for _, b := range m.blocks {
		if b != Block(m.active) {
			blocks = append(blocks, b)
		}
	}
	m.blocks = blocks
	m.active = nil
	return m
}

func (m Model) renderHistory() Model {
	for _, msg := range m.history {
		switch msg.Role {
		case relay.RoleUser:
			m.blocks = append(m.blocks, NewUserBlock(msg.Content, m.styles))
		case relay.RoleAssistant:
			b := NewAssistantBlock(m.md)
			b.Append(msg.Content)
			m.blocks = append(m.blocks, b)
		}
	}
	return m
}

func (m Model) refresh() Model {
	if !m.ready {
		return m
	}
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	return m
}

func (m Model) renderContent() string {
	parts := make([]string, 0, len(m.blocks))
	for _, b := range m.blocks {
		parts = append(parts, b.View(m.Viewport.Width))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) statusLine() string {
	var text string
	style := m.styles.Muted
	switch {
	case m.running:
		text = "Generating... Esc to cancel"
	case m.err != nil:
		text = fmt.Sprintf("Error: %v", m.err)
		style = m.styles.Error
	default:
		text = "Enter to send, Ctrl+C to quit"
	}
	if w := m.Viewport.Width; w > 0 {
		text = runewidth.Truncate(text, w, "…")
	}
	return style.Render(text)
}

// listen waits for the next message of a turn. It returns nil once the
// turn's context is cancelled.
func listen(ctx context.Context, ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}
