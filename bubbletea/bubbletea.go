// Package bubbletea provides a Bubble Tea chat front-end for relay.
package bubbletea

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/relay"
)

// SendFunc starts one turn and returns immediately. Results are reported
// through h. Cancelling ctx ends the turn without further callbacks.
type SendFunc func(ctx context.Context, text string, h relay.Handler)

// Run creates and runs the Bubble Tea program. It blocks until the program
// exits. When ctx is cancelled the program quits. A turn still running at
// exit is cancelled.
func Run(ctx context.Context, m Model) error {
	return run(ctx, m, tea.WithAltScreen())
}

func run(ctx context.Context, m Model, opts ...tea.ProgramOption) error {
	p := tea.NewProgram(m, opts...)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-done:
		}
	}()
	final, err := p.Run()
	close(done)
	if fm, ok := final.(Model); ok {
		fm.release()
	}
	return err
}

// ChunkMsg carries a text delta for the given turn.
type ChunkMsg struct {
	Turn int
	Text string
}

// RetryMsg reports that the turn is about to be retried.
type RetryMsg struct {
	Turn    int
	Attempt int
	Delay   time.Duration
	Err     error
}

// DoneMsg reports that the turn completed.
type DoneMsg struct {
	Turn int
}

// ErrorMsg reports that the turn failed.
type ErrorMsg struct {
	Turn int
	Err  error
}
