package relay

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Conversation owns a transcript and runs one turn at a time against it.
// Starting a new turn cancels the previous one; callbacks from a superseded
// turn are dropped. Safe for concurrent use.
type Conversation struct {
	runner      *Runner
	now         func() time.Time
	temperature *float64
	maxTokens   *int

	mu      sync.Mutex
	t       Transcript
	partial strings.Builder
	turn    *turn // in flight, nil when idle
	gen     uint64
}

// turn is the cancellation handle of one Send.
type turn struct {
	cancel context.CancelFunc
	gate   *gate
}

// stop cancels the turn and waits out any callback in progress.
func (t *turn) stop() {
	if t == nil {
		return
	}
	t.cancel()
	t.gate.stop()
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithTemperature sets the sampling temperature sent with every turn.
func WithTemperature(v float64) ConversationOption {
	return func(c *Conversation) { c.temperature = &v }
}

// WithMaxTokens caps the reply length of every turn.
func WithMaxTokens(n int) ConversationOption {
	return func(c *Conversation) { c.maxTokens = &n }
}

// WithClock sets the time source used for transcript timestamps.
func WithClock(now func() time.Time) ConversationOption {
	return func(c *Conversation) { c.now = now }
}

// NewConversation continues t using runner.
func NewConversation(runner *Runner, t Transcript, opts ...ConversationOption) *Conversation {
	c := &Conversation{runner: runner, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	c.t = t
	c.t.Messages = slices.Clone(t.Messages)
	if c.t.CreatedAt.IsZero() {
		c.t.CreatedAt = c.now()
	}
	return c
}

// Send appends a user message and streams the assistant's reply. The reply is
// appended to the transcript when h.OnDone fires; on failure the partial
// text is discarded and only the user message remains.
//
// Once Send, Cancel or the returned cancel function returns, no callback of
// a superseded turn is running or will start. They wait for a callback in
// progress, so a turn's OnChunk and OnRetry must not stop that same turn;
// OnDone and OnError may.
func (c *Conversation) Send(ctx context.Context, text string, h Handler, opts ...StartOption) (cancel func()) {
	c.mu.Lock()
	prev := c.detachLocked()
	gen := c.gen
	c.t.Messages = append(c.t.Messages, UserMessage(text))
	c.t.UpdatedAt = c.now()
	req := Request{
		Assistant:   c.t.Assistant,
		Messages:    slices.Clone(c.t.Messages),
		SessionID:   c.t.SessionID,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	ctx, cancelCtx := context.WithCancel(ctx)
	g := &gate{}
	c.turn = &turn{cancel: cancelCtx, gate: g}
	c.mu.Unlock()

	prev.stop()
	go func() {
		defer cancelCtx()
		_ = c.runner.Run(ctx, req, c.track(gen, g, h), opts...)
		c.update(gen, c.finishLocked)
	}()
	return func() { c.cancelTurn(gen) }
}

// Cancel stops the in-flight turn, if any. No callback of its handler runs
// afterwards.
func (c *Conversation) Cancel() {
	c.mu.Lock()
	t := c.detachLocked()
	c.mu.Unlock()
	t.stop()
}

// Running reports whether a turn is in flight.
func (c *Conversation) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn != nil
}

// Messages returns a copy of the conversation so far, excluding any
// reply still streaming.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.t.Messages)
}

// Partial returns the text received so far for the in-flight reply.
func (c *Conversation) Partial() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partial.String()
}

// Transcript returns a snapshot suitable for persisting.
func (c *Conversation) Transcript() Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.t
	t.Messages = slices.Clone(c.t.Messages)
	return t
}

func (c *Conversation) cancelTurn(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	t := c.detachLocked()
	c.mu.Unlock()
	t.stop()
}

// detachLocked retires the current turn and returns it for stopping once
// c.mu is released; its callbacks take c.mu.
func (c *Conversation) detachLocked() *turn {
	t := c.turn
	c.turn = nil
	c.gen++
	c.partial.Reset()
	return t
}

// track wraps h so the transcript follows the turn. Callers' callbacks run
// through g, after c.mu is released.
func (c *Conversation) track(gen uint64, g *gate, h Handler) Handler {
	return Handler{
		OnChunk: func(text string) {
			g.call(func() {
				if c.update(gen, func() { c.partial.WriteString(text) }) && h.OnChunk != nil {
					h.OnChunk(text)
				}
			})
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			g.call(func() {
				if c.update(gen, c.partial.Reset) && h.OnRetry != nil {
					h.OnRetry(attempt, delay, err)
				}
			})
		},
		OnDone: func() {
			g.end(func() {
				ok := c.update(gen, func() {
					c.t.Messages = append(c.t.Messages, AssistantMessage(c.partial.String()))
					c.t.UpdatedAt = c.now()
					c.finishLocked()
				})
				if ok && h.OnDone != nil {
					h.OnDone()
				}
			})
		},
		OnError: func(err error) {
			g.end(func() {
				if c.update(gen, c.finishLocked) && h.OnError != nil {
					h.OnError(err)
				}
			})
		},
	}
}

func (c *Conversation) finishLocked() {
	c.partial.Reset()
	c.turn = nil
}

// update runs fn under the lock if gen is still the current turn.
func (c *Conversation) update(gen uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	fn()
	return true
}
