package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxAttempts is the total number of attempts, first try included,
// made when retry is enabled.
const DefaultMaxAttempts = 3

// maxBackoffShift caps the exponent so large retry counts cannot overflow.
const maxBackoffShift = 16

// Backoff returns the delay before the given retry (1-based): 1s, 2s, 4s...
func Backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return time.Second << min(retry-1, maxBackoffShift)
}

// Handler receives the outcome of a streaming request. All fields are
// optional. Callbacks are invoked from a single goroutine, chunks in wire
// order. OnDone and OnError are terminal and mutually exclusive; nothing is
// delivered after either, or after cancellation.
type Handler struct {
	OnChunk func(text string)
	OnDone  func()
	OnError func(err error)

	// OnRetry is called before each new attempt with the 1-based attempt
	// number, the backoff delay about to be waited and the failure that
	// caused it. Chunks delivered by the failed attempt are not replayed,
	// so callers should discard any text accumulated so far.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Runner drives a Client through the request/stream/retry state machine.
type Runner struct {
	client      Client
	logger      *slog.Logger
	maxAttempts int
	backoff     func(retry int) time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithMaxAttempts sets the total attempts made when retry is enabled.
// Values below 1 are treated as 1.
func WithMaxAttempts(n int) RunnerOption {
	return func(r *Runner) { r.maxAttempts = max(n, 1) }
}

// WithBackoff replaces the delay schedule. The default is Backoff.
func WithBackoff(f func(retry int) time.Duration) RunnerOption {
	return func(r *Runner) { r.backoff = f }
}

// WithSleep replaces the function used to wait between attempts. It must
// return ctx.Err() when the context ends first. Useful for testing.
func WithSleep(f func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *Runner) { r.sleep = f }
}

// NewRunner creates a Runner for the given client.
func NewRunner(client Client, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:      client,
		logger:      slog.New(slog.DiscardHandler),
		maxAttempts: DefaultMaxAttempts,
		backoff:     Backoff,
		sleep:       sleepContext,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// StartOption configures a single Start or Run invocation.
type StartOption func(*startConfig)

type startConfig struct {
	retry bool
}

// WithRetry enables retrying failed attempts with exponential backoff.
// Disabled by default: the first failure goes straight to OnError.
func WithRetry(enabled bool) StartOption {
	return func(c *startConfig) { c.retry = enabled }
}

// Start runs the request in a new goroutine and returns a function that
// cancels it. Cancelling is idempotent and silent: once it returns, no
// callback of h is running or will start, and any pending backoff timer is
// abandoned. Cancel waits for a callback already in progress, so it may be
// called from OnDone or OnError but not from OnChunk or OnRetry.
func (r *Runner) Start(ctx context.Context, req Request, h Handler, opts ...StartOption) (cancel func()) {
	ctx, cancelCtx := context.WithCancel(ctx)
	g := &gate{}
	go func() {
		defer cancelCtx()
		_ = r.run(ctx, req, h, g, opts...)
	}()
	return func() {
		cancelCtx()
		g.stop()
	}
}

// Run executes the request and blocks until it reaches a terminal state.
// It returns nil after OnDone, the final error after OnError, and ctx.Err()
// when the context is cancelled, in which case no terminal callback fires.
func (r *Runner) Run(ctx context.Context, req Request, h Handler, opts ...StartOption) error {
	return r.run(ctx, req, h, &gate{}, opts...)
}

func (r *Runner) run(ctx context.Context, req Request, h Handler, g *gate, opts ...StartOption) error {
	var cfg startConfig
	for _, o := range opts {
		o(&cfg)
	}
	attempts := 1
	if cfg.retry {
		attempts = r.maxAttempts
	}
	d := deliverer{ctx: ctx, h: h, g: g}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := r.backoff(attempt - 1)
			r.logger.Warn("retrying stream",
				"assistant", req.Assistant, "attempt", attempt, "delay", delay, "error", lastErr)
			d.retry(attempt, delay, lastErr)
			if err := r.sleep(ctx, delay); err != nil {
				return ctx.Err()
			}
		}

		err := r.attempt(ctx, req, d)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			d.done()
			return nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}

	r.logger.Debug("stream failed", "assistant", req.Assistant, "error", lastErr)
	d.error(lastErr)
	return lastErr
}

// attempt performs a single request and forwards its deltas.
func (r *Runner) attempt(ctx context.Context, req Request, d deliverer) error {
	s, err := r.client.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer s.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		evt, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch e := evt.(type) {
		case EventDelta:
			d.chunk(e.Text)
		case EventFinish:
			r.logger.Debug("choice finished", "assistant", req.Assistant, "reason", e.Reason)
		}
	}
}

// gate serialises callback delivery against cancellation. Callbacks run
// with mu held, so once stop returns none is running and none will start.
type gate struct {
	mu      sync.Mutex
	stopped bool
	ended   atomic.Bool // a terminal callback has been entered
}

// stop blocks until any callback in progress returns. After a terminal
// callback has begun there is nothing left to suppress, so stop returns at
// once; this lets OnDone and OnError cancel their own run.
func (g *gate) stop() {
	if g.ended.Load() {
		return
	}
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
}

// call runs fn unless the gate is stopped.
func (g *gate) call(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	fn()
	return true
}

// end runs the terminal fn unless the gate is stopped, and stops it.
func (g *gate) end(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	g.stopped = true
	g.ended.Store(true)
	fn()
	return true
}

// deliverer invokes handler callbacks through a gate, and only while ctx is
// live.
type deliverer struct {
	ctx context.Context
	h   Handler
	g   *gate
}

func (d deliverer) live() bool { return d.ctx.Err() == nil }

func (d deliverer) chunk(text string) {
	if d.h.OnChunk == nil {
		return
	}
	d.g.call(func() {
		if d.live() {
			d.h.OnChunk(text)
		}
	})
}

func (d deliverer) retry(attempt int, delay time.Duration, err error) {
	if d.h.OnRetry == nil {
		return
	}
	d.g.call(func() {
		if d.live() {
			d.h.OnRetry(attempt, delay, err)
		}
	})
}

func (d deliverer) done() {
	d.g.end(func() {
		if d.h.OnDone != nil && d.live() {
			d.h.OnDone()
		}
	})
}

func (d deliverer) error(err error) {
	d.g.end(func() {
		if d.h.OnError != nil && d.live() {
			d.h.OnError(err)
		}
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
