package mock

import (
	"io"
	"sync"

	"github.com/fwojciec/relay"
)

// Interface compliance check.
var _ relay.Stream = (*Stream)(nil)

// Stream is a test double for relay.Stream.
// NextFn panics when nil to catch missing setup. CloseFn and StateFn are
// nil-safe (no-op and StreamStateNew) since callers routinely defer Close.
type Stream struct {
	NextFn  func() (relay.Event, error)
	StateFn func() relay.StreamState
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (relay.Event, error) {
	return s.NextFn()
}

// State delegates to StateFn. Returns StreamStateNew when StateFn is nil.
func (s *Stream) State() relay.StreamState {
	if s.StateFn == nil {
		return relay.StreamStateNew
	}
	return s.StateFn()
}

// Close delegates to CloseFn. No-op when CloseFn is nil.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// Events returns a Stream that yields events in order and then io.EOF.
func Events(events ...relay.Event) *Stream {
	return Failing(nil, events...)
}

// Failing returns a Stream that yields events in order and then err on every
// subsequent call. A nil err ends the stream with io.EOF.
func Failing(err error, events ...relay.Event) *Stream {
	if err == nil {
		err = io.EOF
	}
	var (
		mu    sync.Mutex
		i     int
		state = relay.StreamStateNew
	)
	s := &Stream{}
	s.NextFn = func() (relay.Event, error) {
		mu.Lock()
		defer mu.Unlock()
		if state == relay.StreamStateClosed {
			return nil, relay.ErrStreamClosed
		}
		if i < len(events) {
			evt := events[i]
			i++
			state = relay.StreamStateStreaming
			return evt, nil
		}
		if err == io.EOF {
			state = relay.StreamStateComplete
		} else {
			state = relay.StreamStateError
		}
		return nil, err
	}
	s.StateFn = func() relay.StreamState {
		mu.Lock()
		defer mu.Unlock()
		return state
	}
	s.CloseFn = func() error {
		mu.Lock()
		defer mu.Unlock()
		if state == relay.StreamStateNew || state == relay.StreamStateStreaming {
			state = relay.StreamStateClosed
		}
		return nil
	}
	return s
}
