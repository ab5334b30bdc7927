package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/sse"
)

// stream implements [relay.Stream] over an SSE response body.
type stream struct {
	ctx     context.Context
	body    io.ReadCloser
	lines   *sse.Reader
	logger  *slog.Logger
	state   relay.StreamState
	pending []relay.Event
	err     error // terminal error, if any
}

// Interface compliance check.
var _ relay.Stream = (*stream)(nil)

func newStream(ctx context.Context, body io.ReadCloser, logger *slog.Logger) *stream {
	return &stream{
		ctx:    ctx,
		body:   body,
		lines:  sse.NewReader(body),
		logger: logger,
		state:  relay.StreamStateNew,
	}
}

// Next returns the next event. It returns io.EOF on "[DONE]" or when the
// body ends without one.
func (s *stream) Next() (relay.Event, error) {
	switch s.state {
	case relay.StreamStateComplete:
		return nil, io.EOF
	case relay.StreamStateError:
		return nil, s.err
	case relay.StreamStateClosed:
		return nil, relay.ErrStreamClosed
	}

	if len(s.pending) > 0 {
		evt := s.pending[0]
		s.pending = s.pending[1:]
		return evt, nil
	}

	for {
		line, err := s.lines.ReadLine()
		if errors.Is(err, io.EOF) {
			s.state = relay.StreamStateComplete
			return nil, io.EOF
		}
		if err != nil {
			return nil, s.terminate(s.readError(err))
		}

		payload, ok := sse.Data(line)
		if !ok || payload == "" {
			continue
		}
		s.state = relay.StreamStateStreaming
		if payload == sse.Done {
			s.state = relay.StreamStateComplete
			return nil, io.EOF
		}

		events, err := s.decode(payload)
		if err != nil {
			return nil, s.terminate(err)
		}
		if len(events) == 0 {
			continue
		}
		s.pending = events[1:]
		return events[0], nil
	}
}

// State returns the current stream state.
func (s *stream) State() relay.StreamState {
	return s.state
}

// Close closes the underlying response body.
func (s *stream) Close() error {
	if s.state == relay.StreamStateNew || s.state == relay.StreamStateStreaming {
		s.state = relay.StreamStateClosed
	}
	return s.body.Close()
}

func (s *stream) terminate(err error) error {
	s.state = relay.StreamStateError
	s.err = err
	return err
}

// readError maps a body read failure. Reads fail when the request context
// is cancelled; that surfaces as the context error.
func (s *stream) readError(err error) error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	return &relay.Error{Kind: relay.ErrorTransport, Message: err.Error(), Err: err}
}

// decode turns one data payload into events. Payloads that are not valid
// JSON, or not shaped like a chunk, are skipped unless they carry an error.
func (s *stream) decode(payload string) ([]relay.Event, error) {
	var chunk apiStreamChunk
	decodeErr := json.Unmarshal([]byte(payload), &chunk)

	if msg, ok := errorText(chunk.Error); ok {
		if msg == "" {
			msg = errorInStream
		}
		return nil, &relay.Error{Kind: relay.ErrorProtocol, Message: msg}
	}
	if decodeErr != nil {
		s.logger.Debug("skipping malformed frame", "error", decodeErr, "data", payload)
		return nil, nil
	}

	if len(chunk.Choices) == 0 {
		return nil, nil
	}
	choice := chunk.Choices[0]
	var events []relay.Event
	if c := choice.Delta.Content; c != nil && *c != "" {
		events = append(events, relay.EventDelta{Text: *c})
	}
	if r := choice.FinishReason; r != nil && *r != "" {
		events = append(events, relay.EventFinish{Reason: *r})
	}
	return events, nil
}
