package relay

// StreamState indicates the current state of a Stream.
type StreamState int

const (
	StreamStateNew       StreamState = iota // Before Next() is ever called.
	StreamStateStreaming                    // At least one data line seen.
	StreamStateComplete                     // Next() returned io.EOF.
	StreamStateError                        // Next() returned non-EOF error.
	StreamStateClosed                       // Close() called before terminal state.
)

func (s StreamState) String() string {
	switch s {
	case StreamStateNew:
		return "new"
	case StreamStateStreaming:
		return "streaming"
	case StreamStateComplete:
		return "complete"
	case StreamStateError:
		return "error"
	case StreamStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stream is a single streaming attempt using a pull-based iterator.
// Cancellation flows through the context passed to Client.Stream.
//
// Next returns io.EOF when the server sends the [DONE] sentinel or closes
// the body without one. Once a terminal state is reached every further call
// returns the same result. Close releases the connection and may be called
// at any time.
type Stream interface {
	Next() (Event, error)
	State() StreamState
	Close() error
}
