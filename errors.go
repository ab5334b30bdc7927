package relay

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrNoCredentials indicates no bearer token is available.
	ErrNoCredentials = errors.New("no credentials")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")
)

// ErrorKind classifies a failure reported by a Client.
type ErrorKind int

const (
	// ErrorTransport is a network failure or a non-2xx HTTP status received
	// before streaming began.
	ErrorTransport ErrorKind = iota + 1

	// ErrorProtocol is an error object embedded in an otherwise well-formed
	// stream chunk.
	ErrorProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorTransport:
		return "transport"
	case ErrorProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is a stream failure. Message is the human-readable text delivered to
// Handler.OnError; StatusCode is set for HTTP failures.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// retryable reports whether err may succeed on a fresh attempt. Local
// misconfiguration never does.
func retryable(err error) bool {
	return !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNoCredentials)
}
