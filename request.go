package relay

import "fmt"

// Request is a single chat-completion request. It is built once per send and
// passed by value. Optional fields that are nil or empty are omitted from
// the wire payload, never sent as null.
type Request struct {
	Assistant   string // sent as "model"; required
	Messages    []Message
	SessionID   string   // "" = no session
	Temperature *float64 // nil = server default
	MaxTokens   *int     // nil = server default
}

// Validate checks the request before it is sent.
func (r Request) Validate() error {
	if r.Assistant == "" {
		return fmt.Errorf("assistant is required: %w", ErrValidation)
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: unknown role %q: %w", i, m.Role, ErrValidation)
		}
	}
	if r.Temperature != nil {
		if *r.Temperature < 0 || *r.Temperature > 2 {
			return fmt.Errorf("temperature must be in [0, 2], got %g: %w", *r.Temperature, ErrValidation)
		}
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d: %w", *r.MaxTokens, ErrValidation)
	}
	return nil
}
