package relay

import "time"

// Transcript is a persisted conversation. SessionID is forwarded to the
// server so a resumed conversation reattaches to its backend session.
type Transcript struct {
	ID        string
	Assistant string
	SessionID string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}
