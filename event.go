package relay

// Event is a sealed interface representing a semantic streaming event.
// Transport and protocol errors come from Stream.Next's error return, and
// completion is signalled by io.EOF, never by an event.
type Event interface {
	event()
}

// EventDelta carries an incremental fragment of assistant text.
type EventDelta struct {
	Text string
}

func (EventDelta) event() {}

// EventFinish reports the finish_reason attached to a choice.
type EventFinish struct {
	Reason string
}

func (EventFinish) event() {}

// Interface compliance checks.
var (
	_ Event = EventDelta{}
	_ Event = EventFinish{}
)
