package relay

// Message is a single entry in a conversation. Messages are immutable once
// appended to a conversation; the in-flight assistant reply is accumulated
// separately and only becomes a Message when its stream completes.
type Message struct {
	Role    Role
	Content string
}

// UserMessage returns a Message with RoleUser.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns a Message with RoleAssistant.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SystemMessage returns a Message with RoleSystem.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}
