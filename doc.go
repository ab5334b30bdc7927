// Package relay is a streaming chat client for OpenAI-style chat-completion
// endpoints, such as the one exposed by the MCP assistant console backend.
//
// The root package holds the domain types and the transport-independent
// logic: [Runner] drives a [Client] with retry and backoff and reports
// through a three-callback [Handler]; [Conversation] keeps a transcript and
// guarantees a single in-flight turn. Adapters live in subpackages named
// after what they wrap (openai, sse, json, goldmark, bubbletea), and
// cmd/relay wires them together.
package relay
