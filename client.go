package relay

import "context"

// Client performs one streaming attempt against a chat-completion endpoint.
// Retries are the caller's concern; see Runner.
type Client interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Completer performs a non-streaming chat completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Completion is the result of a non-streaming request.
type Completion struct {
	ID           string
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage reports token consumption as returned by the server.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Credentials supplies the bearer token attached to each request. It is
// consulted once per attempt, so rotated tokens are picked up on retry.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the token, or ErrNoCredentials when it is empty.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoCredentials
	}
	return string(t), nil
}

// CredentialsFunc adapts a function to Credentials.
type CredentialsFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f CredentialsFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}
