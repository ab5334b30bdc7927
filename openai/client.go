package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fwojciec/relay"
	goopenai "github.com/sashabaranov/go-openai"
)

// Interface compliance checks.
var (
	_ relay.Client    = (*Client)(nil)
	_ relay.Completer = (*Client)(nil)
)

// Client implements [relay.Client] and [relay.Completer] over HTTP.
type Client struct {
	creds      relay.Credentials
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for skipped frames. Defaults to discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a [Client] that authenticates with creds.
func New(creds relay.Credentials, opts ...Option) *Client {
	c := &Client{
		creds:      creds,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream sends a streaming request and returns a [relay.Stream] of text
// deltas. Failures before the first byte of the body are *relay.Error
// values of kind ErrorTransport.
func (c *Client) Stream(ctx context.Context, req relay.Request) (relay.Stream, error) {
	resp, err := c.do(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return newStream(ctx, resp.Body, c.logger), nil
}

// Complete sends a non-streaming request and returns the whole reply.
func (c *Client) Complete(ctx context.Context, req relay.Request) (relay.Completion, error) {
	resp, err := c.do(ctx, req, false)
	if err != nil {
		return relay.Completion{}, err
	}
	defer resp.Body.Close()

	var out goopenai.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return relay.Completion{}, ctx.Err()
		}
		return relay.Completion{}, &relay.Error{Kind: relay.ErrorProtocol, Message: "invalid completion response", Err: err}
	}
	if len(out.Choices) == 0 {
		return relay.Completion{}, &relay.Error{Kind: relay.ErrorProtocol, Message: "completion has no choices"}
	}
	choice := out.Choices[0]
	return relay.Completion{
		ID:           out.ID,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: relay.Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}

// do validates req, sends it and returns a 2xx response.
func (c *Client) do(ctx context.Context, req relay.Request, stream bool) (*http.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	body, err := json.Marshal(buildRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if req.SessionID != "" {
		httpReq.Header.Set("Session-ID", req.SessionID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &relay.Error{Kind: relay.ErrorTransport, Message: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	return resp, nil
}

func buildRequest(req relay.Request, stream bool) apiRequest {
	msgs := make([]apiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, apiMessage{Role: string(m.Role), Content: m.Content})
	}
	return apiRequest{
		Model:       req.Assistant,
		Messages:    msgs,
		Stream:      stream,
		SessionID:   req.SessionID,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

// parseHTTPError builds the error for a non-2xx response. The message is
// taken from detail, message or error.message, in that order.
func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &relay.Error{
			Kind:       relay.ErrorTransport,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP error! status: %d", resp.StatusCode),
			Err:        err,
		}
	}
	return &relay.Error{
		Kind:       relay.ErrorTransport,
		StatusCode: resp.StatusCode,
		Message:    httpErrorMessage(resp.StatusCode, body),
	}
}

func httpErrorMessage(status int, body []byte) string {
	var e apiErrorBody
	if err := json.Unmarshal(body, &e); err == nil {
		if msg := detailText(e.Detail); msg != "" {
			return msg
		}
		if e.Message != "" {
			return e.Message
		}
		if msg, ok := errorText(e.Error); ok && msg != "" {
			return msg
		}
	}
	msg := fmt.Sprintf("HTTP error! status: %d", status)
	if text := strings.TrimSpace(string(body)); text != "" {
		msg += " - " + text
	}
	return msg
}
