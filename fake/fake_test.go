package fake_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/fake"
	"github.com/fwojciec/relay/openai"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "test-token"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestNew_KeepsGinMode(t *testing.T) {
	t.Parallel()

	_ = fake.New()
	assert.Equal(t, gin.TestMode, gin.Mode())
}

func newServer(t *testing.T, opts ...fake.Option) (*fake.Server, *httptest.Server) {
	t.Helper()
	f := fake.New(append([]fake.Option{fake.WithToken(token)}, opts...)...)
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func post(t *testing.T, url, auth, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/v1/chat/completions", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func request(text string) relay.Request {
	return relay.Request{
		Assistant: "mcp_assistant",
		Messages:  []relay.Message{relay.UserMessage(text)},
	}
}

func collect(t *testing.T, s relay.Stream) (string, error) {
	t.Helper()
	defer s.Close()
	var b strings.Builder
	for {
		evt, err := s.Next()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		if d, ok := evt.(relay.EventDelta); ok {
			b.WriteString(d.Text)
		}
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	_, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	_, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/api/v2/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthentication(t *testing.T) {
	t.Parallel()
	_, srv := newServer(t)

	tests := []struct {
		name  string
		creds relay.Credentials
		want  string
	}{
		{name: "wrong token", creds: relay.StaticToken("nope"), want: "Invalid API key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := openai.New(tt.creds, openai.WithBaseURL(srv.URL))
			_, err := client.Stream(context.Background(), request("hi"))

			var re *relay.Error
			require.ErrorAs(t, err, &re)
			assert.Equal(t, http.StatusUnauthorized, re.StatusCode)
			assert.EqualError(t, err, tt.want)
		})
	}

	t.Run("missing header", func(t *testing.T) {
		t.Parallel()
		resp := post(t, srv.URL, "", `{"model":"m","messages":[]}`, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"detail":"Not authenticated"}`, string(body))
	})
}

func TestValidation(t *testing.T) {
	t.Parallel()
	_, srv := newServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing model", body: `{"messages":[]}`},
		{name: "missing messages", body: `{"model":"m"}`},
		{name: "bad role", body: `{"model":"m","messages":[{"role":"tool","content":"x"}]}`},
		{name: "temperature out of range", body: `{"model":"m","messages":[],"temperature":3}`},
		{name: "max tokens zero", body: `{"model":"m","messages":[],"max_tokens":0}`},
		{name: "not json", body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := post(t, srv.URL, token, tt.body, nil)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

			var body struct {
				Detail []struct {
					Msg string `json:"msg"`
				} `json:"detail"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Len(t, body.Detail, 1)
			assert.NotEmpty(t, body.Detail[0].Msg)
		})
	}
}

func TestUnknownAssistant(t *testing.T) {
	t.Parallel()
	_, srv := newServer(t, fake.WithAssistants("mcp_assistant"))
	client := openai.New(relay.StaticToken(token), openai.WithBaseURL(srv.URL))

	req := request("hi")
	req.Assistant = "other"
	_, err := client.Stream(context.Background(), req)

	assert.EqualError(t, err, "Assistant not found: other")
}

func TestStream_Format(t *testing.T) {
	t.Parallel()
	f, srv := newServer(t)
	f.Enqueue(fake.Reply{Pieces: []string{"Hel", "lo"}})

	resp := post(t, srv.URL, token, `{"model":"mcp_assistant","messages":[{"role":"user","content":"hi"}],"stream":true}`,
		map[string]string{"Session-ID": "sess-1"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "sess-1", resp.Header.Get("Session-ID"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	frames := strings.Split(strings.TrimSuffix(string(body), "\n\n"), "\n\n")
	require.Len(t, frames, 5)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &first))
	assert.Equal(t, "chat.completion.chunk", first["object"])
	assert.Equal(t, "mcp_assistant", first["model"])
	assert.True(t, strings.HasPrefix(first["id"].(string), "chatcmpl-"))
	choice := first["choices"].([]any)[0].(map[string]any)
	assert.Equal(t, "assistant", choice["delta"].(map[string]any)["role"])

	assert.Contains(t, frames[1], `"content":"Hel"`)
	assert.Contains(t, frames[2], `"content":"lo"`)
	assert.Contains(t, frames[3], `"finish_reason":"stop"`)
	assert.Equal(t, "data: [DONE]", frames[4])
}

func TestStream_Echo(t *testing.T) {
	t.Parallel()
	f, srv := newServer(t)
	client := openai.New(relay.StaticToken(token), openai.WithBaseURL(srv.URL))

	temp := 0.5
	req := request("hello there")
	req.SessionID = "sess-7"
	req.Temperature = &temp
	s, err := client.Stream(context.Background(), req)
	require.NoError(t, err)
	text, err := collect(t, s)

	require.NoError(t, err)
	assert.Equal(t, "You said: hello there", text)

	got := f.Received()
	require.Len(t, got, 1)
	assert.True(t, got[0].Stream)
	assert.Equal(t, token, got[0].Token)
	assert.Equal(t, "sess-7", got[0].Request.SessionID)
	require.NotNil(t, got[0].Request.Temperature)
	assert.InDelta(t, 0.5, *got[0].Request.Temperature, 1e-9)
	assert.Equal(t, []relay.Message{relay.UserMessage("hello there")}, got[0].Request.Messages)
}

func TestStream_ScriptedFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		reply    fake.Reply
		wantText string
		wantErr  string
		wantKind relay.ErrorKind
	}{
		{
			name:     "http status",
			reply:    fake.Reply{Status: http.StatusServiceUnavailable, Detail: "Assistant is warming up"},
			wantErr:  "Assistant is warming up",
			wantKind: relay.ErrorTransport,
		},
		{
			name:     "in-stream error",
			reply:    fake.Reply{Pieces: []string{"par", "tial"}, StreamError: "MCP server crashed"},
			wantText: "partial",
			wantErr:  "MCP server crashed",
			wantKind: relay.ErrorProtocol,
		},
		{
			name:     "dropped connection",
			reply:    fake.Reply{Pieces: []string{"cut"}, Drop: true},
			wantText: "cut",
			wantKind: relay.ErrorTransport,
		},
		{
			name:     "missing done",
			reply:    fake.Reply{Pieces: []string{"fine"}, OmitDone: true},
			wantText: "fine",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, srv := newServer(t)
			f.Enqueue(tt.reply)
			client := openai.New(relay.StaticToken(token), openai.WithBaseURL(srv.URL))

			s, err := client.Stream(context.Background(), request("hi"))
			var text string
			if err == nil {
				text, err = collect(t, s)
			}

			assert.Equal(t, tt.wantText, text)
			if tt.wantKind == 0 {
				assert.NoError(t, err)
				return
			}
			var re *relay.Error
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.wantKind, re.Kind)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
			}
		})
	}
}

func TestRunner_RetriesAgainstServer(t *testing.T) {
	t.Parallel()
	f, srv := newServer(t)
	f.Enqueue(
		fake.Reply{Status: http.StatusBadGateway, Detail: "upstream"},
		fake.Reply{Pieces: []string{"Hel"}, StreamError: "hiccup"},
		fake.Text("Hello world"),
	)
	client := openai.New(relay.StaticToken(token), openai.WithBaseURL(srv.URL))
	runner := relay.NewRunner(client, relay.WithSleep(func(ctx context.Context, d time.Duration) error { return nil }))
	conv := relay.NewConversation(runner, relay.Transcript{Assistant: "mcp_assistant"})

	done := make(chan struct{})
	var retries int
	conv.Send(context.Background(), "hi", relay.Handler{
		OnRetry: func(int, time.Duration, error) { retries++ },
		OnDone:  func() { close(done) },
		OnError: func(err error) { t.Errorf("unexpected error: %v", err) },
	}, relay.WithRetry(true))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	assert.Equal(t, 2, retries)
	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, relay.AssistantMessage("Hello world"), msgs[1])
	assert.Len(t, f.Received(), 3)
}

func TestComplete(t *testing.T) {
	t.Parallel()
	f, srv := newServer(t)
	f.Enqueue(fake.Reply{Pieces: []string{"All ", "good."}})
	client := openai.New(relay.StaticToken(token), openai.WithBaseURL(srv.URL))

	got, err := client.Complete(context.Background(), request("status?"))

	require.NoError(t, err)
	assert.Equal(t, "All good.", got.Content)
	assert.Equal(t, "stop", got.FinishReason)
	assert.True(t, strings.HasPrefix(got.ID, "chatcmpl-"))
	assert.Equal(t, 2, got.Usage.CompletionTokens)
	assert.False(t, f.Received()[0].Stream)
}

func TestResponder(t *testing.T) {
	t.Parallel()
	_, srv := newServer(t, fake.WithResponder(func(req relay.Request) fake.Reply {
		return fake.Text(strings.ToUpper(req.Messages[0].Content))
	}))
	client := openai.New(relay.StaticToken(token), openai.WithBaseURL(srv.URL))

	s, err := client.Stream(context.Background(), request("shout"))
	require.NoError(t, err)
	text, err := collect(t, s)

	require.NoError(t, err)
	assert.Equal(t, "SHOUT", text)
}

func TestEcho(t *testing.T) {
	t.Parallel()
	assert.Equal(t, fake.Text("Hello!"), fake.Echo(relay.Request{}))
	assert.Equal(t, []string{"You ", "said: ", "a ", "b"}, fake.Echo(request("a b")).Pieces)
}
