package openai_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/openai"
	"github.com/stretchr/testify/require"
)

// sseResponse is a canned streaming body, written one frame per flush.
type sseResponse struct {
	frames []string
}

func (s sseResponse) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, f := range s.frames {
			_, _ = io.WriteString(w, f)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func data(payload string) string {
	return "data: " + payload + "\n\n"
}

func testRequest() relay.Request {
	return relay.Request{
		Assistant: "mcp_assistant",
		Messages:  []relay.Message{relay.UserMessage("Hi")},
	}
}

func streamFromSSE(t *testing.T, resp sseResponse) relay.Stream {
	t.Helper()
	srv := httptest.NewServer(resp.handler())
	t.Cleanup(srv.Close)

	client := openai.New(relay.StaticToken("test-token"), openai.WithBaseURL(srv.URL))
	s, err := client.Stream(context.Background(), testRequest())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// collectEvents reads until the stream ends and returns the events and
// the terminal error, nil for a clean io.EOF.
func collectEvents(t *testing.T, s relay.Stream) ([]relay.Event, error) {
	t.Helper()
	var events []relay.Event
	for {
		evt, err := s.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, evt)
	}
}
