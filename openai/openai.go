// Package openai implements [relay.Client] for OpenAI-compatible
// chat-completion endpoints that stream over server-sent events.
//
// The wire format is the one served by the MCP assistant console backend:
// a POST to /api/v1/chat/completions answered with "data: {json}" frames
// carrying choices[0].delta.content, terminated by "data: [DONE]".
package openai

import (
	"encoding/json"
	"strings"
)

const (
	defaultBaseURL  = "http://localhost:8000"
	completionsPath = "/api/v1/chat/completions"

	// errorInStream is reported when an error frame carries no message.
	errorInStream = "Error in stream"
)

// apiRequest is the JSON body sent to the completions endpoint. Optional
// fields are omitted rather than sent as null.
type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Stream      bool         `json:"stream"`
	SessionID   string       `json:"session_id,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiStreamChunk is one decoded data frame. Only the fields the client acts
// on are declared.
type apiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

// apiErrorBody covers the error shapes returned with non-2xx statuses.
type apiErrorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// apiValidationIssue is one entry of a FastAPI 422 detail list.
type apiValidationIssue struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// errorText extracts a message from an "error" value, which servers send
// either as a string or as an object with a message field. ok is false when
// raw is absent or null.
func errorText(raw json.RawMessage) (msg string, ok bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Message, true
	}
	return "", true
}

// detailText extracts a message from a FastAPI "detail" value.
func detailText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var issues []apiValidationIssue
	if err := json.Unmarshal(raw, &issues); err == nil {
		msgs := make([]string, 0, len(issues))
		for _, is := range issues {
			if is.Msg != "" {
				msgs = append(msgs, is.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
