package json_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/relay"
	relayjson "github.com/fwojciec/relay/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTranscript() relay.Transcript {
	return relay.Transcript{
		ID:        "t-123",
		Assistant: "mcp_assistant",
		SessionID: "sess-9",
		CreatedAt: time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 2, 18, 12, 5, 0, 0, time.UTC),
		Messages: []relay.Message{
			relay.SystemMessage("You are helpful."),
			relay.UserMessage("Which tools are connected?"),
			relay.AssistantMessage("Two MCP servers: **fs** and **git**."),
		},
	}
}

func TestMarshalTranscript_RoundTrip(t *testing.T) {
	t.Parallel()
	want := sampleTranscript()

	data, err := relayjson.MarshalTranscript(want)
	require.NoError(t, err)

	got, err := relayjson.UnmarshalTranscript(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMarshalTranscript_Format(t *testing.T) {
	t.Parallel()
	tr := sampleTranscript()
	tr.Messages = tr.Messages[1:2]

	data, err := relayjson.MarshalTranscript(tr)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"version": 1,
		"id": "t-123",
		"assistant": "mcp_assistant",
		"session_id": "sess-9",
		"created_at": "2026-02-18T12:00:00Z",
		"updated_at": "2026-02-18T12:05:00Z",
		"messages": [{"role": "user", "content": "Which tools are connected?"}]
	}`, string(data))
}

func TestMarshalTranscript_EmptyMessagesIsArray(t *testing.T) {
	t.Parallel()
	data, err := relayjson.MarshalTranscript(relay.Transcript{ID: "x"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"messages": []`)
	assert.NotContains(t, string(data), "session_id")
}

func TestMarshalTranscript_RejectsUnknownRole(t *testing.T) {
	t.Parallel()
	_, err := relayjson.MarshalTranscript(relay.Transcript{Messages: []relay.Message{{Role: "tool"}}})
	assert.ErrorIs(t, err, relay.ErrValidation)
}

func TestUnmarshalTranscript_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{name: "invalid json", data: `{`},
		{name: "unsupported version", data: `{"version": 2, "messages": []}`},
		{name: "missing version", data: `{"messages": []}`},
		{name: "unknown role", data: `{"version": 1, "messages": [{"role": "robot", "content": "hi"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := relayjson.UnmarshalTranscript([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "dir", "transcript.json")
	want := sampleTranscript()

	require.NoError(t, relayjson.Save(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	_, err = os.Stat(path + ".tmp")
	assert.ErrorIs(t, err, os.ErrNotExist)

	got, err := relayjson.Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSave_Overwrites(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "transcript.json")
	first := sampleTranscript()
	require.NoError(t, relayjson.Save(path, first))

	second := first
	second.Messages = append(append([]relay.Message(nil), first.Messages...), relay.UserMessage("More?"))
	require.NoError(t, relayjson.Save(path, second))

	got, err := relayjson.Load(path)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 4)
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()
	_, err := relayjson.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadOrNew(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	fallback := relay.Transcript{ID: "fresh", Assistant: "mcp_assistant"}

	got, err := relayjson.LoadOrNew(filepath.Join(dir, "missing.json"), fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	path := filepath.Join(dir, "existing.json")
	require.NoError(t, relayjson.Save(path, sampleTranscript()))
	got, err = relayjson.LoadOrNew(path, fallback)
	require.NoError(t, err)
	assert.Equal(t, "t-123", got.ID)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = relayjson.LoadOrNew(bad, fallback)
	assert.Error(t, err)
}
