// Package json persists relay transcripts as versioned JSON documents.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/relay"
)

const currentVersion = 1

// envelope is the v1 wire format for a persisted transcript.
type envelope struct {
	Version   int          `json:"version"`
	ID        string       `json:"id"`
	Assistant string       `json:"assistant"`
	SessionID string       `json:"session_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Messages  []messageDTO `json:"messages"`
}

type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MarshalTranscript serializes a Transcript in v1 envelope format.
func MarshalTranscript(t relay.Transcript) ([]byte, error) {
	env := envelope{
		Version:   currentVersion,
		ID:        t.ID,
		Assistant: t.Assistant,
		SessionID: t.SessionID,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Messages:  make([]messageDTO, len(t.Messages)),
	}
	for i, m := range t.Messages {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("message %d: unknown role %q: %w", i, m.Role, relay.ErrValidation)
		}
		env.Messages[i] = messageDTO{Role: string(m.Role), Content: m.Content}
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalTranscript deserializes a Transcript from v1 envelope format.
func UnmarshalTranscript(data []byte) (relay.Transcript, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return relay.Transcript{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != currentVersion {
		return relay.Transcript{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	msgs := make([]relay.Message, len(env.Messages))
	for i, dto := range env.Messages {
		role := relay.Role(dto.Role)
		if !role.Valid() {
			return relay.Transcript{}, fmt.Errorf("message %d: unknown role %q: %w", i, dto.Role, relay.ErrValidation)
		}
		msgs[i] = relay.Message{Role: role, Content: dto.Content}
	}
	return relay.Transcript{
		ID:        env.ID,
		Assistant: env.Assistant,
		SessionID: env.SessionID,
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
		Messages:  msgs,
	}, nil
}

// Save writes a Transcript to path, creating parent directories as needed.
// The file is replaced atomically.
func Save(path string, t relay.Transcript) error {
	data, err := MarshalTranscript(t)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a Transcript from path.
func Load(path string) (relay.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return relay.Transcript{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalTranscript(data)
}

// LoadOrNew reads the transcript at path, or returns fallback when the file
// does not exist yet.
func LoadOrNew(path string, fallback relay.Transcript) (relay.Transcript, error) {
	t, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return fallback, nil
	}
	return t, err
}
