package sse_test

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/fwojciec/relay/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line   string
		want   string
		wantOK bool
	}{
		{line: `data: {"a":1}`, want: `{"a":1}`, wantOK: true},
		{line: "data:  [DONE]  ", want: "[DONE]", wantOK: true},
		{line: "data: ", want: "", wantOK: true},
		{line: "data:{}", wantOK: false},
		{line: ": keep-alive", wantOK: false},
		{line: "event: message", wantOK: false},
		{line: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()
			got, ok := sse.Data(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecoder_Feed(t *testing.T) {
	t.Parallel()

	t.Run("frame split across reads", func(t *testing.T) {
		t.Parallel()
		var d sse.Decoder

		assert.Empty(t, d.Feed([]byte(`data: {"choices":[{"delta":{"con`)))
		assert.True(t, d.Buffered())

		got := d.Feed([]byte("tent\":\"Hi\"}}]}\n\n"))
		assert.Equal(t, []string{`data: {"choices":[{"delta":{"content":"Hi"}}]}`, ""}, got)
		assert.False(t, d.Buffered())
	})

	t.Run("several lines in one read", func(t *testing.T) {
		t.Parallel()
		var d sse.Decoder
		got := d.Feed([]byte("data: a\ndata: b\ndata: c"))
		assert.Equal(t, []string{"data: a", "data: b"}, got)
		assert.Equal(t, "data: c", d.Flush())
		assert.Empty(t, d.Flush())
	})

	t.Run("strips carriage returns", func(t *testing.T) {
		t.Parallel()
		var d sse.Decoder
		got := d.Feed([]byte("data: a\r\n\r\n"))
		assert.Equal(t, []string{"data: a", ""}, got)
	})

	t.Run("byte at a time", func(t *testing.T) {
		t.Parallel()
		var d sse.Decoder
		var lines []string
		for _, b := range []byte("data: x\ndata: y\n") {
			lines = append(lines, d.Feed([]byte{b})...)
		}
		assert.Equal(t, []string{"data: x", "data: y"}, lines)
	})
}

func readAll(t *testing.T, r *sse.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

func TestReader_ReadLine(t *testing.T) {
	t.Parallel()

	t.Run("reads lines", func(t *testing.T) {
		t.Parallel()
		r := sse.NewReader(strings.NewReader("data: a\n\ndata: b\n"))
		assert.Equal(t, []string{"data: a", "", "data: b"}, readAll(t, r))
	})

	t.Run("one byte reads", func(t *testing.T) {
		t.Parallel()
		r := sse.NewReader(iotest.OneByteReader(strings.NewReader("data: a\ndata: b\n")))
		assert.Equal(t, []string{"data: a", "data: b"}, readAll(t, r))
	})

	t.Run("unterminated final line", func(t *testing.T) {
		t.Parallel()
		r := sse.NewReader(strings.NewReader("data: a\ndata: [DONE]"))
		assert.Equal(t, []string{"data: a", "data: [DONE]"}, readAll(t, r))
	})

	t.Run("data returned with EOF", func(t *testing.T) {
		t.Parallel()
		r := sse.NewReader(iotest.DataErrReader(strings.NewReader("data: a\ndata: b")))
		assert.Equal(t, []string{"data: a", "data: b"}, readAll(t, r))
	})

	t.Run("read error after buffered lines", func(t *testing.T) {
		t.Parallel()
		wantErr := errors.New("connection reset")
		r := sse.NewReader(io.MultiReader(strings.NewReader("data: a\n"), iotest.ErrReader(wantErr)))

		line, err := r.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "data: a", line)

		_, err = r.ReadLine()
		assert.ErrorIs(t, err, wantErr)
		_, err = r.ReadLine()
		assert.ErrorIs(t, err, wantErr)
	})
}
