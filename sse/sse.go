// Package sse frames a server-sent-events body into lines.
//
// Network reads do not respect line boundaries, so a frame may arrive split
// across any number of reads. Decoder buffers the unterminated tail until the
// rest arrives.
package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// Done is the payload that marks the end of an OpenAI-style stream.
const Done = "[DONE]"

const dataPrefix = "data: "

// Data returns the payload of a data line with surrounding whitespace
// trimmed. ok is false for any other line: blank separators, comments,
// event or id fields.
func Data(line string) (payload string, ok bool) {
	rest, found := strings.CutPrefix(line, dataPrefix)
	if !found {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// Decoder splits a byte stream into lines. The zero value is ready to use.
type Decoder struct {
	buf []byte
}

// Feed appends p and returns every line it completes, without the line
// terminator. A trailing carriage return is removed. The unterminated
// remainder is kept for the next call.
func (d *Decoder) Feed(p []byte) []string {
	d.buf = append(d.buf, p...)
	var lines []string
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimSuffix(d.buf[:i], []byte("\r"))))
		d.buf = d.buf[i+1:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return lines
}

// Flush returns and clears the unterminated remainder.
func (d *Decoder) Flush() string {
	rest := string(bytes.TrimSuffix(d.buf, []byte("\r")))
	d.buf = nil
	return rest
}

// Buffered reports whether an unterminated remainder is held.
func (d *Decoder) Buffered() bool {
	return len(d.buf) > 0
}

const defaultReadSize = 4096

// Reader reads lines from an underlying reader as they arrive.
type Reader struct {
	r       io.Reader
	dec     Decoder
	pending []string
	buf     []byte
	err     error
}

// NewReader returns a Reader that reads from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, buf: make([]byte, defaultReadSize)}
}

// ReadLine returns the next line. When the input ends, an unterminated
// final line is returned first and io.EOF after. Other read errors are
// returned once buffered lines are drained.
func (r *Reader) ReadLine() (string, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			if errors.Is(r.err, io.EOF) && r.dec.Buffered() {
				return r.dec.Flush(), nil
			}
			return "", r.err
		}
		n, err := r.r.Read(r.buf)
		if n > 0 {
			r.pending = r.dec.Feed(r.buf[:n])
		}
		if err != nil {
			r.err = err
		}
	}
	line := r.pending[0]
	r.pending = r.pending[1:]
	return line, nil
}
