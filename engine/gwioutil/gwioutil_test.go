package gwioutil

import (
	"bytes"
	"io"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

type timeout struct{}

func (timeout) Error() string { return "i/o timeout" }
func (timeout) Timeout() bool { return true }

// choppyWriter accepts at most 3 bytes per call and times out every other call
type choppyWriter struct {
	buf   bytes.Buffer
	calls int
}

func (w *choppyWriter) Write(p []byte) (int, error) {
	w.calls++
	if w.calls%2 == 0 {
		return 0, timeout{}
	}
	if len(p) > 3 {
		p = p[:3]
	}
	return w.buf.Write(p)
}

type stuckWriter struct{}

func (stuckWriter) Write(p []byte) (int, error) { return 0, nil }

func TestIsTimeoutError(t *testing.T) {
	assert.T(t, !IsTimeoutError(nil), "nil is not a timeout")
	assert.T(t, IsTimeoutError(timeout{}), "timeout not detected")
	assert.T(t, IsTimeoutError(errors.Wrap(timeout{}, "read")), "wrapped timeout not detected")
	assert.T(t, !IsTimeoutError(io.EOF), "EOF is not a timeout")
}

func TestWriteAll(t *testing.T) {
	w := &choppyWriter{}
	data := []byte("hello colony")
	assert.Equal(t, nil, WriteAll(w, data))
	assert.Equal(t, "hello colony", w.buf.String())

	assert.Equal(t, io.ErrShortWrite, WriteAll(stuckWriter{}, data))
}
