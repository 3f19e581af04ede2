package gwerrors

import (
	"io"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

func TestErrorKinds(t *testing.T) {
	te := NewTransportError("read", "127.0.0.1:1", io.EOF)
	assert.T(t, IsTransportError(te), "transport error")
	assert.T(t, !IsProtocolError(te), "not a protocol error")
	assert.Equal(t, io.EOF, errors.Cause(te))

	pe := errors.Wrap(NewProtocolError(7, "bad index %d", 3), "handle delta")
	assert.T(t, IsProtocolError(pe), "protocol error through wrap")
	assert.T(t, !IsTransient(pe), "not transient")
	assert.T(t, IsTransient(NewTransientProtocolError(7, "unknown")), "transient")

	ie := NewIntegrityError(3, "double register")
	assert.T(t, IsIntegrityError(ie), "integrity error")
	assert.Equal(t, "integrity error on entity 3: double register", ie.Error())
}
