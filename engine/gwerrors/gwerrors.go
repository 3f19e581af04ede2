// Package gwerrors defines the error kinds of the replication layer.
//
// TransportError is fatal to one connection only. ProtocolError drops the offending
// message. IntegrityError means the entity lifecycle rules were broken locally.
package gwerrors

import (
	"fmt"

	"github.com/colonyworld/replica/engine/common"
	"github.com/pkg/errors"
)

// TransportError is raised when connecting fails or a stream is read or written after the peer is gone
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
}

// Cause returns the underlying network error
func (e *TransportError) Cause() error {
	return e.Err
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is raised for malformed or unexpected messages
type ProtocolError struct {
	Msg      string
	EntityID common.EntityID
	// Transient marks errors caused by expected races, such as a delta for an entity whose CREATE is in flight
	Transient bool
}

func (e *ProtocolError) Error() string {
	if e.EntityID.IsNil() {
		return "protocol error: " + e.Msg
	}
	return fmt.Sprintf("protocol error on entity %s: %s", e.EntityID, e.Msg)
}

// IntegrityError is raised when the entity lifecycle rules are violated by local code
type IntegrityError struct {
	Msg      string
	EntityID common.EntityID
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error on entity %s: %s", e.EntityID, e.Msg)
}

// NewTransportError wraps err as a TransportError with stack
func NewTransportError(op string, addr string, err error) error {
	return errors.WithStack(&TransportError{Op: op, Addr: addr, Err: err})
}

// NewProtocolError creates a ProtocolError with stack
func NewProtocolError(eid common.EntityID, format string, args ...interface{}) error {
	return errors.WithStack(&ProtocolError{Msg: fmt.Sprintf(format, args...), EntityID: eid})
}

// NewTransientProtocolError creates a ProtocolError for an expected race
func NewTransientProtocolError(eid common.EntityID, format string, args ...interface{}) error {
	return errors.WithStack(&ProtocolError{Msg: fmt.Sprintf(format, args...), EntityID: eid, Transient: true})
}

// NewIntegrityError creates an IntegrityError with stack
func NewIntegrityError(eid common.EntityID, format string, args ...interface{}) error {
	return errors.WithStack(&IntegrityError{Msg: fmt.Sprintf(format, args...), EntityID: eid})
}

// IsTransportError checks if err is caused by a TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocolError checks if err is caused by a ProtocolError
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsTransient checks if err is a ProtocolError caused by an expected race
func IsTransient(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Transient
}

// IsIntegrityError checks if err is caused by an IntegrityError
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
