package gateway

import (
	"errors"
)

var (
	// ErrInvalidRequest is returned when an event is malformed or missing
	// required fields. It is reported to the sender; the connection stays
	// open.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrPersistenceFailed is returned when the durable store rejects a
	// write or does not answer in time. The message is not broadcast and
	// not retried; the client may resubmit.
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrConnClosed is returned when writing to a connection that has
	// already been closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned when a connection's outbound buffer is
	// full at the moment of delivery.
	ErrSlowConsumer = errors.New("slow consumer")
)

// Error codes carried on the error event.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeUnauthorized      = "unauthorized"
	CodePersistenceFailed = "persistence_failed"
	CodeInternal          = "internal"
)
