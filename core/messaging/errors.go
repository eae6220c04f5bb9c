package messaging

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized     = errors.New("dispatcher not initialized with a connection pool")
	ErrDispatcherClosed   = errors.New("dispatcher closed")
	ErrNoConnections      = errors.New("no connections available")
	ErrDuplicateMessageID = errors.New("message id already in flight")
	ErrTransportRequired  = errors.New("transport is required")
	ErrUnknownRouter      = errors.New("unknown routing policy")

	// ErrDispatchTimeout is wrapped by every *TimeoutError.
	ErrDispatchTimeout = errors.New("dispatch timed out")
	// ErrDispatchFailure is wrapped by every *FailureError.
	ErrDispatchFailure = errors.New("dispatch failed")
)

// TimeoutError reports that no ack or fail arrived before the deadline.
// Exhausted is set when retries were enabled and all attempts were used.
type TimeoutError struct {
	ID        MessageID
	Attempts  int
	Exhausted bool
}

func (e *TimeoutError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("message %s timed out: %d attempts exhausted", e.ID, e.Attempts)
	}
	return fmt.Sprintf("message %s timed out", e.ID)
}

func (e *TimeoutError) Unwrap() error { return ErrDispatchTimeout }

// FailureError reports that the receiver explicitly failed the message.
type FailureError struct {
	ID     MessageID
	Reason string
}

func (e *FailureError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("message %s failed", e.ID)
	}
	return fmt.Sprintf("message %s failed: %s", e.ID, e.Reason)
}

func (e *FailureError) Unwrap() error { return ErrDispatchFailure }
