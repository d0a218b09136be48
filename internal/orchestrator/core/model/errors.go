package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is wrapped by a SendError when no connection is established.
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidTransition reports a lifecycle event the current state does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnknownResource is returned for resources the orchestrator does not manage.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrInvalidResourceID is returned for ids that cannot address a resource.
	ErrInvalidResourceID = errors.New("invalid resource id")
)

// ConnectionError means the link to the control plane could not be
// established or maintained.
type ConnectionError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("connection to %s failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
	}
	return fmt.Sprintf("connection to %s failed: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DecodeError means an inbound message could not be turned into a CommandResult.
type DecodeError struct {
	// Raw holds at most the first bytes of the offending message.
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode result: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SendError means a command could not be transmitted.
type SendError struct {
	CorrelationID string
	ResourceID    string
	Err           error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send command %s to %s: %v", e.CorrelationID, e.ResourceID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// DiscardReason explains why a correlated result matched no outstanding command.
type DiscardReason string

const (
	DiscardUnknown        DiscardReason = "unknown"
	DiscardResolved       DiscardReason = "resolved"
	DiscardTimedOut       DiscardReason = "timed-out"
	DiscardSuperseded     DiscardReason = "superseded"
	DiscardConnectionLost DiscardReason = "connection-lost"
	DiscardStaleEpoch     DiscardReason = "stale-epoch"
	DiscardMismatch       DiscardReason = "resource-mismatch"
)

// CorrelationError means a result references an unknown or retired command id.
type CorrelationError struct {
	CorrelationID string
	ResourceID    string
	Reason        DiscardReason
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("result %s for %s discarded: %s", e.CorrelationID, e.ResourceID, e.Reason)
}

// CommandFailure means the control plane explicitly rejected a command.
type CommandFailure struct {
	CorrelationID string
	ResourceID    string
	Kind          CommandKind
	Detail        string
}

func (e *CommandFailure) Error() string {
	detail := e.Detail
	if detail == "" {
		detail = "no detail"
	}
	return fmt.Sprintf("%s of %s rejected: %s", e.Kind, e.ResourceID, detail)
}

// RetryExhausted means a resource spent its retry budget. It is terminal for
// the resource; the orchestrator keeps managing the others.
type RetryExhausted struct {
	ResourceID string
	Kind       CommandKind
	Attempts   int
	Last       error
}

func (e *RetryExhausted) Error() string {
	return fmt.Sprintf("%s of %s gave up after %d attempts: %v", e.Kind, e.ResourceID, e.Attempts, e.Last)
}

func (e *RetryExhausted) Unwrap() error { return e.Last }
