package model

import "time"

// EventType names an observability event.
type EventType string

const (
	EventConnected          EventType = "Connected"
	EventDecodeError        EventType = "DecodeError"
	EventConnectionLost     EventType = "ConnectionLost"
	EventConnectionRestored EventType = "ConnectionRestored"
	EventConnectionError    EventType = "ConnectionError"
	EventRetryExhausted     EventType = "RetryExhausted"
	EventStateTransition    EventType = "StateTransition"
	EventResultDiscarded    EventType = "ResultDiscarded"
	EventCommandIssued      EventType = "CommandIssued"
	EventResultReceived     EventType = "ResultReceived"
)

// Event is a structured observability record. Fields irrelevant to Type are zero.
type Event struct {
	Type          EventType
	ResourceID    string
	CorrelationID string
	Kind          CommandKind
	Status        ResultStatus

	// From and To are set for state transitions.
	From ResourceState
	To   ResourceState

	// Epoch is the connection the event refers to.
	Epoch uint64

	// Count is a kind-specific counter: retries spent, commands re-issued,
	// or reconnect attempts.
	Count int

	// Latency is the time between issue and result for ResultReceived.
	Latency time.Duration

	Err  error
	Time time.Time
}
