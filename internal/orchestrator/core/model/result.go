package model

import (
	"errors"
	"fmt"
	"time"
)

// ResultStatus defines the outcome reported by the control plane.
type ResultStatus string

const (
	ResultStatusSuccess    ResultStatus = "success"
	ResultStatusFailure    ResultStatus = "failure"
	ResultStatusInProgress ResultStatus = "in-progress"
)

// Valid reports whether s is part of the protocol vocabulary.
func (s ResultStatus) Valid() bool {
	switch s {
	case ResultStatusSuccess, ResultStatusFailure, ResultStatusInProgress:
		return true
	default:
		return false
	}
}

// CommandResult is the outcome of a command, or an unsolicited status push
// when CorrelationID is empty.
type CommandResult struct {
	CorrelationID string
	ResourceID    string
	Status        ResultStatus

	// Error is the free-text detail the control plane attached, if any.
	Error string

	Timestamp time.Time
}

// Unsolicited reports whether r answers no command.
func (r *CommandResult) Unsolicited() bool {
	return r.CorrelationID == ""
}

// Validate checks the fields every inbound result must carry.
func (r *CommandResult) Validate() error {
	if r.ResourceID == "" {
		return errors.New("resourceId is required")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	return nil
}

// DeliveryKind tells a result delivery from a connection-loss signal.
type DeliveryKind int

const (
	DeliveryResult DeliveryKind = iota
	DeliveryConnectionLost
)

func (k DeliveryKind) String() string {
	switch k {
	case DeliveryResult:
		return "Result"
	case DeliveryConnectionLost:
		return "ConnectionLost"
	default:
		return fmt.Sprintf("DeliveryKind(%d)", int(k))
	}
}

// Delivery is one item of the channel between the transport and the orchestrator.
type Delivery struct {
	Kind DeliveryKind

	// Epoch is the connection the item was produced on.
	Epoch uint64

	// Result is set for DeliveryResult.
	Result *CommandResult

	// Err is the cause of a DeliveryConnectionLost.
	Err error
}

// ResultDelivery wraps a decoded result.
func ResultDelivery(epoch uint64, r *CommandResult) Delivery {
	return Delivery{Kind: DeliveryResult, Epoch: epoch, Result: r}
}

// LostDelivery is the connection-loss signal for epoch.
func LostDelivery(epoch uint64, err error) Delivery {
	return Delivery{Kind: DeliveryConnectionLost, Epoch: epoch, Err: err}
}

// ConnectionHandle describes one established connection.
type ConnectionHandle struct {
	// Epoch increases by one on every successful Connect.
	Epoch       uint64
	Endpoint    string
	ConnectedAt time.Time
}
