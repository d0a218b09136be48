package model

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ResourceState is the lifecycle state of a managed resource.
type ResourceState string

const (
	ResourceStateUnknown      ResourceState = "Unknown"
	ResourceStateProvisioning ResourceState = "Provisioning"
	ResourceStateReady        ResourceState = "Ready"
	ResourceStateScaling      ResourceState = "Scaling"
	ResourceStateTerminating  ResourceState = "Terminating"
	ResourceStateTerminated   ResourceState = "Terminated"
	ResourceStateFailed       ResourceState = "Failed"
)

// ValidateResourceID rejects ids that cannot name a resource on every
// transport: empty ids, and ids holding '/', '+', '#', spaces or control
// characters.
func ValidateResourceID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidResourceID)
	}
	if i := strings.IndexFunc(id, func(r rune) bool {
		return r == '/' || r == '+' || r == '#' || unicode.IsSpace(r) || unicode.IsControl(r)
	}); i >= 0 {
		return fmt.Errorf("%w: %q has %q at offset %d", ErrInvalidResourceID, id, id[i:i+1], i)
	}
	return nil
}

// Terminal reports whether no further transition can leave s.
func (s ResourceState) Terminal() bool {
	return s == ResourceStateTerminated
}

// ResourceStatus is a read-only snapshot of one managed resource.
type ResourceStatus struct {
	ID    string        `json:"id"`
	State ResourceState `json:"state"`

	// Outstanding lists the correlation ids awaiting a result.
	Outstanding []string `json:"outstanding,omitempty"`

	// Pending counts commands waiting for the connection to come back.
	Pending int `json:"pending,omitempty"`

	// LastKnownGood is the last state confirmed by the control plane.
	LastKnownGood ResourceState `json:"lastKnownGood,omitempty"`

	// LastReport is the last result or status push seen for the resource.
	LastReport *CommandResult `json:"lastReport,omitempty"`

	Retries int `json:"retries"`

	// Exhausted is set once the retry budget is spent; no automatic
	// action is taken for the resource afterwards.
	Exhausted bool `json:"exhausted,omitempty"`

	LastError string    `json:"lastError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
