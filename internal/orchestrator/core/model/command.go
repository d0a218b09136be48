package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// CommandKind defines the type of command.
type CommandKind string

const (
	CommandKindProvision   CommandKind = "provision"
	CommandKindScale       CommandKind = "scale"
	CommandKindTerminate   CommandKind = "terminate"
	CommandKindHealthCheck CommandKind = "health-check"
)

// Valid reports whether k is part of the protocol vocabulary.
func (k CommandKind) Valid() bool {
	switch k {
	case CommandKindProvision, CommandKindScale, CommandKindTerminate, CommandKindHealthCheck:
		return true
	default:
		return false
	}
}

// PayloadReplicas is the payload key carrying the desired replica count of a scale command.
const PayloadReplicas = "replicas"

// Payload contains specific arguments for a command.
type Payload map[string]string

// ScalePayload returns the payload of a scale command.
func ScalePayload(replicas int) Payload {
	return Payload{PayloadReplicas: strconv.Itoa(replicas)}
}

// Replicas returns the desired replica count, if present.
func (p Payload) Replicas() (int, bool) {
	v, ok := p[PayloadReplicas]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Clone returns a copy of p that shares no storage with it.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Command represents an instruction sent to one managed resource.
// A Command is never modified after it has been sent.
type Command struct {
	// CorrelationID is the unique token linking the command to its result.
	CorrelationID string

	// ResourceID is the target node or cluster.
	ResourceID string

	// Kind is the command kind.
	Kind CommandKind

	// Payload contains specific arguments for the command.
	Payload Payload

	// IssuedAt is when the command was issued.
	IssuedAt time.Time
}

// NewCommand allocates a command with a fresh correlation id issued now.
func NewCommand(resourceID string, kind CommandKind, payload Payload) *Command {
	return NewCommandAt(resourceID, kind, payload, time.Now())
}

// NewCommandAt is NewCommand with an explicit issue time.
func NewCommandAt(resourceID string, kind CommandKind, payload Payload, now time.Time) *Command {
	return &Command{
		CorrelationID: uuid.NewString(),
		ResourceID:    resourceID,
		Kind:          kind,
		Payload:       payload.Clone(),
		IssuedAt:      now,
	}
}

// Reissue returns a copy of c with a new correlation id and issue time.
func (c *Command) Reissue(now time.Time) *Command {
	return NewCommandAt(c.ResourceID, c.Kind, c.Payload, now)
}

func (c *Command) String() string {
	return fmt.Sprintf("%s/%s(%s)", c.ResourceID, c.Kind, c.CorrelationID)
}

// Matches reports whether result answers command.
// Unsolicited results never match.
func Matches(result *CommandResult, command *Command) bool {
	if result == nil || command == nil || result.Unsolicited() {
		return false
	}
	return result.CorrelationID == command.CorrelationID
}
