package loop

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
	fsmutil "github.com/autopeer-io/clusterpilot/internal/pkg/util/fsm"
)

const (
	// EventProvision (Active) starts provisioning a new or failed resource.
	EventProvision = "provision"
	// EventScale (Active) starts resizing a resource.
	EventScale = "scale"
	// EventTerminate (Active) starts tearing a resource down.
	EventTerminate = "terminate"
	// EventSucceed completes the operation in progress.
	EventSucceed = "succeed"
	// EventFail records a rejected or abandoned operation.
	EventFail = "fail"
	// EventRecover returns a failed resource to Ready after a passing health-check.
	EventRecover = "recover"
)

var (
	stateUnknown      = string(model.ResourceStateUnknown)
	stateProvisioning = string(model.ResourceStateProvisioning)
	stateReady        = string(model.ResourceStateReady)
	stateScaling      = string(model.ResourceStateScaling)
	stateTerminating  = string(model.ResourceStateTerminating)
	stateTerminated   = string(model.ResourceStateTerminated)
	stateFailed       = string(model.ResourceStateFailed)
)

// activeEvent maps a command kind to the lifecycle event issuing it fires.
// Health-checks leave the state alone.
func activeEvent(kind model.CommandKind) (string, bool) {
	switch kind {
	case model.CommandKindProvision:
		return EventProvision, true
	case model.CommandKindScale:
		return EventScale, true
	case model.CommandKindTerminate:
		return EventTerminate, true
	case model.CommandKindHealthCheck:
		return "", false
	default:
		panic(fmt.Sprintf("unhandled command kind %q", kind))
	}
}

// inProgressState is the state an outstanding command of kind keeps its resource in.
func inProgressState(kind model.CommandKind) model.ResourceState {
	switch kind {
	case model.CommandKindProvision:
		return model.ResourceStateProvisioning
	case model.CommandKindScale:
		return model.ResourceStateScaling
	case model.CommandKindTerminate:
		return model.ResourceStateTerminating
	case model.CommandKindHealthCheck:
		return ""
	default:
		panic(fmt.Sprintf("unhandled command kind %q", kind))
	}
}

// TransitionFunc is told about every state change.
type TransitionFunc func(event string, from, to model.ResourceState)

// Lifecycle is the state machine of one managed resource.
type Lifecycle struct {
	*fsm.FSM
}

// NewLifecycle creates a lifecycle in initial state.
func NewLifecycle(initial model.ResourceState, onTransition TransitionFunc) *Lifecycle {
	l := &Lifecycle{}

	events := fsm.Events{
		{Name: EventProvision, Src: []string{stateUnknown, stateFailed}, Dst: stateProvisioning},
		{Name: EventScale, Src: []string{stateReady, stateFailed}, Dst: stateScaling},
		{Name: EventTerminate, Src: []string{stateProvisioning, stateReady, stateScaling, stateFailed}, Dst: stateTerminating},

		{Name: EventSucceed, Src: []string{stateProvisioning, stateScaling}, Dst: stateReady},
		{Name: EventSucceed, Src: []string{stateTerminating}, Dst: stateTerminated},

		{Name: EventFail, Src: []string{stateUnknown, stateProvisioning, stateReady, stateScaling, stateTerminating, stateFailed}, Dst: stateFailed},
		{Name: EventRecover, Src: []string{stateFailed}, Dst: stateReady},
	}

	callbacks := fsm.Callbacks{
		// Guards (before_...): Decide if a transition is allowed
		"before_" + EventScale: fsmutil.WrapEvent(l.GuardReplicas),

		// Side-Effects: report every state change
		"enter_state": fsmutil.OnTransition(func(_ context.Context, event, from, to string) {
			if onTransition != nil {
				onTransition(event, model.ResourceState(from), model.ResourceState(to))
			}
		}),
	}

	l.FSM = fsm.NewFSM(string(initial), events, callbacks)
	return l
}

// GuardReplicas is a "Guard" callback.
// It cancels a scale whose command carries no usable replica count.
func (l *Lifecycle) GuardReplicas(ctx context.Context, e *fsm.Event) error {
	if len(e.Args) == 0 {
		return nil
	}
	cmd, ok := e.Args[0].(*model.Command)
	if !ok {
		return nil
	}
	if n, ok := cmd.Payload.Replicas(); !ok || n < 0 {
		e.Cancel(fmt.Errorf("scale of %s needs a non-negative %q payload", cmd.ResourceID, model.PayloadReplicas))
	}
	return nil
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() model.ResourceState {
	return model.ResourceState(l.Current())
}

// Fire runs event. A rejected event is reported as model.ErrInvalidTransition,
// an event leaving the state unchanged is not an error.
func (l *Lifecycle) Fire(ctx context.Context, event string, args ...any) error {
	from := l.State()
	err := fsmutil.IgnoreNoTransition(l.Event(ctx, event, args...))
	if err == nil {
		return nil
	}
	if reason, ok := fsmutil.CancelReason(err); ok && reason != nil {
		return reason
	}
	if fsmutil.IsInvalidEvent(err) {
		return fmt.Errorf("%w: %s from %s", model.ErrInvalidTransition, event, from)
	}
	return errors.Join(model.ErrInvalidTransition, err)
}
