package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback. A returned error is stored
// on the event, which cancels it when raised from a before_ callback.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// OnTransition adapts fn to a generic enter_state callback.
func OnTransition(fn func(ctx context.Context, event, from, to string)) fsm.Callback {
	return func(ctx context.Context, e *fsm.Event) {
		fn(ctx, e.Event, e.Src, e.Dst)
	}
}

// IgnoreNoTransition drops the error looplab returns when an event leaves
// the state unchanged.
func IgnoreNoTransition(err error) error {
	var nt fsm.NoTransitionError
	if errors.As(err, &nt) && nt.Err == nil {
		return nil
	}
	return err
}

// IsInvalidEvent reports whether err means the event is not allowed in the
// current state.
func IsInvalidEvent(err error) bool {
	var invalid fsm.InvalidEventError
	return errors.As(err, &invalid)
}

// CancelReason unwraps the error a guard cancelled the event with.
func CancelReason(err error) (error, bool) {
	var canceled fsm.CanceledError
	if !errors.As(err, &canceled) {
		return nil, false
	}
	return canceled.Err, true
}
