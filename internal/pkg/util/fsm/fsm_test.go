package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/looplab/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoor(guard error, transitions *[]string) *fsm.FSM {
	return fsm.NewFSM("closed",
		fsm.Events{
			{Name: "open", Src: []string{"closed"}, Dst: "open"},
			{Name: "close", Src: []string{"open"}, Dst: "closed"},
			{Name: "hold", Src: []string{"open"}, Dst: "open"},
		},
		fsm.Callbacks{
			"before_open": WrapEvent(func(ctx context.Context, e *fsm.Event) error {
				if guard != nil {
					e.Cancel(guard)
				}
				return nil
			}),
			"enter_state": OnTransition(func(_ context.Context, event, from, to string) {
				*transitions = append(*transitions, event+":"+from+"->"+to)
			}),
		},
	)
}

func TestOnTransition(t *testing.T) {
	var transitions []string
	door := newDoor(nil, &transitions)

	require.NoError(t, door.Event(context.Background(), "open"))
	require.NoError(t, door.Event(context.Background(), "close"))
	assert.Equal(t, []string{"open:closed->open", "close:open->closed"}, transitions)
}

func TestIgnoreNoTransition(t *testing.T) {
	var transitions []string
	door := newDoor(nil, &transitions)
	require.NoError(t, door.Event(context.Background(), "open"))

	err := door.Event(context.Background(), "hold")
	require.Error(t, err)
	assert.NoError(t, IgnoreNoTransition(err))
	assert.Len(t, transitions, 1)

	other := errors.New("boom")
	assert.Equal(t, other, IgnoreNoTransition(other))
}

func TestIsInvalidEvent(t *testing.T) {
	var transitions []string
	door := newDoor(nil, &transitions)

	err := door.Event(context.Background(), "close")
	assert.True(t, IsInvalidEvent(err))
	assert.False(t, IsInvalidEvent(errors.New("x")))
}

func TestCancelReason(t *testing.T) {
	var transitions []string
	locked := errors.New("locked")
	door := newDoor(locked, &transitions)

	err := door.Event(context.Background(), "open")
	reason, ok := CancelReason(err)
	require.True(t, ok)
	assert.Equal(t, locked, reason)
	assert.Equal(t, "closed", door.Current())
	assert.Empty(t, transitions)
}
