package loop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
)

func TestLifecycleTransitions(t *testing.T) {
	tests := []struct {
		from    model.ResourceState
		event   string
		want    model.ResourceState
		invalid bool
	}{
		{from: model.ResourceStateUnknown, event: EventProvision, want: model.ResourceStateProvisioning},
		{from: model.ResourceStateFailed, event: EventProvision, want: model.ResourceStateProvisioning},
		{from: model.ResourceStateReady, event: EventProvision, invalid: true},
		{from: model.ResourceStateReady, event: EventTerminate, want: model.ResourceStateTerminating},
		{from: model.ResourceStateProvisioning, event: EventTerminate, want: model.ResourceStateTerminating},
		{from: model.ResourceStateFailed, event: EventTerminate, want: model.ResourceStateTerminating},
		{from: model.ResourceStateUnknown, event: EventTerminate, invalid: true},
		{from: model.ResourceStateProvisioning, event: EventSucceed, want: model.ResourceStateReady},
		{from: model.ResourceStateScaling, event: EventSucceed, want: model.ResourceStateReady},
		{from: model.ResourceStateTerminating, event: EventSucceed, want: model.ResourceStateTerminated},
		{from: model.ResourceStateReady, event: EventSucceed, invalid: true},
		{from: model.ResourceStateScaling, event: EventFail, want: model.ResourceStateFailed},
		{from: model.ResourceStateFailed, event: EventFail, want: model.ResourceStateFailed},
		{from: model.ResourceStateTerminated, event: EventFail, invalid: true},
		{from: model.ResourceStateTerminated, event: EventProvision, invalid: true},
		{from: model.ResourceStateFailed, event: EventRecover, want: model.ResourceStateReady},
		{from: model.ResourceStateReady, event: EventRecover, invalid: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+tt.event, func(t *testing.T) {
			l := NewLifecycle(tt.from, nil)
			err := l.Fire(context.Background(), tt.event)
			if tt.invalid {
				assert.ErrorIs(t, err, model.ErrInvalidTransition)
				assert.Equal(t, tt.from, l.State())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.State())
		})
	}
}

func TestLifecycleScaleGuard(t *testing.T) {
	var seen []string
	l := NewLifecycle(model.ResourceStateReady, func(event string, from, to model.ResourceState) {
		seen = append(seen, event+":"+string(from)+"->"+string(to))
	})

	bad := model.NewCommand("node-1", model.CommandKindScale, model.Payload{model.PayloadReplicas: "many"})
	err := l.Fire(context.Background(), EventScale, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), model.PayloadReplicas)
	assert.Equal(t, model.ResourceStateReady, l.State())
	assert.Empty(t, seen)

	good := model.NewCommand("node-1", model.CommandKindScale, model.ScalePayload(0))
	require.NoError(t, l.Fire(context.Background(), EventScale, good))
	assert.Equal(t, model.ResourceStateScaling, l.State())
	assert.Equal(t, []string{"scale:Ready->Scaling"}, seen)
}

func TestCommandKindEvents(t *testing.T) {
	for _, kind := range []model.CommandKind{model.CommandKindProvision, model.CommandKindScale, model.CommandKindTerminate} {
		event, ok := activeEvent(kind)
		require.True(t, ok, kind)

		l := NewLifecycle(model.ResourceStateFailed, nil)
		require.NoError(t, l.Fire(context.Background(), event, model.NewCommand("r", kind, model.ScalePayload(1))))
		assert.Equal(t, inProgressState(kind), l.State())
	}

	_, ok := activeEvent(model.CommandKindHealthCheck)
	assert.False(t, ok)
	assert.Panics(t, func() { activeEvent(model.CommandKind("reboot")) })
}
