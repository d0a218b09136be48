package core

import (
	"context"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
)

// Transport owns the single logical connection to the control plane.
// Decoded results and the connection-loss signal are delivered through the
// channel the implementation was constructed with, never through this interface.
type Transport interface {
	// Connect blocks until a connection is ready or fails with *model.ConnectionError.
	// It may be called again after the previous connection was lost.
	Connect(ctx context.Context) (model.ConnectionHandle, error)

	// Send transmits cmd without waiting for its result. It fails with a
	// *model.SendError wrapping model.ErrNotConnected when no connection is up.
	Send(ctx context.Context, cmd *model.Command) error

	// Close shuts the connection down deliberately. No loss signal follows.
	Close(ctx context.Context) error
}
