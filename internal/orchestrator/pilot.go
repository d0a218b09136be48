package orchestrator

import (
	"context"
	"errors"
	"math"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/loop"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/server"
	"github.com/autopeer-io/clusterpilot/pkg/log"
	"github.com/autopeer-io/clusterpilot/pkg/options"
)

// Pilot is the cpeer-orchestrator process: one transport, one control loop
// and the HTTP server around them.
type Pilot struct {
	transport core.Transport
	loop      *loop.Orchestrator
	http      server.Server
	resources []options.ResourceSpec

	endpoint       string
	startupTimeout time.Duration
	startupBackoff wait.Backoff
}

// Loop returns the control loop driven by Run.
func (p *Pilot) Loop() *loop.Orchestrator {
	return p.loop
}

// Run connects to the control plane and drives the control loop until ctx
// is cancelled. It fails with a *model.ConnectionError when the control
// plane cannot be reached within the startup timeout.
func (p *Pilot) Run(ctx context.Context) error {
	log.Info("Starting cpeer-orchestrator", "endpoint", p.endpoint, "resources", len(p.resources))

	handle, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.transport.Close(closeCtx); err != nil {
			log.Error(err, "Failed to close transport")
		}
	}()

	mgr := server.NewManager(
		server.ServerFunc(func(ctx context.Context) error { return p.loop.Run(ctx, handle) }),
		p.http,
		server.ServerFunc(p.provisionResources),
	)
	if err := mgr.Start(ctx); err != nil {
		return err
	}

	log.Info("Shutting down cpeer-orchestrator.")
	return nil
}

// connect retries with backoff until the startup timeout expires.
func (p *Pilot) connect(ctx context.Context) (model.ConnectionHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.startupTimeout)
	defer cancel()

	// Only the startup timeout ends this loop.
	backoff := p.startupBackoff
	backoff.Steps = math.MaxInt32
	backoff.Cap = 0

	var (
		handle   model.ConnectionHandle
		attempts int
		lastErr  error
	)
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		attempts++
		h, err := p.transport.Connect(ctx)
		if err != nil {
			lastErr = err
			log.Warn("Control plane not reachable yet", "endpoint", p.endpoint, "attempt", attempts, "err", err)
			return false, nil
		}
		handle = h
		return true, nil
	})
	if err == nil {
		return handle, nil
	}

	if lastErr == nil {
		lastErr = err
	}
	cause := lastErr
	var ce *model.ConnectionError
	if errors.As(lastErr, &ce) {
		cause = ce.Err
	}
	return model.ConnectionHandle{}, &model.ConnectionError{Endpoint: p.endpoint, Attempts: attempts, Err: cause}
}

// provisionResources provisions every statically configured resource once.
func (p *Pilot) provisionResources(ctx context.Context) error {
	for _, spec := range p.resources {
		var payload model.Payload
		if spec.Replicas > 0 {
			payload = model.ScalePayload(spec.Replicas)
		}

		id, err := p.loop.Provision(ctx, spec.ID, payload)
		switch {
		case err == nil:
			log.Info("Provisioning configured resource", "resource", spec.ID, "correlationID", id)
		case ctx.Err() != nil, errors.Is(err, loop.ErrStopped):
			return nil
		default:
			log.Error(err, "Failed to provision configured resource", "resource", spec.ID)
		}
	}
	return nil
}
