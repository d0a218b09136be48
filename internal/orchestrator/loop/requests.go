package loop

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
)

// ErrStopped is returned by calls made after the loop has exited.
var ErrStopped = errors.New("orchestrator stopped")

// request is a closure run on the loop goroutine.
type request struct {
	run  func(ctx context.Context)
	done chan struct{}
}

// submit runs fn on the loop goroutine and waits for it.
func (o *Orchestrator) submit(ctx context.Context, fn func(ctx context.Context)) error {
	req := request{run: fn, done: make(chan struct{})}

	select {
	case o.requests <- req:
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Provision starts provisioning resourceID. The resource is created if the
// orchestrator does not manage it yet. It returns the correlation id issued.
func (o *Orchestrator) Provision(ctx context.Context, resourceID string, payload model.Payload) (string, error) {
	return o.call(ctx, func(ctx context.Context) (string, error) {
		return o.start(ctx, resourceID, model.CommandKindProvision, payload)
	})
}

// Scale resizes resourceID to replicas.
func (o *Orchestrator) Scale(ctx context.Context, resourceID string, replicas int) (string, error) {
	return o.call(ctx, func(ctx context.Context) (string, error) {
		return o.start(ctx, resourceID, model.CommandKindScale, model.ScalePayload(replicas))
	})
}

// Terminate tears resourceID down. Every command still in flight for it is
// superseded; its late result is discarded.
func (o *Orchestrator) Terminate(ctx context.Context, resourceID string) (string, error) {
	return o.call(ctx, func(ctx context.Context) (string, error) {
		return o.start(ctx, resourceID, model.CommandKindTerminate, nil)
	})
}

// HealthCheck probes resourceID without changing its state.
func (o *Orchestrator) HealthCheck(ctx context.Context, resourceID string) (string, error) {
	return o.call(ctx, func(ctx context.Context) (string, error) {
		return o.probe(ctx, resourceID)
	})
}

// Resources returns a snapshot of every managed resource, sorted by id.
func (o *Orchestrator) Resources(ctx context.Context) ([]model.ResourceStatus, error) {
	var out []model.ResourceStatus
	err := o.submit(ctx, func(context.Context) {
		out = o.snapshot()
	})
	return out, err
}

// Resource returns a snapshot of one managed resource.
func (o *Orchestrator) Resource(ctx context.Context, resourceID string) (model.ResourceStatus, error) {
	var (
		out   model.ResourceStatus
		found bool
	)
	err := o.submit(ctx, func(context.Context) {
		if res, ok := o.resources[resourceID]; ok {
			out, found = res.Status(), true
		}
	})
	if err != nil {
		return out, err
	}
	if !found {
		return out, fmt.Errorf("%w: %s", model.ErrUnknownResource, resourceID)
	}
	return out, nil
}

func (o *Orchestrator) call(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	var (
		id      string
		callErr error
	)
	if err := o.submit(ctx, func(ctx context.Context) { id, callErr = fn(ctx) }); err != nil {
		return "", err
	}
	return id, callErr
}

// start fires the lifecycle event of kind and issues the command. It runs
// on the loop goroutine.
func (o *Orchestrator) start(ctx context.Context, resourceID string, kind model.CommandKind, payload model.Payload) (string, error) {
	if err := model.ValidateResourceID(resourceID); err != nil {
		return "", err
	}

	now := o.clock.Now()
	res, ok := o.resources[resourceID]
	if !ok {
		if kind != model.CommandKindProvision {
			return "", fmt.Errorf("%w: %s", model.ErrUnknownResource, resourceID)
		}
		res = newManagedResource(resourceID, o.transitionFunc(resourceID), now)
	}

	cmd := model.NewCommandAt(resourceID, kind, payload, now)
	event, _ := activeEvent(kind)
	if err := res.lifecycle.Fire(ctx, event, cmd); err != nil {
		return "", err
	}
	o.resources[resourceID] = res

	o.supersede(res)
	res.resetBudget()
	res.LastError = nil
	o.issue(ctx, res, cmd)
	return cmd.CorrelationID, nil
}

func (o *Orchestrator) probe(ctx context.Context, resourceID string) (string, error) {
	res, ok := o.resources[resourceID]
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrUnknownResource, resourceID)
	}
	switch s := res.State(); s {
	case model.ResourceStateReady, model.ResourceStateFailed:
	default:
		return "", fmt.Errorf("%w: health-check from %s", model.ErrInvalidTransition, s)
	}

	now := o.clock.Now()
	res.lastHealthCheck = now
	cmd := model.NewCommandAt(resourceID, model.CommandKindHealthCheck, nil, now)
	o.issue(ctx, res, cmd)
	return cmd.CorrelationID, nil
}

func (o *Orchestrator) snapshot() []model.ResourceStatus {
	out := make([]model.ResourceStatus, 0, len(o.resources))
	for _, res := range o.resources {
		out = append(out, res.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
