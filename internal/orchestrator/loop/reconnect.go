package loop

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
)

// handleLost parks every outstanding command and starts reconnecting.
// Resources keep their states. A signal for an old epoch is ignored; one for
// an epoch the loop has not adopted yet is kept until the reconnect outcome
// for that epoch arrives.
func (o *Orchestrator) handleLost(ctx context.Context, d model.Delivery) {
	if !o.connected && d.Epoch > o.epoch {
		o.log.Debug("Connection lost before reconnect completed", "epoch", d.Epoch, "current", o.epoch)
		if d.Epoch > o.lostAhead {
			o.lostAhead = d.Epoch
			o.lostAheadErr = d.Err
		}
		return
	}
	if !o.connected || d.Epoch != o.epoch {
		o.log.Debug("Ignoring stale connection loss", "epoch", d.Epoch, "current", o.epoch)
		return
	}
	o.setConnected(false)

	inflight := make([]*entry, 0, len(o.outstanding))
	for _, e := range o.outstanding {
		inflight = append(inflight, e)
	}
	sort.Slice(inflight, func(i, j int) bool { return inflight[i].cmd.IssuedAt.Before(inflight[j].cmd.IssuedAt) })

	for _, e := range inflight {
		o.untrack(e.cmd.CorrelationID, model.DiscardConnectionLost)
		res := o.resources[e.cmd.ResourceID]
		res.pending = append(res.pending, e.cmd)
	}

	o.emit(model.Event{Type: model.EventConnectionLost, Epoch: d.Epoch, Count: len(inflight), Err: d.Err})
	o.startReconnect(ctx, 0)
}

func (o *Orchestrator) startReconnect(ctx context.Context, delay time.Duration) {
	if o.reconnecting {
		return
	}
	o.reconnecting = true
	go o.reconnect(ctx, delay)
}

// reconnect runs one round of bounded exponential backoff off the loop
// goroutine and posts the outcome back into it. Delays follow the loop clock.
func (o *Orchestrator) reconnect(ctx context.Context, delay time.Duration) {
	if delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-o.clock.After(delay):
		}
	}

	var out reconnectOutcome
	backoff := o.cfg.Reconnect
	for {
		out.attempts++
		handle, err := o.transport.Connect(ctx)
		if err == nil {
			out.handle = handle
			break
		}
		o.log.Info("Reconnect attempt failed", "attempt", out.attempts, "err", err)

		// Step zeroes Steps once the delay reaches Cap.
		if backoff.Steps <= 1 {
			var ce *model.ConnectionError
			if !errors.As(err, &ce) {
				ce = &model.ConnectionError{Err: err}
			}
			out.err = &model.ConnectionError{Endpoint: ce.Endpoint, Attempts: out.attempts, Err: ce.Err}
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-o.clock.After(backoff.Step()):
		}
	}

	select {
	case o.reconnects <- out:
	case <-ctx.Done():
	}
}

// handleReconnect either re-issues every parked command on the new
// connection or schedules the next round after the cooldown.
func (o *Orchestrator) handleReconnect(ctx context.Context, out reconnectOutcome) {
	o.reconnecting = false

	if out.err != nil {
		o.emit(model.Event{Type: model.EventConnectionError, Epoch: o.epoch, Count: out.attempts, Err: out.err})
		o.startReconnect(ctx, o.cfg.ReconnectCooldown)
		return
	}

	o.epoch = out.handle.Epoch
	if o.epoch <= o.lostAhead {
		// The new link dropped before the loop adopted it.
		o.emit(model.Event{Type: model.EventConnectionLost, Epoch: o.epoch, Err: o.lostAheadErr})
		o.lostAheadErr = nil
		o.startReconnect(ctx, 0)
		return
	}
	o.setConnected(true)

	now := o.clock.Now()
	reissued := 0
	for _, id := range o.sortedIDs() {
		reissued += o.flush(ctx, o.resources[id], now)
	}

	o.emit(model.Event{Type: model.EventConnectionRestored, Epoch: out.handle.Epoch, Count: reissued})
}
