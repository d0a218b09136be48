package transport

import (
	"fmt"
	"sync"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
)

// inbound is the receive side of one connection epoch. It decodes wire
// messages and pushes them onto the delivery channel in arrival order.
type inbound struct {
	epoch    uint64
	out      chan<- model.Delivery
	codec    Codec
	observer core.Observer
	clock    clock.PassiveClock

	// closed is closed on deliberate shutdown; a push blocked on a full
	// channel gives up and no loss is signalled afterwards.
	closed    chan struct{}
	closeOnce sync.Once
	lostOnce  sync.Once
}

func newInbound(epoch uint64, out chan<- model.Delivery, codec Codec, obs core.Observer, clk clock.PassiveClock) *inbound {
	return &inbound{
		epoch:    epoch,
		out:      out,
		codec:    codec,
		observer: obs,
		clock:    clk,
		closed:   make(chan struct{}),
	}
}

// deliver decodes raw and blocks until the orchestrator has room for it.
// A message that fails to decode is dropped. It returns false once the
// epoch was closed deliberately.
func (in *inbound) deliver(raw []byte) bool {
	return in.deliverFor(raw, "")
}

// deliverFor is deliver for a message whose envelope already names the
// resource. A result about another resource counts as undecodable.
func (in *inbound) deliverFor(raw []byte, resourceID string) bool {
	r, err := in.codec.DecodeResult(raw)
	if err == nil && resourceID != "" && r.ResourceID != resourceID {
		err = decodeError(raw, fmt.Errorf("resource %q does not match envelope resource %q", r.ResourceID, resourceID))
	}
	if err != nil {
		return in.reject(err)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = in.clock.Now()
	}

	select {
	case in.out <- model.ResultDelivery(in.epoch, r):
		return true
	case <-in.closed:
		return false
	}
}

// reject reports a message that cannot be delivered and keeps the epoch going.
func (in *inbound) reject(err error) bool {
	in.observer.Observe(model.Event{
		Type:  model.EventDecodeError,
		Epoch: in.epoch,
		Err:   err,
		Time:  in.clock.Now(),
	})
	return !in.isClosed()
}

// lost pushes the single connection-loss signal of the epoch.
func (in *inbound) lost(err error) {
	in.lostOnce.Do(func() {
		if in.isClosed() {
			return
		}
		select {
		case in.out <- model.LostDelivery(in.epoch, err):
		case <-in.closed:
		}
	})
}

// close marks the epoch as deliberately shut down.
func (in *inbound) close() {
	in.closeOnce.Do(func() { close(in.closed) })
}

func (in *inbound) isClosed() bool {
	select {
	case <-in.closed:
		return true
	default:
		return false
	}
}
