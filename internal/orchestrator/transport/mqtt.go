package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
	"github.com/autopeer-io/clusterpilot/pkg/log"
	"github.com/autopeer-io/clusterpilot/pkg/mqtt"
	"github.com/autopeer-io/clusterpilot/pkg/mqtt/topic"
)

const (
	// commandQoS is at-most-once: a PUBACK would have to be read by the same
	// loop that is blocked on a full delivery channel. Lost commands time out
	// and are retried by the orchestrator.
	commandQoS = 0
	resultQoS  = 1
)

// MQTT is a Transport over an MQTT 5 broker. Commands go to
// {root}/command/{resourceID}; results and status pushes arrive on
// {root}/result/+ and {root}/status/+.
type MQTT struct {
	endpoint string
	client   mqtt.Client
	topics   *topic.TopicBuilder
	codec    Codec
	out      chan<- model.Delivery
	observer core.Observer
	clock    clock.Clock

	connectMu sync.Mutex

	mu    sync.Mutex
	in    *inbound
	epoch uint64
}

var _ core.Transport = (*MQTT)(nil)

// NewMQTT creates an MQTT transport on top of client. The handlers are
// registered immediately and subscribed by every Connect.
func NewMQTT(endpoint string, client mqtt.Client, topicRoot string, codec Codec, out chan<- model.Delivery, obs core.Observer, clk clock.Clock) (*MQTT, error) {
	t := &MQTT{
		endpoint: endpoint,
		client:   client,
		topics:   topic.NewTopicBuilder(topicRoot),
		codec:    codec,
		out:      out,
		observer: obs,
		clock:    clk,
	}

	ctx := context.Background()
	for _, filter := range []string{t.topics.ResultWildcard(), t.topics.StatusWildcard()} {
		if err := client.Subscribe(ctx, filter, resultQoS, t.handle); err != nil {
			return nil, fmt.Errorf("register handler for %s: %w", filter, err)
		}
	}
	return t, nil
}

func (t *MQTT) Connect(ctx context.Context) (model.ConnectionHandle, error) {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	if t.client.IsConnected() {
		return model.ConnectionHandle{}, &model.ConnectionError{Endpoint: t.endpoint, Err: errors.New("already connected")}
	}

	// Messages can arrive while SUBSCRIBE is in flight, so the inbound side of
	// the next epoch is installed before the handshake.
	t.mu.Lock()
	epoch := t.epoch + 1
	in := newInbound(epoch, t.out, t.codec, t.observer, t.clock)
	previous := t.in
	t.in = in
	t.mu.Unlock()

	if err := t.client.Connect(ctx); err != nil {
		in.close()
		t.mu.Lock()
		t.in = previous
		t.mu.Unlock()
		return model.ConnectionHandle{}, &model.ConnectionError{Endpoint: t.endpoint, Err: err}
	}

	t.mu.Lock()
	t.epoch = epoch
	t.mu.Unlock()

	go t.watch(in, t.client.Done())

	log.Info("MQTT transport connected", "endpoint", t.endpoint, "epoch", epoch)
	return model.ConnectionHandle{Epoch: epoch, Endpoint: t.endpoint, ConnectedAt: t.clock.Now()}, nil
}

func (t *MQTT) Send(ctx context.Context, cmd *model.Command) error {
	if err := topic.ValidateSegment(cmd.ResourceID); err != nil {
		return fmt.Errorf("command %s: %w", cmd.CorrelationID, err)
	}
	data, err := t.codec.EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encode command %s: %w", cmd.CorrelationID, err)
	}

	err = t.client.Publish(ctx, t.topics.Command(cmd.ResourceID), commandQoS, false, data)
	if errors.Is(err, mqtt.ErrNotConnected) {
		err = model.ErrNotConnected
	}
	if err != nil {
		return &model.SendError{CorrelationID: cmd.CorrelationID, ResourceID: cmd.ResourceID, Err: err}
	}
	return nil
}

func (t *MQTT) Close(ctx context.Context) error {
	t.mu.Lock()
	in := t.in
	t.mu.Unlock()

	if in != nil {
		in.close()
	}
	t.client.Disconnect(ctx)
	return nil
}

func (t *MQTT) watch(in *inbound, done <-chan struct{}) {
	<-done
	err := t.client.Err()
	if err == nil {
		err = errors.New("mqtt session ended")
	}
	if !in.isClosed() {
		log.Warn("MQTT connection lost", "endpoint", t.endpoint, "epoch", in.epoch, "err", err)
	}
	in.lost(err)
}

// handle runs on the client's receive path, so a full delivery channel
// stops the client from reading.
func (t *MQTT) handle(_ context.Context, topicName string, payload []byte) {
	t.mu.Lock()
	in := t.in
	t.mu.Unlock()

	if in == nil {
		log.Debug("Dropping message received outside a session", "topic", topicName)
		return
	}

	suffix, resourceID, ok := t.topics.ResourceID(topicName)
	if !ok || (suffix != topic.SuffixResult && suffix != topic.SuffixStatus) {
		in.reject(decodeError(payload, fmt.Errorf("unexpected topic %q", topicName)))
		return
	}
	in.deliverFor(payload, resourceID)
}
