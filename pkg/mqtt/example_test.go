package mqtt_test

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/clusterpilot/pkg/log"
	"github.com/autopeer-io/clusterpilot/pkg/mqtt"
	"github.com/autopeer-io/clusterpilot/pkg/mqtt/topic"
)

// ExampleClient shows one session of the client: register handlers, connect,
// publish, and watch for the session to end.
func ExampleClient() {
	cfg := &mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "cpeer-orchestrator",
		KeepAlive:      30,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	topics := topic.NewTopicBuilder("cluster/v1")

	// Handlers registered before Connect are subscribed by every session.
	ctx := context.Background()
	onResult := func(ctx context.Context, t string, payload []byte) {
		fmt.Printf("result on %s: %s\n", t, payload)
	}
	if err := client.Subscribe(ctx, topics.ResultWildcard(), 1, onResult); err != nil {
		log.Error(err, "Failed to subscribe")
		return
	}

	if err := client.Connect(ctx); err != nil {
		log.Error(err, "Failed to connect")
		return
	}

	payload := []byte(`{"kind":"provision","resourceId":"node-1"}`)
	if err := client.Publish(ctx, topics.Command("node-1"), 0, false, payload); err != nil {
		log.Error(err, "Failed to publish")
	}

	// The client never reconnects by itself.
	go func() {
		<-client.Done()
		log.Warn("MQTT session ended", "err", client.Err())
	}()

	client.Disconnect(ctx)
}
