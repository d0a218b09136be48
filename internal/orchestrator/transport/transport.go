package transport

import (
	"fmt"
	"net/url"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
	"github.com/autopeer-io/clusterpilot/pkg/mqtt"
)

// Options configures the transports.
type Options struct {
	Endpoint           string
	Codec              string
	ConnectTimeout     time.Duration
	WriteTimeout       time.Duration
	PingInterval       time.Duration
	IdleTimeout        time.Duration
	InsecureSkipVerify bool

	// Mqtt and TopicRoot are used by broker endpoints only.
	Mqtt      *mqtt.ClientConfig
	TopicRoot string
}

// New returns the transport matching the endpoint scheme.
func New(opts *Options, out chan<- model.Delivery, obs core.Observer, clk clock.WithTicker) (core.Transport, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	codec, err := NewCodec(opts.Codec)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		obs = core.Observers{}
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	switch u.Scheme {
	case "ws", "wss":
		return NewWebSocket(opts, codec, out, obs, clk), nil
	case "tcp", "mqtt", "ssl", "tls", "mqtts":
		if opts.Mqtt == nil {
			return nil, fmt.Errorf("endpoint %s needs an mqtt client config", opts.Endpoint)
		}
		client, err := mqtt.NewClient(opts.Mqtt)
		if err != nil {
			return nil, err
		}
		return NewMQTT(opts.Endpoint, client, opts.TopicRoot, codec, out, obs, clk)
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
}
