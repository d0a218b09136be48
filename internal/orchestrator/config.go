package orchestrator

import (
	"fmt"
	"os"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/loop"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/observer"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/server"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/server/http"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/transport"
	"github.com/autopeer-io/clusterpilot/pkg/log"
	"github.com/autopeer-io/clusterpilot/pkg/options"
)

type Config struct {
	TransportOptions    *options.TransportOptions
	MqttOptions         *options.MqttOptions
	OrchestratorOptions *options.OrchestratorOptions
	HttpOptions         *options.HttpOptions
}

// NewPilot wires the transport, the control loop and the HTTP server.
func (cfg *Config) NewPilot() (*Pilot, error) {
	specs, err := cfg.OrchestratorOptions.ResourceSpecs()
	if err != nil {
		return nil, err
	}

	// 1. The only path from the transport into the loop.
	deliveries := make(chan model.Delivery, cfg.OrchestratorOptions.DeliveryCapacity)

	// 2. Events go to the log and the metrics registry.
	obs := observer.New(log.WithName("events"))

	// 3. Transport selected by the endpoint scheme
	clk := clock.RealClock{}
	tr, err := transport.New(cfg.transportOptions(), deliveries, obs, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to init transport: %w", err)
	}

	// 4. Control loop
	ctl := loop.New(cfg.loopConfig(), tr, deliveries, obs, clk)

	// 5. Command API, health and metrics
	var httpSrv server.Server
	if cfg.HttpOptions != nil && cfg.HttpOptions.Enabled {
		httpSrv = http.NewServer(cfg.HttpOptions, ctl)
	}

	return &Pilot{
		transport:      tr,
		loop:           ctl,
		http:           httpSrv,
		resources:      specs,
		endpoint:       cfg.TransportOptions.Endpoint,
		startupTimeout: cfg.TransportOptions.StartupTimeout,
		startupBackoff: cfg.backoff(),
	}, nil
}

func (cfg *Config) transportOptions() *transport.Options {
	t := cfg.TransportOptions
	opts := &transport.Options{
		Endpoint:           t.Endpoint,
		Codec:              t.Codec,
		ConnectTimeout:     t.ConnectTimeout,
		WriteTimeout:       t.WriteTimeout,
		PingInterval:       t.PingInterval,
		IdleTimeout:        t.IdleTimeout,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}

	if cfg.MqttOptions != nil {
		mqttCfg := cfg.MqttOptions.ToClientConfig(t.Endpoint, t.ConnectTimeout)
		if mqttCfg.ClientID == "" {
			hostname, _ := os.Hostname()
			mqttCfg.ClientID = fmt.Sprintf("cpeer-orchestrator-%s", hostname)
		}
		opts.Mqtt = mqttCfg
		opts.TopicRoot = cfg.MqttOptions.TopicRoot
	}
	return opts
}

func (cfg *Config) loopConfig() loop.Config {
	o := cfg.OrchestratorOptions
	return loop.Config{
		CommandTimeout:      o.CommandTimeout,
		TickInterval:        o.TickInterval,
		RetryLimit:          o.RetryLimit,
		RetryDelay:          o.RetryDelay,
		HealthCheckInterval: o.HealthCheckInterval,
		Reconnect:           cfg.backoff(),
		ReconnectCooldown:   o.ReconnectCooldown,
		RetiredIDs:          loop.DefaultConfig().RetiredIDs,
	}
}

func (cfg *Config) backoff() wait.Backoff {
	o := cfg.OrchestratorOptions
	return wait.Backoff{
		Duration: o.ReconnectInitialDelay,
		Factor:   o.ReconnectFactor,
		Jitter:   0.1,
		Steps:    o.ReconnectAttempts,
		Cap:      o.ReconnectMaxDelay,
	}
}
