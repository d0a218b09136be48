package observer

import (
	"errors"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
	"github.com/autopeer-io/clusterpilot/internal/pkg/metrics"
	"github.com/autopeer-io/clusterpilot/pkg/log"
)

// New returns an observer that logs every event and feeds the process metrics.
func New(logger log.Logger) core.Observer {
	return core.Observers{&Logger{log: logger}, Metrics{}}
}

// Logger writes events to a structured logger.
type Logger struct {
	log log.Logger
}

// NewLogger returns a Logger writing through l.
func NewLogger(l log.Logger) *Logger {
	return &Logger{log: l}
}

func (o *Logger) Observe(e model.Event) {
	kv := fields(e)

	switch e.Type {
	case model.EventConnectionError, model.EventRetryExhausted:
		o.log.Error(e.Err, string(e.Type), kv...)
	case model.EventDecodeError, model.EventConnectionLost:
		o.log.Warn(string(e.Type), append(kv, "err", e.Err)...)
	case model.EventConnected, model.EventConnectionRestored, model.EventStateTransition:
		o.log.Info(string(e.Type), kv...)
	case model.EventResultDiscarded:
		o.log.Info(string(e.Type), append(kv, "err", e.Err)...)
	case model.EventCommandIssued, model.EventResultReceived:
		o.log.Debug(string(e.Type), kv...)
	default:
		o.log.Warn("Unrecognized event", append(kv, "type", e.Type)...)
	}
}

func fields(e model.Event) []any {
	kv := make([]any, 0, 16)
	if e.ResourceID != "" {
		kv = append(kv, "resource", e.ResourceID)
	}
	if e.CorrelationID != "" {
		kv = append(kv, "correlationID", e.CorrelationID)
	}
	if e.Kind != "" {
		kv = append(kv, "kind", e.Kind)
	}
	if e.Status != "" {
		kv = append(kv, "status", e.Status)
	}
	if e.From != "" || e.To != "" {
		kv = append(kv, "from", e.From, "to", e.To)
	}
	if e.Epoch != 0 {
		kv = append(kv, "epoch", e.Epoch)
	}
	if e.Count != 0 {
		kv = append(kv, "count", e.Count)
	}
	if e.Latency != 0 {
		kv = append(kv, "latency", e.Latency)
	}
	return kv
}

// Metrics updates the prometheus collectors of internal/pkg/metrics.
type Metrics struct{}

func (Metrics) Observe(e model.Event) {
	switch e.Type {
	case model.EventConnected:
		metrics.ConnectivityStatus.Set(1)
		metrics.ConnectionEpoch.Set(float64(e.Epoch))
	case model.EventConnectionRestored:
		metrics.ConnectivityStatus.Set(1)
		metrics.ConnectionEpoch.Set(float64(e.Epoch))
		metrics.ReconnectAttemptsTotal.WithLabelValues("restored").Inc()
	case model.EventConnectionLost:
		metrics.ConnectivityStatus.Set(0)
	case model.EventConnectionError:
		metrics.ReconnectAttemptsTotal.WithLabelValues("exhausted").Inc()
	case model.EventDecodeError:
		metrics.DecodeErrorsTotal.Inc()
	case model.EventCommandIssued:
		metrics.CommandSentTotal.WithLabelValues(string(e.Kind)).Inc()
	case model.EventResultReceived:
		metrics.ResultReceivedTotal.WithLabelValues(string(e.Kind), string(e.Status)).Inc()
		if e.Status != model.ResultStatusInProgress && e.Latency > 0 {
			metrics.CommandLatency.WithLabelValues(string(e.Kind)).Observe(e.Latency.Seconds())
		}
	case model.EventResultDiscarded:
		reason := model.DiscardUnknown
		var ce *model.CorrelationError
		if errors.As(e.Err, &ce) {
			reason = ce.Reason
		}
		metrics.ResultDiscardedTotal.WithLabelValues(string(reason)).Inc()
	case model.EventRetryExhausted:
		metrics.RetryExhaustedTotal.WithLabelValues(string(e.Kind)).Inc()
	case model.EventStateTransition:
		metrics.StateTransitionsTotal.WithLabelValues(string(e.From), string(e.To)).Inc()
	}
}
