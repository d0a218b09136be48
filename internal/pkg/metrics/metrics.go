package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "clusterpilot"

// Registry holds every collector of the process and is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// ConnectivityStatus records the link to the control plane.
	// 1 = Connected, 0 = Disconnected (initial, lost, reconnecting)
	ConnectivityStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity_status",
			Help:      "The connectivity status to the control plane (1=Connected, 0=Disconnected).",
		},
	)

	// ConnectionEpoch is the epoch of the current connection.
	ConnectionEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_epoch",
			Help:      "Epoch of the current control plane connection.",
		},
	)

	// ReconnectAttemptsTotal counts failed and successful reconnect attempts.
	ReconnectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnect rounds by outcome.",
		},
		[]string{"outcome"}, // outcome: restored/exhausted
	)

	// CommandSentTotal records the total number of commands issued.
	CommandSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_sent_total",
			Help:      "Total number of commands issued to the control plane.",
		},
		[]string{"kind"},
	)

	// ResultReceivedTotal records correlated results by status.
	ResultReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_received_total",
			Help:      "Total number of correlated results by command kind and status.",
		},
		[]string{"kind", "status"},
	)

	// ResultDiscardedTotal records results matching no outstanding command.
	ResultDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_discarded_total",
			Help:      "Total number of results discarded by reason.",
		},
		[]string{"reason"},
	)

	// DecodeErrorsTotal records inbound messages that could not be decoded.
	DecodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of inbound messages dropped as undecodable.",
		},
	)

	// RetryExhaustedTotal records resources that spent their retry budget.
	RetryExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_exhausted_total",
			Help:      "Total number of resources that exhausted their retry budget.",
		},
		[]string{"kind"},
	)

	// StateTransitionsTotal records lifecycle transitions.
	StateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of resource lifecycle transitions.",
		},
		[]string{"from", "to"},
	)

	// CommandLatency records the time from issue to final result.
	CommandLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_latency_seconds",
			Help:      "Latency between issuing a command and receiving its final result.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ConnectivityStatus,
		ConnectionEpoch,
		ReconnectAttemptsTotal,
		CommandSentTotal,
		ResultReceivedTotal,
		ResultDiscardedTotal,
		DecodeErrorsTotal,
		RetryExhaustedTotal,
		StateTransitionsTotal,
		CommandLatency,
	)
}
