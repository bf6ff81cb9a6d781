// Package dispatch – Prometheus instrumentation for outbound deliveries.
//
// Labels are kept low-cardinality: channel (four values) and outcome
// (ok/error). Targets and message ids go to logs, never to metric labels.
package dispatch

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// dispatchAttempts counts individual transport attempts by channel and
// outcome. One broadcast to N devices contributes N observations.
var dispatchAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dispatch_attempts_total",
		Help: "Total number of outbound dispatch attempts.",
	},
	[]string{"channel", "outcome"},
)

func init() {
	prometheus.MustRegister(dispatchAttempts)
}
