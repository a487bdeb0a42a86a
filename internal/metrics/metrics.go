// Package metrics holds the Prometheus collectors of the unit coordinator.
// They register on the default registry and are served at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hlbot"

// UnitOperations counts coordinator operations by kind and outcome.
var UnitOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "unit",
		Name:      "operations_total",
		Help:      "Unit operations by kind (create, close, recreate) and outcome",
	},
	[]string{"op", "outcome"},
)

// UnitDuration tracks end-to-end operation latency.
var UnitDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "unit",
		Name:      "operation_duration_seconds",
		Help:      "Wall time of unit operations",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
	},
	[]string{"op"},
)

// Legs counts finished legs by kind and terminal state.
var Legs = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "leg",
		Name:      "finished_total",
		Help:      "Finished legs by kind (create, close) and terminal state",
	},
	[]string{"kind", "state"},
)

// CloseAttempts observes how many orders a close leg needed.
var CloseAttempts = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "leg",
		Name:      "close_attempts",
		Help:      "Close orders placed per close leg",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
	},
)

// ExchangeCalls counts gateway calls by method and result.
var ExchangeCalls = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "exchange",
		Name:      "calls_total",
		Help:      "Exchange gateway calls by method and result",
	},
	[]string{"method", "result"},
)

// Rollbacks counts compensating closes triggered by failed creates.
var Rollbacks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "unit",
		Name:      "rollbacks_total",
		Help:      "Rollbacks after a failed create, by result",
	},
	[]string{"result"},
)

// ObserveOperation records the outcome and latency of one operation.
func ObserveOperation(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UnitOperations.WithLabelValues(op, outcome).Inc()
	UnitDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveCall records one exchange call.
func ObserveCall(method string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ExchangeCalls.WithLabelValues(method, result).Inc()
}
