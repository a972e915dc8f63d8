// Package prometheus exports cart sync metrics through
// prometheus/client_golang.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/c0deZ3R0/go-cart-sync/synckit"
)

// Collector implements synckit.MetricsCollector.
type Collector struct {
	operationDuration *prometheus.HistogramVec
	operations        *prometheus.CounterVec
	recoveries        *prometheus.CounterVec
	merges            *prometheus.CounterVec
}

var _ synckit.MetricsCollector = (*Collector)(nil)

// NewCollector registers the cart sync metrics on reg. A nil reg means
// prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		// Labels: operation, status (ok, failed)
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cart_sync",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Cart engine operation latency in seconds, remote calls and recovery included",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation", "status"}),

		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cart_sync",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Cart engine operations by outcome",
		}, []string{"operation", "status"}),

		// Labels: operation, recovery (converged, rolled_back)
		recoveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cart_sync",
			Subsystem: "engine",
			Name:      "recoveries_total",
			Help:      "Recoveries performed after a failed remote call",
		}, []string{"operation", "recovery"}),

		merges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cart_sync",
			Subsystem: "merge",
			Name:      "attempts_total",
			Help:      "Guest to user cart merge attempts by outcome",
		}, []string{"status"}),
	}
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func (c *Collector) RecordOperation(operation string, duration time.Duration, ok bool) {
	c.operationDuration.WithLabelValues(operation, status(ok)).Observe(duration.Seconds())
	c.operations.WithLabelValues(operation, status(ok)).Inc()
}

func (c *Collector) RecordRecovery(operation string, recovery synckit.Recovery) {
	c.recoveries.WithLabelValues(operation, string(recovery)).Inc()
}

func (c *Collector) RecordMerge(ok bool) {
	c.merges.WithLabelValues(status(ok)).Inc()
}
