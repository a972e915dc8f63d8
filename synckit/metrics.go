package synckit

import "time"

// MetricsCollector provides hooks for collecting cart sync metrics
type MetricsCollector interface {
	// RecordOperation records how long an engine operation took and
	// whether it succeeded
	RecordOperation(operation string, duration time.Duration, ok bool)

	// RecordRecovery records which recovery path a failed operation took
	RecordRecovery(operation string, recovery Recovery)

	// RecordMerge records a guest-to-user cart merge attempt
	RecordMerge(ok bool)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordOperation(operation string, duration time.Duration, ok bool) {}
func (NoOpMetricsCollector) RecordRecovery(operation string, recovery Recovery)                 {}
func (NoOpMetricsCollector) RecordMerge(ok bool)                                                {}
