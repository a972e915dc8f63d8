package prometheus

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-cart-sync/synckit"
)

func TestCollector_RecordsEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOperation("add", 120*time.Millisecond, true)
	c.RecordOperation("add", 80*time.Millisecond, false)
	c.RecordOperation("clear", 10*time.Millisecond, false)
	c.RecordRecovery("add", synckit.RecoveryConverged)
	c.RecordRecovery("clear", synckit.RecoveryRolledBack)
	c.RecordMerge(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("add", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recoveries.WithLabelValues("clear", "rolled_back")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.merges.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.merges.WithLabelValues("failed")))

	expected := `
# HELP cart_sync_engine_recoveries_total Recoveries performed after a failed remote call
# TYPE cart_sync_engine_recoveries_total counter
cart_sync_engine_recoveries_total{operation="add",recovery="converged"} 1
cart_sync_engine_recoveries_total{operation="clear",recovery="rolled_back"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cart_sync_engine_recoveries_total"))

	count, err := testutil.GatherAndCount(reg, "cart_sync_engine_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCollector_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
