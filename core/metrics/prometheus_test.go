package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_RecordsLazily(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families, "nothing is registered before the first observation")

	p.RecordOutcome("MATCHED")
	p.RecordOutcome("MATCHED")
	p.RecordOutcome("FAILED")
	p.IncrementRetry("find_entries")
	p.RecordBackoff("find_entries", 500*time.Millisecond)
	p.RecordBatch("ok", 2, 1)
	p.RecordRun("ok", 3*time.Second)
	p.RecordPruned(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.outcomes.WithLabelValues("MATCHED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.outcomes.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.retries.WithLabelValues("find_entries")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.batchEntries.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.batchEntries.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.runs.WithLabelValues("ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.pruned))

	families, err = reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNop_SatisfiesCollector(t *testing.T) {
	var c Collector = NewNop()
	assert.NotPanics(t, func() {
		c.RecordRun("ok", time.Second)
		c.RecordOutcome("MATCHED")
		c.IncrementRetry("op")
		c.RecordBackoff("op", time.Second)
		c.RecordBatch("failed", 0, 3)
		c.RecordPruned(1)
	})
}
