package metrics

import "time"

// Collector receives reconciliation telemetry.
type Collector interface {
	RecordRun(result string, duration time.Duration)
	RecordOutcome(outcome string)
	IncrementRetry(op string)
	RecordBackoff(op string, delay time.Duration)
	RecordBatch(result string, accepted, rejected int)
	RecordPruned(count int64)
}

// Nop is a Collector that drops every observation.
type Nop struct{}

var _ Collector = (*Nop)(nil)

// NewNop returns a no-op collector.
func NewNop() *Nop {
	return &Nop{}
}

func (*Nop) RecordRun(string, time.Duration) {}
func (*Nop) RecordOutcome(string) {}
func (*Nop) IncrementRetry(string) {}
func (*Nop) RecordBackoff(string, time.Duration) {}
func (*Nop) RecordBatch(string, int, int) {}
func (*Nop) RecordPruned(int64) {}
