package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Collector on top of client_golang.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	outcomes     *prometheus.CounterVec
	retries      *prometheus.CounterVec
	backoff      *prometheus.HistogramVec
	batches      *prometheus.CounterVec
	batchEntries *prometheus.CounterVec
	pruned       prometheus.Counter
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus creates a Prometheus-backed collector.
//
// reg defaults to prometheus.DefaultRegisterer and namespace to
// "payout_reconciler" when empty.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "payout_reconciler"
	}

	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "runs_total",
			Help:      "Completed reconciliation runs by result.",
		}, []string{"result"})

		p.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of reconciliation runs in seconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34m
		})

		p.outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "payout_outcomes_total",
			Help:      "Per-payout outcomes produced by reconciliation runs.",
		}, []string{"outcome"})

		p.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "external_retries_total",
			Help:      "Retry attempts against external systems by operation.",
		}, []string{"op"})

		p.backoff = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      "external_backoff_seconds",
			Help:      "Observed backoff delays in seconds by operation.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"op"})

		p.batches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "correction_batches_total",
			Help:      "Correction batch submissions by result (ok, failed).",
		}, []string{"result"})

		p.batchEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "correction_entries_total",
			Help:      "Correction entry verdicts returned by the ledger.",
		}, []string{"result"})

		p.pruned = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "pruned_transactions_total",
			Help:      "Transactions removed by retention pruning.",
		})

		p.reg.MustRegister(p.runs)
		p.reg.MustRegister(p.runDuration)
		p.reg.MustRegister(p.outcomes)
		p.reg.MustRegister(p.retries)
		p.reg.MustRegister(p.backoff)
		p.reg.MustRegister(p.batches)
		p.reg.MustRegister(p.batchEntries)
		p.reg.MustRegister(p.pruned)
	})
}

// RecordRun counts a finished run and observes its duration.
func (p *Prometheus) RecordRun(result string, duration time.Duration) {
	p.ensureRegistered()
	p.runs.WithLabelValues(result).Inc()
	p.runDuration.Observe(duration.Seconds())
}

// RecordOutcome counts one payout outcome.
func (p *Prometheus) RecordOutcome(outcome string) {
	p.ensureRegistered()
	p.outcomes.WithLabelValues(outcome).Inc()
}

// IncrementRetry counts a retry attempt for op.
func (p *Prometheus) IncrementRetry(op string) {
	p.ensureRegistered()
	p.retries.WithLabelValues(op).Inc()
}

// RecordBackoff observes a backoff delay for op.
func (p *Prometheus) RecordBackoff(op string, delay time.Duration) {
	p.ensureRegistered()
	p.backoff.WithLabelValues(op).Observe(delay.Seconds())
}

// RecordBatch counts a correction batch submission and its entry verdicts.
func (p *Prometheus) RecordBatch(result string, accepted, rejected int) {
	p.ensureRegistered()
	p.batches.WithLabelValues(result).Inc()
	p.batchEntries.WithLabelValues("accepted").Add(float64(accepted))
	p.batchEntries.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordPruned adds pruned rows to the counter.
func (p *Prometheus) RecordPruned(count int64) {
	p.ensureRegistered()
	p.pruned.Add(float64(count))
}
