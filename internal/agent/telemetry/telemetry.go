// Package telemetry records run-level metrics and cost accounting for the
// research system. Metrics are exported through the Prometheus default
// registry and served by the HTTP API at /metrics.
package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/deepresearch/config"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepresearch_runs_total",
		Help: "Research runs by outcome.",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deepresearch_run_duration_seconds",
		Help:    "End-to-end research run duration.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	workersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepresearch_workers_total",
		Help: "Worker executions by outcome.",
	}, []string{"status"})

	workerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deepresearch_worker_duration_seconds",
		Help:    "Per-worker execution duration.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepresearch_tokens_total",
		Help: "Tokens consumed, split by agent role and token type.",
	}, []string{"role", "type"})

	costTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepresearch_cost_usd_total",
		Help: "Estimated dollar spend by agent role.",
	}, []string{"role"})
)

// Telemetry aggregates run statistics. A nil *Telemetry is a no-op, so
// callers never need to guard their recording calls.
type Telemetry struct {
	enabled      bool
	costTracking bool
	logger       *log.Logger

	mu        sync.Mutex
	runCount  int64
	totalCost float64
}

func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		enabled:      cfg.Enabled,
		costTracking: cfg.CostTracking,
		logger:       log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
	}
}

// RecordRun records a completed (or failed) research run.
func (t *Telemetry) RecordRun(status string, duration time.Duration, cost float64) {
	if t == nil || !t.enabled {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
	runDuration.Observe(duration.Seconds())

	t.mu.Lock()
	t.runCount++
	t.totalCost += cost
	runCount, totalCost := t.runCount, t.totalCost
	t.mu.Unlock()

	if t.costTracking {
		t.logger.Printf("run %s in %s (cost $%.4f, lifetime $%.4f over %d runs)",
			status, duration.Round(time.Millisecond), cost, totalCost, runCount)
	}
}

// RecordWorker records one worker execution.
func (t *Telemetry) RecordWorker(status string, duration time.Duration) {
	if t == nil || !t.enabled {
		return
	}
	workersTotal.WithLabelValues(status).Inc()
	workerDuration.Observe(duration.Seconds())
}

// RecordTokens records token spend for an agent role.
func (t *Telemetry) RecordTokens(role string, prompt, completion int64) {
	if t == nil || !t.enabled {
		return
	}
	tokensTotal.WithLabelValues(role, "prompt").Add(float64(prompt))
	tokensTotal.WithLabelValues(role, "completion").Add(float64(completion))
}

// RecordCost records dollar spend for an agent role.
func (t *Telemetry) RecordCost(role string, cost float64) {
	if t == nil || !t.enabled || !t.costTracking {
		return
	}
	costTotal.WithLabelValues(role).Add(cost)
}
