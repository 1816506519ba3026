// Package metrics exposes pipeline counters on a private Prometheus registry.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "battlescribe"

// AttemptBuckets covers the 1..3 attempt range of a stage instance.
var AttemptBuckets = []float64{1, 2, 3, 4, 5}

// Collector groups the pipeline metrics. A nil *Collector is a no-op so
// library callers and tests can skip metrics entirely.
type Collector struct {
	registry *prometheus.Registry

	// Oracle calls by stage and outcome (ok, transport, format)
	OracleCalls *prometheus.CounterVec

	// Oracle tokens by stage and kind (prompt, completion)
	OracleTokens *prometheus.CounterVec

	// Attempts consumed by each terminal stage instance
	StageAttempts *prometheus.HistogramVec

	// Terminal turn slots by status (accepted, dropped)
	Turns *prometheus.CounterVec

	// Total time spent sleeping between turn retries
	BackoffSeconds prometheus.Counter

	// Pipeline runs by status (complete, incomplete, setup_aborted, turn_aborted, failed)
	Runs *prometheus.CounterVec
}

// New creates a collector registered on a fresh registry.
func New() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates a collector registered on reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		OracleCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Oracle calls by pipeline stage and outcome.",
		}, []string{"stage", "outcome"}),
		OracleTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_tokens_total",
			Help:      "Oracle tokens by pipeline stage and kind.",
		}, []string{"stage", "kind"}),
		StageAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_attempts",
			Help:      "Extraction attempts consumed per stage instance.",
			Buckets:   AttemptBuckets,
		}, []string{"stage"}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Terminal turn slots by status.",
		}, []string{"status"}),
		BackoffSeconds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backoff_seconds_total",
			Help:      "Seconds spent in retry backoff.",
		}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal status.",
		}, []string{"status"}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordCall records one oracle call and its token usage.
func (c *Collector) RecordCall(stage, outcome string, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	c.OracleCalls.WithLabelValues(stage, outcome).Inc()
	if promptTokens > 0 {
		c.OracleTokens.WithLabelValues(stage, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.OracleTokens.WithLabelValues(stage, "completion").Add(float64(completionTokens))
	}
}

// RecordStage records the attempts a stage instance used before terminating.
func (c *Collector) RecordStage(stage string, attempts int) {
	if c == nil {
		return
	}
	c.StageAttempts.WithLabelValues(stage).Observe(float64(attempts))
}

// RecordTurn records a terminal turn slot.
func (c *Collector) RecordTurn(status string) {
	if c == nil {
		return
	}
	c.Turns.WithLabelValues(status).Inc()
}

// RecordBackoff records time spent waiting before a retry.
func (c *Collector) RecordBackoff(d time.Duration) {
	if c == nil {
		return
	}
	c.BackoffSeconds.Add(d.Seconds())
}

// RecordRun records a finished pipeline run.
func (c *Collector) RecordRun(status string) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(status).Inc()
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
