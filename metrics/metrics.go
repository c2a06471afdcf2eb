// Package metrics exposes Prometheus collectors for the pipeline. Metrics
// implements the observer interfaces of the registry, completion client,
// repair loop, cache and workflow, so wiring is a matter of passing it in.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teranos/ldschema/ai/completion"
	"github.com/teranos/ldschema/jsonld/quality"
)

// Metrics holds every ldschema collector
type Metrics struct {
	// Registry decisions by type and source or reason
	Registrations *prometheus.CounterVec
	Blocks        *prometheus.CounterVec

	// Completion calls by model and outcome class ("ok" on success)
	CompletionCalls    *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec
	CompletionAttempts prometheus.Histogram

	// Repair attempts by retry index and validity
	RepairAttempts *prometheus.CounterVec

	// Cache lookups by result
	CacheLookups *prometheus.CounterVec

	// Workflow outcomes by operation and final state
	WorkflowOutcomes *prometheus.CounterVec
}

// New registers the collectors with the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ldschema_registry_accepted_total",
			Help: "Schema nodes accepted by a render registry",
		}, []string{"type", "source"}),

		Blocks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ldschema_registry_blocked_total",
			Help: "Schema registrations rejected by a render registry",
		}, []string{"type", "reason"}),

		CompletionCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ldschema_completion_calls_total",
			Help: "Completion requests by model and outcome class",
		}, []string{"model", "class", "cached"}),

		CompletionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ldschema_completion_duration_seconds",
			Help:    "Completion request duration including retries and backoff",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"model"}),

		CompletionAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ldschema_completion_attempts",
			Help:    "HTTP attempts per completion request",
			Buckets: []float64{0, 1, 2, 3},
		}),

		RepairAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ldschema_repair_attempts_total",
			Help: "Repair loop attempts by retry index and validation result",
		}, []string{"retry", "valid"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ldschema_cache_lookups_total",
			Help: "Cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss"

		WorkflowOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ldschema_workflow_outcomes_total",
			Help: "Workflow runs by operation and final state",
		}, []string{"operation", "state"}),
	}
}

// Accepted records an accepted registration
func (m *Metrics) Accepted(typ, source string) {
	if m != nil {
		m.Registrations.WithLabelValues(typ, source).Inc()
	}
}

// Blocked records a rejected registration
func (m *Metrics) Blocked(typ, reason string) {
	if m != nil {
		m.Blocks.WithLabelValues(typ, reason).Inc()
	}
}

// CompletionCall records one completion request
func (m *Metrics) CompletionCall(model string, class completion.ErrorClass, attempts int, cached bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := string(class)
	if label == "" {
		label = "ok"
	}
	m.CompletionCalls.WithLabelValues(model, label, strconv.FormatBool(cached)).Inc()
	if !cached {
		m.CompletionDuration.WithLabelValues(model).Observe(elapsed.Seconds())
	}
	m.CompletionAttempts.Observe(float64(attempts))
}

// RepairAttempt records one repair loop attempt
func (m *Metrics) RepairAttempt(retry int, valid bool) {
	if m != nil {
		m.RepairAttempts.WithLabelValues(strconv.Itoa(retry), strconv.FormatBool(valid)).Inc()
	}
}

// CacheLookup records a cache hit or miss
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// WorkflowOutcome records how a workflow call ended
func (m *Metrics) WorkflowOutcome(operation string, state quality.State) {
	if m != nil {
		m.WorkflowOutcomes.WithLabelValues(operation, string(state)).Inc()
	}
}
