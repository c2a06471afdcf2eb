package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/teranos/ldschema/ai/completion"
	"github.com/teranos/ldschema/cache"
	"github.com/teranos/ldschema/jsonld/quality"
	"github.com/teranos/ldschema/jsonld/registry"
	"github.com/teranos/ldschema/jsonld/repair"
	"github.com/teranos/ldschema/workflow"
)

var (
	_ registry.Recorder   = (*Metrics)(nil)
	_ completion.Observer = (*Metrics)(nil)
	_ repair.Observer     = (*Metrics)(nil)
	_ cache.Observer      = (*Metrics)(nil)
	_ workflow.Observer   = (*Metrics)(nil)
)

func TestRegistryCounters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	reg := registry.New(registry.WithRecorder(m))
	reg.Register(map[string]any{"@type": "Organization", "name": "A"}, registry.Options{Source: "stored"})
	reg.Register(map[string]any{"@type": "Organization", "name": "B"}, registry.Options{Source: "site"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues("Organization", "stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Blocks.WithLabelValues("Organization", registry.ReasonDuplicateType)))
}

func TestCompletionCall(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.CompletionCall("gpt-4o-mini", "", 1, false, 1500*time.Millisecond)
	m.CompletionCall("gpt-4o-mini", "", 0, true, 0)
	m.CompletionCall("gpt-4o-mini", completion.ClassRateLimit, 3, false, 14*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionCalls.WithLabelValues("gpt-4o-mini", "ok", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionCalls.WithLabelValues("gpt-4o-mini", "ok", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionCalls.WithLabelValues("gpt-4o-mini", "rate_limit", "false")))
	// cached calls skip the duration histogram
	assert.Equal(t, 1, testutil.CollectAndCount(m.CompletionDuration))
}

func TestOtherObservers(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.RepairAttempt(0, false)
	m.RepairAttempt(1, true)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.WorkflowOutcome(workflow.OpRepair, quality.StatePublished)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepairAttempts.WithLabelValues("1", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkflowOutcomes.WithLabelValues("repair", "published")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Accepted("Organization", "stored")
		m.CacheLookup(true)
		m.WorkflowOutcome("repair", quality.StatePublished)
	})
}
