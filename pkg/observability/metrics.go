package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics records counters and distributions. Implementations must be safe for concurrent use.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Histogram(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag labels a metric series.
type Tag struct {
	Key   string
	Value string
}

// T is shorthand for Tag{Key: key, Value: value}.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Histogram(string, float64, ...Tag)    {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics keeps every series in process. The container uses it when no
// external sink is configured, and tests read it back.
type InMemoryMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
	samples  map[string][]float64
	timings  map[string][]time.Duration
}

// NewInMemoryMetrics returns an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters: map[string]int64{},
		samples:  map[string][]float64{},
		timings:  map[string][]time.Duration{},
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	key := seriesKey(name, tags)
	m.mu.Lock()
	m.counters[key] += value
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	key := seriesKey(name, tags)
	m.mu.Lock()
	m.samples[key] = append(m.samples[key], value)
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	key := seriesKey(name, tags)
	m.mu.Lock()
	m.timings[key] = append(m.timings[key], duration)
	m.mu.Unlock()
}

// GetCounter returns the running total of a counter series.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[seriesKey(name, tags)]
}

// Samples returns a copy of the histogram values of a series.
func (m *InMemoryMetrics) Samples(name string, tags ...Tag) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.samples[seriesKey(name, tags)]...)
}

// GetTimings returns a copy of the durations recorded for a series.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.timings[seriesKey(name, tags)]...)
}

// seriesKey renders name{k=v,...} with tags sorted by key, so tag order never splits a series.
func seriesKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := append([]Tag(nil), tags...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, t := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	b.WriteByte('}')
	return b.String()
}

// Series recorded by the batch, lookup, approval and event paths.
const (
	MetricOperationTotal    = "carevisit.operation.total"
	MetricOperationDuration = "carevisit.operation.duration"
	MetricOperationErrors   = "carevisit.operation.errors"

	MetricBatchRuns      = "carevisit.batch.runs"
	MetricBatchItems     = "carevisit.batch.items"
	MetricBatchConflicts = "carevisit.batch.conflicts"
	MetricBatchDuration  = "carevisit.batch.duration"

	MetricLookupDuration     = "carevisit.lookup.duration"
	MetricLookupFailures     = "carevisit.lookup.failures"
	MetricLookupCacheHits    = "carevisit.lookup.cache_hits"
	MetricBreakerTransitions = "carevisit.lookup.breaker_transitions"

	MetricSeverityScore = "carevisit.conflict.severity_score"

	MetricPermissionChecks = "carevisit.permission.checks"
	MetricApprovalCases    = "carevisit.approval.cases"
	MetricApprovalDecision = "carevisit.approval.decisions"

	MetricEventsPublished = "carevisit.events.published"
)
