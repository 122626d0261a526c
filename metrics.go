package hopdb

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Metrics holds operational counters for the query service.
// All fields are atomic — safe for concurrent reads/writes with zero
// contention. The struct is intentionally dependency-free; Prometheus
// exposition format is generated manually so the core library doesn't
// pull in prometheus/client_golang.
type Metrics struct {
	// Query counters
	QueriesTotal    atomic.Uint64 // all GO executions
	QueryErrorTotal atomic.Uint64 // queries that returned an error

	// Traversal counters
	HopsTotal        atomic.Uint64 // storage get-neighbors round-trips
	PartialResponses atomic.Uint64 // fan-outs with 0 < completeness < 100
	RowsEmitted      atomic.Uint64 // projected rows across all queries

	// Query duration tracking (for histogram approximation)
	QueryDurationSum atomic.Int64 // cumulative microseconds
	QueryDurationMax atomic.Int64 // max observed microseconds
}

// NewMetrics creates a Metrics instance.
func NewMetrics() *Metrics { return &Metrics{} }

// RecordQueryDuration records a query's wall-clock duration.
func (m *Metrics) RecordQueryDuration(d time.Duration) {
	us := d.Microseconds()
	m.QueryDurationSum.Add(us)
	// Update max (CAS loop)
	for {
		cur := m.QueryDurationMax.Load()
		if us <= cur {
			break
		}
		if m.QueryDurationMax.CompareAndSwap(cur, us) {
			break
		}
	}
}

// Snapshot returns a point-in-time copy of all metrics as a map.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"queries_total":           m.QueriesTotal.Load(),
		"query_errors_total":      m.QueryErrorTotal.Load(),
		"hops_total":              m.HopsTotal.Load(),
		"partial_responses_total": m.PartialResponses.Load(),
		"rows_emitted_total":      m.RowsEmitted.Load(),
		"query_duration_sum_us":   m.QueryDurationSum.Load(),
		"query_duration_max_us":   m.QueryDurationMax.Load(),
	}
}

// WritePrometheus writes all metrics in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	pCounter(w, "hopdb_queries_total", "Total number of GO query executions", m.QueriesTotal.Load())
	pCounter(w, "hopdb_query_errors_total", "Total number of query errors", m.QueryErrorTotal.Load())
	pCounter(w, "hopdb_hops_total", "Total get-neighbors round-trips", m.HopsTotal.Load())
	pCounter(w, "hopdb_partial_responses_total", "Fan-outs that returned partial completeness", m.PartialResponses.Load())
	pCounter(w, "hopdb_rows_emitted_total", "Projected rows across all queries", m.RowsEmitted.Load())
	pCounter(w, "hopdb_query_duration_microseconds_sum", "Cumulative query duration in microseconds", uint64(m.QueryDurationSum.Load()))
	pGauge(w, "hopdb_query_duration_microseconds_max", "Maximum observed query duration in microseconds", float64(m.QueryDurationMax.Load()))
}

// ---------------------------------------------------------------------------
// Prometheus text format helpers
// ---------------------------------------------------------------------------

func pCounter(w io.Writer, name, help string, val uint64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, val)
}

func pGauge(w io.Writer, name, help string, val float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", name, help, name, name, val)
}
