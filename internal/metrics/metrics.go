// Package metrics records operational metrics from graph ETL partitions
// behind a small Backend interface.
//
// A global backend defaults to a no-op, so instrumented code never checks
// whether metrics are configured. Concrete systems live in subpackages
// (prompush, datadog) and are installed once by the command with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by all backends.
const (
	StepTotal       = "graphetl_step_total"
	StepDuration    = "graphetl_step_duration_seconds"
	RowsTotal       = "graphetl_rows_total"
	BatchesTotal    = "graphetl_batches_total"
	StatementsTotal = "graphetl_statements_total"
)

// Row kinds reported with RecordRow.
const (
	RowConsumed    = "consumed"
	RowCommitted   = "committed"
	RowDirty       = "dirty"
	RowMapped      = "mapped"
	RowLoaded      = "loaded"
	RowQueryFailed = "query_failed"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

// Partitions run concurrently, so the backend pointer is guarded.
var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep measures latency and success/failure of one partition step
// ("schema", "write", "read", "query", "load").
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow increments a row-level counter for the given job and kind.
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches increments a batch-level counter for the given job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{
		"job": job,
	})
}

// RecordStatement counts one executed INSERT for a graph type. Outcome is
// "ok" or "rejected"; mode is "batch" or "row".
func RecordStatement(job, typeName, mode, outcome string) {
	current().IncCounter(StatementsTotal, 1, Labels{
		"job":     job,
		"type":    typeName,
		"mode":    mode,
		"outcome": outcome,
	})
}
