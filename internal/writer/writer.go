// Package writer drains a stream of rows into the graph as batched
// INSERT VERTEX / INSERT EDGE statements.
//
// Rows are grouped into batches of Config.BatchSize. Each batch is written
// once per configured table, in table order. When any statement for a batch
// fails, the same rows are re-sent one at a time; rows that still fail are
// handed to the DirtySink and the partition carries on. Only configuration
// errors, lost connections and cancellation stop ProcessWrite.
//
// A Writer is used by a single partition and is not safe for concurrent use.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"graphetl/internal/graph"
	"graphetl/internal/metrics"
	"graphetl/internal/ngql"
	"graphetl/internal/record"
	"graphetl/internal/schema"
)

var (
	// ErrNoTargets means none of the configured tables survived schema
	// discovery.
	ErrNoTargets = errors.New("writer: no writable target types")
	// ErrBinding means the edge bindings do not pair with the edge tables.
	ErrBinding = errors.New("writer: edge binding mismatch")
	// ErrBatchSize means Config.BatchSize is not positive.
	ErrBatchSize = errors.New("writer: batch size must be positive")
)

// Config is the resolved, per-partition write configuration.
type Config struct {
	Job       string
	Tables    []string // tag and edge type names, written in this order
	Columns   []string // column order of incoming rows
	BatchSize int
	// EdgeTypes pair positionally with the edge types among Tables.
	EdgeTypes []ngql.EdgeBinding
	// WarnDuplicateVIDs logs vertex ids seen more than once in the stream.
	WarnDuplicateVIDs bool
}

// DirtyRecord is a row that could not be committed even on its own.
type DirtyRecord struct {
	Row record.Row
	Err error
}

// DirtySink receives rows that failed individually.
type DirtySink interface {
	Collect(DirtyRecord)
}

// DirtyFunc adapts a function to DirtySink.
type DirtyFunc func(DirtyRecord)

func (f DirtyFunc) Collect(d DirtyRecord) { f(d) }

// Stats summarizes one ProcessWrite call.
type Stats struct {
	Rows       int64 // rows consumed from the input
	Affected   int64 // rows committed, by batch or individually
	Dirty      int64 // rows handed to the DirtySink
	Batches    int64 // batches flushed, including the trailing one
	Fallbacks  int64 // batches that went through row fallback
	Statements int64 // INSERT statements executed
	Attempts   int64 // batch-level plus row-level execution attempts
	// EngineAffected sums rows-affected reported by the graph engine; -1
	// when any statement reported it as unknown.
	EngineAffected int64
	DuplicateVIDs  int64
}

type target struct {
	name    string
	kind    schema.Kind
	fields  []schema.FieldMeta
	binding ngql.EdgeBinding
	sel     ngql.Selection
}

// Writer executes batches for one partition.
type Writer struct {
	cfg     Config
	targets []target
	m       graph.Mutator
	sink    DirtySink
	dups    *vidTracker

	stats       Stats
	engineKnown bool
}

// New resolves the configured tables against the catalog and checks that
// every configured column and binding key is usable, before any I/O.
// Tables the catalog dropped for having no fields are skipped with a warning.
func New(cfg Config, cat *schema.Catalog, m graph.Mutator, sink DirtySink) (*Writer, error) {
	if m == nil {
		return nil, fmt.Errorf("writer: mutator must not be nil")
	}
	if cat == nil {
		return nil, fmt.Errorf("writer: catalog must not be nil")
	}
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("writer: no columns configured")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBatchSize, cfg.BatchSize)
	}
	if sink == nil {
		sink = DirtyFunc(func(d DirtyRecord) {
			log.Printf("writer: dirty line=%d err=%v", d.Row.Line, d.Err)
		})
	}

	used := make(map[string]bool, len(cfg.Columns))
	var targets []target
	edgeNo := 0
	for _, name := range cfg.Tables {
		tm, ok := cat.Type(name)
		if !ok {
			log.Printf("writer: WARN table %s has no loaded schema (loaded=%v); skipping", name, cat.Names())
			continue
		}
		t := target{name: name, kind: tm.Kind, fields: tm.Fields, sel: ngql.Select(tm.Fields, cfg.Columns)}
		for _, f := range t.sel.Fields {
			used[f.Field] = true
		}

		switch tm.Kind {
		case schema.KindTag:
			if len(t.sel.Fields) == 0 {
				return nil, fmt.Errorf("writer: tag %s: none of columns %v is a declared field: %w",
					name, cfg.Columns, ngql.ErrColumnNotFound)
			}
		case schema.KindEdge:
			if edgeNo >= len(cfg.EdgeTypes) {
				return nil, fmt.Errorf("writer: edge %s is edge #%d but %d edge_type bindings given: %w",
					name, edgeNo+1, len(cfg.EdgeTypes), ErrBinding)
			}
			t.binding = cfg.EdgeTypes[edgeNo]
			edgeNo++
			for _, key := range []string{t.binding.SrcPrimaryKey, t.binding.DstPrimaryKey} {
				if !contains(cfg.Columns, key) {
					return nil, fmt.Errorf("writer: edge %s key %q: %w", name, key, ngql.ErrColumnNotFound)
				}
				used[key] = true
			}
		default:
			return nil, fmt.Errorf("writer: table %s has unknown kind %s", name, tm.Kind)
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w (tables=%v)", ErrNoTargets, cfg.Tables)
	}
	if edgeNo < len(cfg.EdgeTypes) {
		log.Printf("writer: WARN %d edge_type bindings given for %d edge tables; extra ignored", len(cfg.EdgeTypes), edgeNo)
	}
	for _, c := range cfg.Columns {
		if !used[c] {
			return nil, fmt.Errorf("writer: column %q matches no field of %v: %w", c, cfg.Tables, ngql.ErrColumnNotFound)
		}
	}

	w := &Writer{cfg: cfg, targets: targets, m: m, sink: sink, engineKnown: true}
	if cfg.WarnDuplicateVIDs {
		w.dups = newVIDTracker()
	}
	return w, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// ProcessWrite consumes rows until in is closed, flushing full batches and
// the trailing partial batch. It returns the stats gathered so far together
// with the first fatal error.
func (w *Writer) ProcessWrite(ctx context.Context, in <-chan record.Row) (Stats, error) {
	var (
		batch       = make([]record.Row, 0, w.cfg.BatchSize)
		start       = time.Now()
		lastFlushTS = start
		lastRows    int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := w.flush(ctx, batch)
		batch = batch[:0]
		if err != nil {
			return err
		}

		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(w.stats.Rows-lastRows) / sinceLast.Seconds()
		}
		log.Printf(
			"writer: batch #%d: rps=%.0f rows=%d committed=%d dirty=%d elapsed=%s since_last=%s",
			w.stats.Batches,
			rps,
			w.stats.Rows,
			w.stats.Affected,
			w.stats.Dirty,
			now.Sub(start).Truncate(time.Millisecond),
			sinceLast.Truncate(time.Millisecond),
		)
		lastFlushTS = now
		lastRows = w.stats.Rows
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return w.finish(ctx.Err())

		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return w.finish(err)
				}
				return w.finish(nil)
			}
			w.stats.Rows++
			if w.dups != nil {
				w.trackVIDs(row)
			}
			batch = append(batch, row)
			if len(batch) >= w.cfg.BatchSize {
				if err := flush(); err != nil {
					return w.finish(err)
				}
			}
		}
	}
}

func (w *Writer) finish(err error) (Stats, error) {
	st := w.stats
	if !w.engineKnown {
		st.EngineAffected = -1
	}

	metrics.RecordRow(w.cfg.Job, metrics.RowConsumed, st.Rows)
	metrics.RecordRow(w.cfg.Job, metrics.RowCommitted, st.Affected)
	metrics.RecordRow(w.cfg.Job, metrics.RowDirty, st.Dirty)
	metrics.RecordBatches(w.cfg.Job, st.Batches)

	if err != nil {
		log.Printf("writer: aborted job=%s rows=%d committed=%d dirty=%d err=%v", w.cfg.Job, st.Rows, st.Affected, st.Dirty, err)
		return st, err
	}
	if st.Affected != st.Rows {
		log.Printf("writer: WARN job=%s committed rows %d != consumed rows %d (dirty=%d)", w.cfg.Job, st.Affected, st.Rows, st.Dirty)
	}
	if st.DuplicateVIDs > 0 {
		log.Printf("writer: WARN job=%s %d rows reused a vertex id; later rows overwrote earlier ones", w.cfg.Job, st.DuplicateVIDs)
	}
	log.Printf("writer: done job=%s rows=%d committed=%d dirty=%d batches=%d fallbacks=%d statements=%d engine_affected=%d",
		w.cfg.Job, st.Rows, st.Affected, st.Dirty, st.Batches, st.Fallbacks, st.Statements, st.EngineAffected)
	return st, nil
}

// flush writes one batch, falling back to single rows when any statement
// of the batch fails.
func (w *Writer) flush(ctx context.Context, batch []record.Row) error {
	w.stats.Batches++

	err := w.execute(ctx, batch, "batch")
	if err == nil {
		w.stats.Affected += int64(len(batch))
		return nil
	}
	if isFatal(err) {
		return err
	}

	w.stats.Fallbacks++
	log.Printf("writer: batch #%d failed, retrying %d rows one by one: %v", w.stats.Batches, len(batch), err)

	one := make([]record.Row, 1)
	for _, row := range batch {
		one[0] = row
		if err := w.execute(ctx, one, "row"); err != nil {
			if isFatal(err) {
				return err
			}
			w.stats.Dirty++
			w.sink.Collect(DirtyRecord{Row: row, Err: err})
			continue
		}
		w.stats.Affected++
	}
	return nil
}

// execute builds and runs one statement per target for rows, stopping at the
// first failure. It counts as a single attempt.
func (w *Writer) execute(ctx context.Context, rows []record.Row, mode string) error {
	w.stats.Attempts++
	for _, t := range w.targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		stmt, err := w.build(t, rows)
		if err != nil {
			return err
		}
		n, err := w.m.ExecuteMutation(ctx, stmt)
		w.stats.Statements++
		if err != nil {
			metrics.RecordStatement(w.cfg.Job, t.name, mode, "rejected")
			return fmt.Errorf("writer: %s %s: %w", t.kind, t.name, err)
		}
		metrics.RecordStatement(w.cfg.Job, t.name, mode, "ok")
		if n < 0 {
			w.engineKnown = false
		} else {
			w.stats.EngineAffected += n
		}
	}
	return nil
}

func (w *Writer) build(t target, rows []record.Row) (string, error) {
	if t.kind == schema.KindEdge {
		return ngql.BuildEdgeInsert(t.name, t.fields, w.cfg.Columns, t.binding, rows)
	}
	return ngql.BuildVertexInsert(t.name, t.fields, w.cfg.Columns, rows)
}

// isFatal reports errors that retrying row by row cannot fix.
func isFatal(err error) bool {
	return errors.Is(err, ngql.ErrColumnNotFound) ||
		errors.Is(err, graph.ErrConnection) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
