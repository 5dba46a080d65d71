// Package reader runs lookup or user-supplied queries against the graph and
// streams every result row, mapped to typed columns, to a RecordSink.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"graphetl/internal/graph"
	"graphetl/internal/metrics"
	"graphetl/internal/record"
)

// ErrNoQueries means neither tags nor explicit queries were configured.
var ErrNoQueries = errors.New("reader: neither table nor query_sql is set")

// Config is the resolved, per-partition read configuration.
type Config struct {
	Job     string
	Tables  []string // tags to LOOKUP when Queries is empty
	Columns []string // properties yielded by synthesized lookups
	Where   string   // optional LOOKUP filter
	Queries []string // explicit statements, executed verbatim
}

// RecordSink receives mapped records in result order.
type RecordSink interface {
	Send(ctx context.Context, rec record.Record) error
}

// SinkFunc adapts a function to RecordSink.
type SinkFunc func(ctx context.Context, rec record.Record) error

func (f SinkFunc) Send(ctx context.Context, rec record.Record) error { return f(ctx, rec) }

// ChanSink forwards records to ch, giving up when ctx is done.
func ChanSink(ch chan<- record.Record) RecordSink {
	return SinkFunc(func(ctx context.Context, rec record.Record) error {
		select {
		case ch <- rec:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// ReadStats summarizes one ProcessRead call.
type ReadStats struct {
	Queries       int64 // statements executed
	FailedQueries int64 // statements rejected or aborted by a mapping error
	Records       int64 // records delivered to the sink
}

// Reader executes the read path for one partition.
type Reader struct {
	cfg     Config
	q       graph.Querier
	queries []string
}

// New checks the configuration and prepares the statements to run.
func New(cfg Config, q graph.Querier) (*Reader, error) {
	if q == nil {
		return nil, fmt.Errorf("reader: querier must not be nil")
	}
	var queries []string
	switch {
	case len(cfg.Queries) > 0:
		for _, s := range cfg.Queries {
			if strings.TrimSpace(s) != "" {
				queries = append(queries, s)
			}
		}
	case len(cfg.Tables) > 0:
		if len(cfg.Columns) == 0 {
			return nil, fmt.Errorf("reader: lookup on %v needs at least one column", cfg.Tables)
		}
		for _, tag := range cfg.Tables {
			queries = append(queries, LookupQuery(tag, cfg.Columns, cfg.Where))
		}
	}
	if len(queries) == 0 {
		return nil, ErrNoQueries
	}
	return &Reader{cfg: cfg, q: q, queries: queries}, nil
}

// Queries returns the statements ProcessRead will execute, in order.
func (r *Reader) Queries() []string {
	return append([]string(nil), r.queries...)
}

// LookupQuery renders
//
//	LOOKUP ON <tag> [WHERE <where> ]YIELD properties(vertex).<c1>,properties(vertex).<c2>
func LookupQuery(tag string, columns []string, where string) string {
	var b strings.Builder
	b.WriteString("LOOKUP ON ")
	b.WriteString(tag)
	b.WriteByte(' ')
	if w := strings.TrimSpace(where); w != "" {
		b.WriteString("WHERE ")
		b.WriteString(w)
		b.WriteByte(' ')
	}
	b.WriteString("YIELD ")
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString("properties(vertex).")
		b.WriteString(c)
	}
	return b.String()
}

// ProcessRead executes every statement in order and sends each mapped row to
// sink. A rejected statement or an unmappable row abandons that statement
// only; records already sent stay sent and later statements still run.
// Sink errors, lost connections and cancellation are returned.
func (r *Reader) ProcessRead(ctx context.Context, sink RecordSink) (ReadStats, error) {
	var st ReadStats
	start := time.Now()

	for i, stmt := range r.queries {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		qStart := time.Now()
		st.Queries++

		res, err := r.q.ExecuteQuery(ctx, stmt)
		if err != nil {
			metrics.RecordStep(r.cfg.Job, "query", err, time.Since(qStart))
			if errors.Is(err, graph.ErrConnection) || ctx.Err() != nil {
				return st, fmt.Errorf("reader: query #%d: %w", i+1, err)
			}
			st.FailedQueries++
			metrics.RecordRow(r.cfg.Job, metrics.RowQueryFailed, 1)
			log.Printf("reader: query #%d failed, skipping: stmt=%q err=%v", i+1, stmt, err)
			continue
		}

		sent, mapErr, sendErr := r.drain(ctx, res, sink)
		st.Records += sent
		metrics.RecordRow(r.cfg.Job, metrics.RowMapped, sent)
		if sendErr != nil {
			metrics.RecordStep(r.cfg.Job, "query", sendErr, time.Since(qStart))
			return st, fmt.Errorf("reader: query #%d: sink: %w", i+1, sendErr)
		}
		metrics.RecordStep(r.cfg.Job, "query", mapErr, time.Since(qStart))
		if mapErr != nil {
			st.FailedQueries++
			metrics.RecordRow(r.cfg.Job, metrics.RowQueryFailed, 1)
			log.Printf("reader: query #%d aborted after %d of %d rows: %v", i+1, sent, len(res.Rows), mapErr)
			continue
		}
		log.Printf("reader: query #%d done rows=%d elapsed=%s", i+1, sent, time.Since(qStart).Truncate(time.Millisecond))
	}

	log.Printf("reader: done job=%s queries=%d failed=%d records=%d elapsed=%s",
		r.cfg.Job, st.Queries, st.FailedQueries, st.Records, time.Since(start).Truncate(time.Millisecond))
	return st, nil
}

func (r *Reader) drain(ctx context.Context, res graph.Result, sink RecordSink) (sent int64, mapErr, sendErr error) {
	for n, row := range res.Rows {
		rec, err := MapRow(res.Columns, row)
		if err != nil {
			return sent, fmt.Errorf("row %d: %w", n+1, err), nil
		}
		if err := sink.Send(ctx, rec); err != nil {
			return sent, nil, err
		}
		sent++
	}
	return sent, nil, nil
}
