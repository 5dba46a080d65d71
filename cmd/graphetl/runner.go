package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"graphetl/internal/config"
	"graphetl/internal/dirty"
	"graphetl/internal/graph"
	"graphetl/internal/metrics"
	"graphetl/internal/reader"
	"graphetl/internal/record"
	"graphetl/internal/schema"
	"graphetl/internal/storage"
	"graphetl/internal/transformer"
	"graphetl/internal/writer"

	"golang.org/x/sync/errgroup"
)

// errRecordWidth means a graph result row does not line up with the
// storage insert columns.
var errRecordWidth = errors.New("record width does not match storage columns")

// Seams for tests.
var (
	openGraphFn     = openNebula
	newRepositoryFn = storage.New
)

func openNebula(ctx context.Context, g config.Graph) (graph.Session, error) {
	s, err := graph.OpenNebula(ctx, graph.Options{
		Addresses:       g.Addresses,
		Username:        g.Username,
		Password:        g.Password,
		Space:           g.Space,
		Timeout:         time.Duration(g.TimeoutMS) * time.Millisecond,
		MaxConnPoolSize: g.MaxConnPoolSize,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

type runtimeConfig struct {
	maxParallel int
	batchSize   int
	bufferSize  int
}

// newRuntimeConfig resolves runtime knobs from the job, falling back to
// environment variables and then defaults.
func newRuntimeConfig(j config.Job) runtimeConfig {
	return runtimeConfig{
		maxParallel: pickInt(j.Runtime.MaxParallel, pickInt(getenvInt("GRAPHETL_MAX_PARALLEL", 1), 1)),
		batchSize:   pickInt(j.Graph.BatchSize, pickInt(getenvInt("GRAPHETL_BATCH_SIZE", 0), config.DefaultBatchSize)),
		bufferSize:  pickInt(j.Runtime.ChannelBuffer, pickInt(getenvInt("GRAPHETL_CH_BUFFER", 0), 4096)),
	}
}

func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

// partResult is what one partition reports back.
type partResult struct {
	write   writer.Stats
	read    reader.ReadStats
	sourced int64 // rows streamed out of storage (write mode)
	loaded  int64 // rows copied into storage (read mode)
}

// summary aggregates partition results.
type summary struct {
	partitions int
	failed     int
	partResult
}

func (s *summary) add(r partResult, err error) {
	s.partitions++
	if err != nil {
		s.failed++
	}
	s.sourced += r.sourced
	s.loaded += r.loaded
	s.write.Rows += r.write.Rows
	s.write.Affected += r.write.Affected
	s.write.Dirty += r.write.Dirty
	s.write.Batches += r.write.Batches
	s.write.Fallbacks += r.write.Fallbacks
	s.write.Statements += r.write.Statements
	s.write.DuplicateVIDs += r.write.DuplicateVIDs
	s.read.Queries += r.read.Queries
	s.read.FailedQueries += r.read.FailedQueries
	s.read.Records += r.read.Records
}

// run splits the job into partitions and runs at most max_parallel of them
// at a time. The first failing partition cancels the rest.
func run(ctx context.Context, job config.Job) (summary, error) {
	rt := newRuntimeConfig(job)
	parts := config.Split(job)

	log.Printf(
		"runtime: mode=%s partitions=%d max_parallel=%d batch=%d buffer=%d",
		job.ModeOrDefault(), len(parts), rt.maxParallel, rt.batchSize, rt.bufferSize,
	)

	var (
		mu  sync.Mutex
		sum summary
	)

	start := time.Now()
	err := prepare(ctx, job)
	metrics.RecordStep(job.Job, "prepare", err, time.Since(start))
	if err != nil {
		return sum, fmt.Errorf("prepare: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rt.maxParallel)
	for _, p := range parts {
		p := p
		g.Go(func() error {
			start := time.Now()
			res, err := runPartition(gctx, p, rt)
			metrics.RecordStep(p.Job, p.ModeOrDefault(), err, time.Since(start))

			mu.Lock()
			sum.add(res, err)
			mu.Unlock()

			if err != nil {
				return fmt.Errorf("partition %d: %w", p.Partition, err)
			}
			log.Printf("partition %d: done in %s", p.Partition, time.Since(start).Truncate(time.Millisecond))
			return nil
		})
	}
	err = g.Wait()
	return sum, err
}

// prepare runs the job-level setup of read mode once, before any partition
// starts loading: create_table first, then pre_sql in order.
func prepare(ctx context.Context, job config.Job) error {
	db := job.Storage.DB
	if job.ModeOrDefault() != config.ModeRead || (!db.CreateTable && len(db.PreSQL) == 0) {
		return nil
	}

	repo, err := newRepositoryFn(ctx, storageConfig(job))
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	defer repo.Close()

	if db.CreateTable {
		sess, err := openGraphFn(ctx, job.Graph)
		if err != nil {
			return fmt.Errorf("open graph: %w", err)
		}
		err = createSinkTable(ctx, job, sess, repo)
		if cerr := sess.Close(); cerr != nil {
			log.Printf("prepare: close graph session: %v", cerr)
		}
		if err != nil {
			return err
		}
	}
	for i, stmt := range db.PreSQL {
		if err := repo.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pre_sql[%d]: %w", i, err)
		}
		log.Printf("prepare: pre_sql[%d] done", i)
	}
	return nil
}

func storageConfig(j config.Job) storage.Config {
	return storage.Config{
		Kind:    j.Storage.Kind,
		DSN:     j.Storage.DB.DSN,
		Table:   j.Storage.DB.Table,
		Columns: j.SQLColumns(),
		Where:   j.Storage.DB.Where,
	}
}

// runPartition opens the partition's own graph session and repository and
// runs it in the job's mode.
func runPartition(ctx context.Context, p config.Job, rt runtimeConfig) (partResult, error) {
	sess, err := openGraphFn(ctx, p.Graph)
	if err != nil {
		return partResult{}, fmt.Errorf("open graph: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Printf("partition %d: close graph session: %v", p.Partition, err)
		}
	}()

	repo, err := newRepositoryFn(ctx, storageConfig(p))
	if err != nil {
		return partResult{}, fmt.Errorf("init repo: %w", err)
	}
	defer repo.Close()

	if p.ModeOrDefault() == config.ModeRead {
		return runRead(ctx, p, rt, sess, repo)
	}
	return runWrite(ctx, p, rt, sess, repo)
}

// runWrite streams storage rows into the graph:
//
//	repo.Stream → toRows → [rowTransforms] → writer.ProcessWrite
func runWrite(ctx context.Context, p config.Job, rt runtimeConfig, sess graph.Session, repo storage.Repository) (partResult, error) {
	var res partResult

	start := time.Now()
	cat, err := schema.Load(ctx, sess, p.Graph.Table)
	metrics.RecordStep(p.Job, "schema", err, time.Since(start))
	if err != nil {
		return res, err
	}

	var sink writer.DirtySink
	if p.Dirty.Path != "" {
		cs, err := dirty.NewCSVSink(p.Dirty.Path, p.Graph.Column)
		if err != nil {
			return res, err
		}
		defer func() {
			if err := cs.Close(); err != nil {
				log.Printf("partition %d: %v", p.Partition, err)
			}
		}()
		sink = cs
	}

	w, err := writer.New(writer.Config{
		Job:               p.Job,
		Tables:            p.Graph.Table,
		Columns:           p.Graph.Column,
		BatchSize:         rt.batchSize,
		EdgeTypes:         p.Graph.Bindings(),
		WarnDuplicateVIDs: p.Runtime.WarnDuplicateVIDs,
	}, cat, sess, sink)
	if err != nil {
		return res, err
	}

	raw := make(chan []any, rt.bufferSize)
	rows := make(chan record.Row, rt.bufferSize)
	converted := rows

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(raw)
		n, err := repo.Stream(gctx, sourceQuery(p), raw)
		res.sourced = n
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		return nil
	})
	if chain := rowTransforms(p, cat); len(chain) > 0 {
		converted = make(chan record.Row, rt.bufferSize)
		in := converted
		g.Go(func() error {
			transformer.Stream(gctx, in, rows, chain)
			return nil
		})
	}
	g.Go(func() error {
		defer close(converted)
		return toRows(gctx, raw, converted)
	})
	g.Go(func() error {
		st, err := w.ProcessWrite(gctx, rows)
		res.write = st
		return err
	})
	err = g.Wait()
	return res, err
}

// rowTransforms lists the write-path transforms in the order they apply:
// string normalization, then retyping of string cells bound for temporal
// fields.
func rowTransforms(p config.Job, cat *schema.Catalog) transformer.Chain {
	var chain transformer.Chain
	if p.Runtime.NormalizeStrings {
		chain = append(chain, transformer.Normalize{Trim: p.Runtime.TrimStrings})
	}
	var temporal []int
	for i, c := range p.Graph.Column {
		if f, ok := lookupField(cat, p.Graph.Table, c); ok && transformer.IsTemporal(f.Type) {
			temporal = append(temporal, i)
		}
	}
	if len(temporal) > 0 {
		chain = append(chain, transformer.Temporal{Positions: temporal})
	}
	return chain
}

// runRead loads graph query results into storage. The sink table is already
// prepared by run:
//
//	reader.ProcessRead → toValues → storage.LoadBatches(repo.CopyFrom)
func runRead(ctx context.Context, p config.Job, rt runtimeConfig, sess graph.Session, repo storage.Repository) (partResult, error) {
	var res partResult

	r, err := reader.New(reader.Config{
		Job:     p.Job,
		Tables:  p.Graph.Table,
		Columns: p.Graph.Column,
		Where:   p.Graph.Where,
		Queries: p.Graph.QuerySQL,
	}, sess)
	if err != nil {
		return res, err
	}
	log.Printf("partition %d: read statements=%q", p.Partition, r.Queries())

	cols := p.SQLColumns()
	recs := make(chan record.Record, rt.bufferSize)
	vals := make(chan []any, rt.bufferSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(recs)
		st, err := r.ProcessRead(gctx, reader.ChanSink(recs))
		res.read = st
		return err
	})
	g.Go(func() error {
		defer close(vals)
		return toValues(gctx, recs, vals, len(cols))
	})
	g.Go(func() error {
		n, err := storage.LoadBatches(gctx, p.Job, cols, vals, rt.batchSize, repo.CopyFrom)
		res.loaded = n
		return err
	})
	err = g.Wait()
	return res, err
}

func sourceQuery(p config.Job) string {
	if len(p.Storage.DB.Queries) > 0 {
		return p.Storage.DB.Queries[0]
	}
	return ""
}

// toRows numbers source rows from 1 and converts their values to cells.
func toRows(ctx context.Context, in <-chan []any, out chan<- record.Row) error {
	line := 0
	for vals := range in {
		line++
		cells := make([]record.Cell, len(vals))
		for i, v := range vals {
			cells[i] = record.FromAny(v)
		}
		select {
		case out <- record.Row{Line: line, Cells: cells}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func toValues(ctx context.Context, in <-chan record.Record, out chan<- []any, width int) error {
	n := 0
	for rec := range in {
		n++
		if len(rec.Columns) != width {
			return fmt.Errorf("record %d has %d columns, want %d: %w", n, len(rec.Columns), width, errRecordWidth)
		}
		select {
		case out <- rec.Values():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func logSummary(job config.Job, s summary) {
	if job.ModeOrDefault() == config.ModeRead {
		log.Printf("summary: job=%s partitions=%d failed=%d queries=%d failed_queries=%d records=%d loaded=%d",
			job.Job, s.partitions, s.failed, s.read.Queries, s.read.FailedQueries, s.read.Records, s.loaded)
		return
	}
	log.Printf("summary: job=%s partitions=%d failed=%d sourced=%d rows=%d committed=%d dirty=%d batches=%d fallbacks=%d statements=%d duplicate_vids=%d",
		job.Job, s.partitions, s.failed, s.sourced, s.write.Rows, s.write.Affected, s.write.Dirty,
		s.write.Batches, s.write.Fallbacks, s.write.Statements, s.write.DuplicateVIDs)
}
