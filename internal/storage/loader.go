package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"graphetl/internal/metrics"
)

// CopyFn is a backend's bulk insert, normally Repository.CopyFrom.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches copies mapped read-mode records into the sink table in batches
// of batchSize, the trailing partial batch included. It returns the rows
// copyFn reported as inserted. A failed copy stops the load; its error names
// the batch and the 1-based record range it held.
func LoadBatches(
	ctx context.Context,
	job string,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("loader: batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("loader: copyFn must not be nil")
	}

	l := &batchLoad{
		job:     job,
		columns: columns,
		copy:    copyFn,
		pending: make([][]any, 0, batchSize),
		started: time.Now(),
	}
	l.mark = l.started
	defer l.record()

	for {
		select {
		case <-ctx.Done():
			return l.inserted, ctx.Err()
		case row, ok := <-in:
			if !ok {
				if err := l.flush(ctx); err != nil {
					return l.inserted, err
				}
				log.Printf("loader: done job=%s batches=%d records=%d inserted=%d elapsed=%s",
					job, l.batches, l.seen, l.inserted, time.Since(l.started).Truncate(time.Millisecond))
				return l.inserted, nil
			}
			l.pending = append(l.pending, row)
			l.seen++
			if len(l.pending) == batchSize {
				if err := l.flush(ctx); err != nil {
					return l.inserted, err
				}
			}
		}
	}
}

// batchLoad is the running state of one LoadBatches call.
type batchLoad struct {
	job     string
	columns []string
	copy    CopyFn
	pending [][]any

	seen     int64 // records received
	inserted int64 // rows reported by copy
	batches  int64 // successful copies

	started    time.Time
	mark       time.Time // time of the previous successful copy
	markedRows int64     // inserted at mark
}

func (l *batchLoad) flush(ctx context.Context) error {
	if len(l.pending) == 0 {
		return nil
	}
	first := l.seen - int64(len(l.pending)) + 1
	n, err := l.copy(ctx, l.columns, l.pending)
	l.inserted += n
	l.pending = l.pending[:0]
	if err != nil {
		log.Printf("loader: copy failed job=%s records=%d-%d inserted=%d err=%v", l.job, first, l.seen, n, err)
		return fmt.Errorf("loader: batch #%d records %d-%d: %w", l.batches+1, first, l.seen, err)
	}
	l.batches++
	l.progress(n)
	return nil
}

// progress logs the batch with its rows/sec since the previous copy.
func (l *batchLoad) progress(n int64) {
	now := time.Now()
	window := now.Sub(l.mark)
	var rps float64
	if window > 0 {
		rps = float64(l.inserted-l.markedRows) / window.Seconds()
	}
	log.Printf("loader: job=%s batch #%d inserted=%d total=%d rps=%.0f since_last=%s",
		l.job, l.batches, n, l.inserted, rps, window.Truncate(time.Millisecond))
	l.mark, l.markedRows = now, l.inserted
}

func (l *batchLoad) record() {
	metrics.RecordRow(l.job, metrics.RowLoaded, l.inserted)
	metrics.RecordBatches(l.job, l.batches)
}
