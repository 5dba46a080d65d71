// Package transformer holds row-level transforms applied between the
// relational source and the graph writer.
package transformer

import (
	"context"

	"graphetl/internal/record"
)

// Transformer rewrites a row in place and returns it.
type Transformer interface {
	Apply(record.Row) record.Row
}

// Chain is an ordered list of transformers.
type Chain []Transformer

func (c Chain) Apply(r record.Row) record.Row {
	for _, t := range c {
		if t == nil {
			continue
		}
		r = t.Apply(r)
	}
	return r
}

// Stream applies t to every row from in and forwards it to out. It closes
// out when in is drained or ctx is canceled.
func Stream(ctx context.Context, in <-chan record.Row, out chan<- record.Row, t Transformer) {
	defer close(out)
	for r := range in {
		if t != nil {
			r = t.Apply(r)
		}
		select {
		case out <- r:
		case <-ctx.Done():
			return
		}
	}
}
