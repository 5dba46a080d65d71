package writer

import (
	"log"

	"graphetl/internal/ngql"
	"graphetl/internal/record"
	"graphetl/internal/schema"

	"github.com/zeebo/xxh3"
)

// maxVIDWarnings caps per-row duplicate logs; the rest are only counted.
const maxVIDWarnings = 10

// vidTracker remembers the 64-bit hash of every vertex id written so far.
// A hash collision can report a false duplicate; it never hides a real one.
type vidTracker struct {
	seen map[uint64]struct{}
}

func newVIDTracker() *vidTracker {
	return &vidTracker{seen: make(map[uint64]struct{})}
}

// add records id and reports whether it was already present.
func (t *vidTracker) add(id string) bool {
	h := xxh3.HashString(id)
	if _, ok := t.seen[h]; ok {
		return true
	}
	t.seen[h] = struct{}{}
	return false
}

func (w *Writer) trackVIDs(row record.Row) {
	for _, t := range w.targets {
		if t.kind != schema.KindTag {
			continue
		}
		idx := t.sel.Index[0]
		if idx >= len(row.Cells) || row.Cells[idx].IsNull() {
			continue
		}
		lit, err := ngql.Render(t.sel.Fields[0], row.Cells[idx])
		if err != nil {
			continue
		}
		id := ngql.VertexID(t.name, lit)
		if !w.dups.add(id) {
			continue
		}
		w.stats.DuplicateVIDs++
		if w.stats.DuplicateVIDs <= maxVIDWarnings {
			log.Printf("writer: WARN duplicate vertex id %q at line %d", id, row.Line)
		}
	}
}
