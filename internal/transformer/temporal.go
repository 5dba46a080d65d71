package transformer

import (
	"strings"

	"graphetl/internal/record"
)

// Temporal retypes string cells at Positions as date-like cells that keep
// the source text, so they render as date("..."), time("...") or
// datetime("...") rather than as quoted strings. Blank strings become null.
type Temporal struct {
	Positions []int
}

func (t Temporal) Apply(r record.Row) record.Row {
	for _, i := range t.Positions {
		if i < 0 || i >= len(r.Cells) || r.Cells[i].Kind != record.KindString {
			continue
		}
		if s := strings.TrimSpace(r.Cells[i].Str); s != "" {
			r.Cells[i] = record.DateText(s)
		} else {
			r.Cells[i] = record.Null()
		}
	}
	return r
}

// IsTemporal reports whether a declared graph property type takes a
// date(), time() or datetime() literal.
func IsTemporal(declared string) bool {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "date", "time", "datetime":
		return true
	}
	return false
}
