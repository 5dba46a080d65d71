package reader

import (
	"errors"
	"fmt"

	"graphetl/internal/graph"
	"graphetl/internal/record"
)

// ErrRuntime marks a result value that cannot be mapped to a column. It
// aborts the rest of the query that produced it.
var ErrRuntime = errors.New("runtime error")

// MapRow converts one result row into a record, one column per value, in
// order. Time, datetime and duration values keep their canonical text.
func MapRow(cols []string, vals []graph.Value) (record.Record, error) {
	if len(vals) != len(cols) {
		return record.Record{}, fmt.Errorf("reader: row has %d values for %d columns: %w", len(vals), len(cols), ErrRuntime)
	}

	out := record.Record{Columns: make([]record.Column, 0, len(vals))}
	for i, v := range vals {
		var c record.Column
		switch v.Kind {
		case graph.ValueNull:
			c = record.NullColumn()
		case graph.ValueBool:
			c = record.BoolColumn(v.Bool)
		case graph.ValueInt:
			c = record.LongColumn(v.Int)
		case graph.ValueFloat:
			c = record.DoubleColumn(v.Float)
		case graph.ValueString:
			c = record.StringColumn(v.Str)
		case graph.ValueDate:
			if v.Month < 1 || v.Month > 12 || v.Day < 1 || v.Day > 31 {
				return record.Record{}, fmt.Errorf("reader: column %s: invalid date %d-%d-%d: %w", cols[i], v.Year, v.Month, v.Day, ErrRuntime)
			}
			c = record.DateColumn(v.Year, v.Month, v.Day)
		case graph.ValueTime:
			c = record.TimeColumn(v.Str)
		case graph.ValueDateTime:
			c = record.DateTimeColumn(v.Str)
		case graph.ValueDuration:
			c = record.DurationColumn(v.Str)
		default:
			return record.Record{}, fmt.Errorf("reader: column %s: unsupported %s value %q: %w", cols[i], v.Kind, v.Str, ErrRuntime)
		}
		out.Columns = append(out.Columns, c)
	}
	return out, nil
}
