package reader

import (
	"errors"
	"testing"

	"graphetl/internal/graph"
	"graphetl/internal/record"
)

func TestMapRow_BoolStringInt(t *testing.T) {
	t.Parallel()

	rec, err := MapRow(
		[]string{"active", "name", "age"},
		[]graph.Value{graph.BoolValue(true), graph.StringValue("Tim"), graph.IntValue(42)},
	)
	if err != nil {
		t.Fatalf("MapRow: %v", err)
	}
	if len(rec.Columns) != 3 {
		t.Fatalf("columns = %d, want 3", len(rec.Columns))
	}
	want := []record.Column{record.BoolColumn(true), record.StringColumn("Tim"), record.LongColumn(42)}
	for i := range want {
		if rec.Columns[i] != want[i] {
			t.Fatalf("column %d = %+v, want %+v", i, rec.Columns[i], want[i])
		}
	}
}

func TestMapRow_AllKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   graph.Value
		want record.Column
	}{
		{"null", graph.NullValue(), record.NullColumn()},
		{"float", graph.FloatValue(0.5), record.DoubleColumn(0.5)},
		{"date", graph.DateValue(2024, 2, 29), record.DateColumn(2024, 2, 29)},
		{"time", graph.TimeValue("10:15:00.000000"), record.TimeColumn("10:15:00.000000")},
		{"datetime", graph.DateTimeValue("2024-02-29T10:15:00.000000"), record.DateTimeColumn("2024-02-29T10:15:00.000000")},
		{"duration", graph.DurationValue("P1DT2H"), record.DurationColumn("P1DT2H")},
	}
	for _, tc := range tests {
		rec, err := MapRow([]string{"c"}, []graph.Value{tc.in})
		if err != nil {
			t.Fatalf("%s: MapRow: %v", tc.name, err)
		}
		if rec.Columns[0] != tc.want {
			t.Fatalf("%s: column = %+v, want %+v", tc.name, rec.Columns[0], tc.want)
		}
	}
}

func TestMapRow_RuntimeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cols []string
		vals []graph.Value
	}{
		{"unsupported kind", []string{"v"}, []graph.Value{graph.OtherValue("(\"a\")-[:follow]->(\"b\")")}},
		{"width mismatch", []string{"a", "b"}, []graph.Value{graph.IntValue(1)}},
		{"bad date", []string{"d"}, []graph.Value{graph.DateValue(2024, 13, 1)}},
	}
	for _, tc := range tests {
		if _, err := MapRow(tc.cols, tc.vals); !errors.Is(err, ErrRuntime) {
			t.Fatalf("%s: err = %v, want ErrRuntime", tc.name, err)
		}
	}
}
