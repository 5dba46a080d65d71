package record

import (
	"math"
	"testing"
	"time"
)

type stringer struct{}

func (stringer) String() string { return "custom" }

func TestFromAny(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 31, 8, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		kind Kind
		text string
	}{
		{"nil", nil, KindNull, ""},
		{"bool", true, KindBool, "true"},
		{"int32", int32(-7), KindInt, "-7"},
		{"uint32", uint32(7), KindInt, "7"},
		{"uint64 fits", uint64(42), KindInt, "42"},
		{"uint64 overflow", uint64(math.MaxUint64), KindBad, "18446744073709551615"},
		{"float32", float32(1.5), KindDouble, "1.5"},
		{"float64", 0.25, KindDouble, "0.25"},
		{"string", "abc", KindString, "abc"},
		{"bytes", []byte("raw"), KindBytes, "raw"},
		{"time", ts, KindDate, "2024-01-31 08:30:00"},
		{"stringer", stringer{}, KindBad, "custom"},
		{"other", struct{ A int }{1}, KindBad, "{1}"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := FromAny(tc.in)
			if c.Kind != tc.kind {
				t.Fatalf("kind = %s, want %s", c.Kind, tc.kind)
			}
			if got := c.String(); got != tc.text {
				t.Fatalf("String() = %q, want %q", got, tc.text)
			}
		})
	}
}

func TestCell_IsNull(t *testing.T) {
	t.Parallel()

	for _, c := range []Cell{Null(), Bad("x")} {
		if !c.IsNull() {
			t.Fatalf("%s cell should render as NULL", c.Kind)
		}
	}
	for _, c := range []Cell{Int(0), String(""), Bool(false)} {
		if c.IsNull() {
			t.Fatalf("%s cell should not be NULL", c.Kind)
		}
	}
}

func TestDateText_Wins(t *testing.T) {
	t.Parallel()

	if got := DateText("2024-02-29").String(); got != "2024-02-29" {
		t.Fatalf("DateText String = %q", got)
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	if KindBytes.String() != "bytes" || Kind(99).String() != "kind(99)" {
		t.Fatalf("unexpected kind names: %s %s", KindBytes, Kind(99))
	}
	if ColDuration.String() != "duration" || ColumnKind(42).String() != "column_kind(42)" {
		t.Fatalf("unexpected column kind names: %s %s", ColDuration, ColumnKind(42))
	}
}

func TestRow_Strings(t *testing.T) {
	t.Parallel()

	r := Row{Line: 3, Cells: []Cell{String("a"), Null(), Int(5)}}
	got := r.Strings()
	if len(got) != 3 || got[0] != "a" || got[1] != "" || got[2] != "5" {
		t.Fatalf("Strings() = %q", got)
	}
}

func TestColumn_Value(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		col  Column
		want any
		text string
	}{
		{"bool", BoolColumn(true), true, "true"},
		{"long", LongColumn(9), int64(9), "9"},
		{"double", DoubleColumn(2.5), 2.5, "2.5"},
		{"string", StringColumn("s"), "s", "s"},
		{"time", TimeColumn("12:00:00.000000"), "12:00:00.000000", "12:00:00.000000"},
		{"datetime", DateTimeColumn("2024-01-31T08:30:00.000000"), "2024-01-31T08:30:00.000000", "2024-01-31T08:30:00.000000"},
		{"duration", DurationColumn("P1DT2H"), "P1DT2H", "P1DT2H"},
		{"null", NullColumn(), nil, "NULL"},
	}
	for _, tc := range tests {
		if got := tc.col.Value(); got != tc.want {
			t.Fatalf("%s: Value() = %#v, want %#v", tc.name, got, tc.want)
		}
		if got := tc.col.String(); got != tc.text {
			t.Fatalf("%s: String() = %q, want %q", tc.name, got, tc.text)
		}
	}

	d := DateColumn(2024, 2, 29)
	if got := d.String(); got != "2024-02-29" {
		t.Fatalf("date String() = %q", got)
	}
	tv, ok := d.Value().(time.Time)
	if !ok || tv.Year() != 2024 || tv.Month() != time.February || tv.Day() != 29 {
		t.Fatalf("date Value() = %#v", d.Value())
	}
}

func TestRecord_Values(t *testing.T) {
	t.Parallel()

	rec := Record{Columns: []Column{LongColumn(1), NullColumn(), StringColumn("x")}}
	got := rec.Values()
	if len(got) != 3 || got[0] != int64(1) || got[1] != nil || got[2] != "x" {
		t.Fatalf("Values() = %#v", got)
	}
}
