// Package graph defines the two capabilities the translation engine needs
// from a graph database connection, and the result model they return.
//
//   - Mutator executes an INSERT statement and reports rows affected.
//   - Querier executes a schema or lookup query and returns typed rows.
//
// NebulaSession implements both over nebula-go. MemoryClient implements both
// in memory for tests.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrConnection marks transport-level failures (lost connection, protocol
// errors). Callers treat it as fatal for the partition, unlike a statement
// the server merely rejected.
var ErrConnection = errors.New("graph: connection error")

// ErrStatement marks a statement rejected by the graph server.
var ErrStatement = errors.New("graph: statement rejected")

// Mutator executes a mutation statement. A negative count means the server
// does not report rows affected for this statement form.
type Mutator interface {
	ExecuteMutation(ctx context.Context, stmt string) (int64, error)
}

// Querier executes a statement that yields rows.
type Querier interface {
	ExecuteQuery(ctx context.Context, stmt string) (Result, error)
}

// Session is a single partition's connection to the graph.
type Session interface {
	Mutator
	Querier
	Close() error
}

// ValueKind identifies the dynamic type of a graph result Value.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueInt
	ValueFloat
	ValueString
	ValueDate
	ValueTime
	ValueDateTime
	ValueDuration
	// ValueOther covers kinds with no tabular mapping (lists, vertices,
	// paths, geography).
	ValueOther
)

var valueKindNames = [...]string{
	ValueNull:     "null",
	ValueBool:     "bool",
	ValueInt:      "int",
	ValueFloat:    "float",
	ValueString:   "string",
	ValueDate:     "date",
	ValueTime:     "time",
	ValueDateTime: "datetime",
	ValueDuration: "duration",
	ValueOther:    "other",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return "value_kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is one cell of a graph query result.
type Value struct {
	Kind  ValueKind
	Bool  bool
	Int   int64
	Float float64
	// Str holds string values and the canonical text of time, datetime,
	// duration and other values.
	Str   string
	Year  int
	Month int
	Day   int
}

func NullValue() Value             { return Value{Kind: ValueNull} }
func BoolValue(v bool) Value       { return Value{Kind: ValueBool, Bool: v} }
func IntValue(v int64) Value       { return Value{Kind: ValueInt, Int: v} }
func FloatValue(v float64) Value   { return Value{Kind: ValueFloat, Float: v} }
func StringValue(v string) Value   { return Value{Kind: ValueString, Str: v} }
func TimeValue(v string) Value     { return Value{Kind: ValueTime, Str: v} }
func DateTimeValue(v string) Value { return Value{Kind: ValueDateTime, Str: v} }
func DurationValue(v string) Value { return Value{Kind: ValueDuration, Str: v} }
func OtherValue(v string) Value    { return Value{Kind: ValueOther, Str: v} }

func DateValue(year, month, day int) Value {
	return Value{Kind: ValueDate, Year: year, Month: month, Day: day}
}

// AsString returns the string payload, failing for non-string kinds.
func (v Value) AsString() (string, error) {
	if v.Kind != ValueString {
		return "", fmt.Errorf("graph: value is %s, not string", v.Kind)
	}
	return v.Str, nil
}

// Result is a fully materialized query response.
type Result struct {
	Columns []string
	Rows    [][]Value
}

// ColumnIndex returns the position of name in Columns, or -1.
func (r Result) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ColValues returns every row's value for the named column.
func (r Result) ColValues(name string) ([]Value, error) {
	idx := r.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("graph: result has no column %q (columns=%v)", name, r.Columns)
	}
	out := make([]Value, 0, len(r.Rows))
	for i, row := range r.Rows {
		if idx >= len(row) {
			return nil, fmt.Errorf("graph: row %d has %d values, want column %d", i, len(row), idx)
		}
		out = append(out, row[idx])
	}
	return out, nil
}
