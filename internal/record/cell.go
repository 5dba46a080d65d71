// Package record defines the tabular values that flow through the graph ETL:
// input Cells grouped into Rows on the write path, and typed output Columns
// grouped into Records on the read path.
//
// Both sides are closed unions keyed by a Kind. Code that renders or maps a
// value switches over every Kind explicitly; an unknown Kind is an error, not
// a silent default.
package record

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies the dynamic type of a Cell.
type Kind uint8

const (
	KindNull Kind = iota
	// KindBad marks a value the upstream reader could not parse.
	KindBad
	KindBool
	KindInt
	KindDouble
	KindString
	KindBytes
	KindDate
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBad:    "bad",
	KindBool:   "bool",
	KindInt:    "int",
	KindDouble: "double",
	KindString: "string",
	KindBytes:  "bytes",
	KindDate:   "date",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Cell is one tabular value. Only the field matching Kind is meaningful.
type Cell struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Double float64
	Str    string
	Bytes  []byte
	Time   time.Time
	// Text optionally carries the source's own rendering of a date-like
	// value ("2024-01-31"); when set it is used verbatim.
	Text string
}

func Null() Cell                { return Cell{Kind: KindNull} }
func Bad(raw string) Cell       { return Cell{Kind: KindBad, Str: raw} }
func Bool(v bool) Cell          { return Cell{Kind: KindBool, Bool: v} }
func Int(v int64) Cell          { return Cell{Kind: KindInt, Int: v} }
func Double(v float64) Cell     { return Cell{Kind: KindDouble, Double: v} }
func String(v string) Cell      { return Cell{Kind: KindString, Str: v} }
func Bytes(v []byte) Cell       { return Cell{Kind: KindBytes, Bytes: v} }
func Date(t time.Time) Cell     { return Cell{Kind: KindDate, Time: t} }
func DateText(text string) Cell { return Cell{Kind: KindDate, Text: text} }

// IsNull reports whether the cell renders as NULL.
func (c Cell) IsNull() bool { return c.Kind == KindNull || c.Kind == KindBad }

// String returns the plain textual form used in dirty logs and literals.
// Quoting and date wrapping are the codec's job, not this method's.
func (c Cell) String() string {
	switch c.Kind {
	case KindNull:
		return ""
	case KindBad:
		return c.Str
	case KindBool:
		return strconv.FormatBool(c.Bool)
	case KindInt:
		return strconv.FormatInt(c.Int, 10)
	case KindDouble:
		return strconv.FormatFloat(c.Double, 'f', -1, 64)
	case KindString:
		return c.Str
	case KindBytes:
		return string(c.Bytes)
	case KindDate:
		if c.Text != "" {
			return c.Text
		}
		return c.Time.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("<%s>", c.Kind)
	}
}

// FromAny converts a value scanned by a database driver into a Cell.
// Integers of every width collapse to KindInt, floats to KindDouble.
// Values with no tabular meaning become KindBad so they are written as NULL
// instead of aborting the batch.
func FromAny(v any) Cell {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		if t > math.MaxInt64 {
			return Bad(strconv.FormatUint(t, 10))
		}
		return Int(int64(t))
	case float32:
		return Double(float64(t))
	case float64:
		return Double(t)
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case time.Time:
		return Date(t)
	case fmt.Stringer:
		return Bad(t.String())
	default:
		return Bad(fmt.Sprintf("%v", t))
	}
}

// Row is one input record in configured column order. Line is the 1-based
// position in the upstream stream and is used only for diagnostics.
type Row struct {
	Line  int
	Cells []Cell
}

// Strings returns the textual form of every cell, in order.
func (r Row) Strings() []string {
	out := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.String()
	}
	return out
}
