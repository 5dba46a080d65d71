package record

import (
	"fmt"
	"strconv"
	"time"
)

// ColumnKind identifies the type of an output Column on the read path.
type ColumnKind uint8

const (
	ColBool ColumnKind = iota
	ColLong
	ColDouble
	ColString
	ColDate
	ColTime
	ColDateTime
	ColDuration
)

var columnKindNames = [...]string{
	ColBool:     "bool",
	ColLong:     "long",
	ColDouble:   "double",
	ColString:   "string",
	ColDate:     "date",
	ColTime:     "time",
	ColDateTime: "datetime",
	ColDuration: "duration",
}

func (k ColumnKind) String() string {
	if int(k) < len(columnKindNames) {
		return columnKindNames[k]
	}
	return "column_kind(" + strconv.Itoa(int(k)) + ")"
}

// Column is one typed output value. Null is orthogonal to Kind so a typed
// NULL can still be loaded into a typed destination column.
type Column struct {
	Kind   ColumnKind
	Null   bool
	Bool   bool
	Long   int64
	Double float64
	// Str holds the value of string columns and the canonical text of
	// time, datetime and duration columns.
	Str string
	// Year, Month, Day hold the decomposed value of date columns.
	Year  int
	Month int
	Day   int
}

func BoolColumn(v bool) Column       { return Column{Kind: ColBool, Bool: v} }
func LongColumn(v int64) Column      { return Column{Kind: ColLong, Long: v} }
func DoubleColumn(v float64) Column  { return Column{Kind: ColDouble, Double: v} }
func StringColumn(v string) Column   { return Column{Kind: ColString, Str: v} }
func NullColumn() Column             { return Column{Kind: ColString, Null: true} }
func TimeColumn(v string) Column     { return Column{Kind: ColTime, Str: v} }
func DateTimeColumn(v string) Column { return Column{Kind: ColDateTime, Str: v} }
func DurationColumn(v string) Column { return Column{Kind: ColDuration, Str: v} }

func DateColumn(year, month, day int) Column {
	return Column{Kind: ColDate, Year: year, Month: month, Day: day}
}

// Value returns the column as a driver-friendly Go value, suitable for
// storage.Repository.CopyFrom.
func (c Column) Value() any {
	if c.Null {
		return nil
	}
	switch c.Kind {
	case ColBool:
		return c.Bool
	case ColLong:
		return c.Long
	case ColDouble:
		return c.Double
	case ColDate:
		return time.Date(c.Year, time.Month(c.Month), c.Day, 0, 0, 0, 0, time.UTC)
	case ColString, ColTime, ColDateTime, ColDuration:
		return c.Str
	default:
		return nil
	}
}

func (c Column) String() string {
	if c.Null {
		return "NULL"
	}
	switch c.Kind {
	case ColBool:
		return strconv.FormatBool(c.Bool)
	case ColLong:
		return strconv.FormatInt(c.Long, 10)
	case ColDouble:
		return strconv.FormatFloat(c.Double, 'f', -1, 64)
	case ColDate:
		return fmt.Sprintf("%04d-%02d-%02d", c.Year, c.Month, c.Day)
	default:
		return c.Str
	}
}

// Record is one output row of the read path.
type Record struct {
	Columns []Column
}

// Values converts the record for a bulk copy.
func (r Record) Values() []any {
	out := make([]any, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = c.Value()
	}
	return out
}
