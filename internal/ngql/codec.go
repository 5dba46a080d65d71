// Package ngql renders tabular cells as nGQL literals and assembles the
// bulk INSERT VERTEX and INSERT EDGE statements the batch writer executes.
//
// Everything here is pure: no I/O, no logging, no shared state. The writer
// owns execution and failure policy.
package ngql

import (
	"math"
	"strconv"
	"strings"

	"graphetl/internal/record"
	"graphetl/internal/schema"
)

// Layouts used when a date cell carries a time.Time rather than its own text.
const (
	layoutDate     = "2006-01-02"
	layoutTime     = "15:04:05"
	layoutDateTime = "2006-01-02T15:04:05"
	layoutFallback = "2006-01-02 15:04:05"
)

// Render converts one cell into the literal expected by field f.
//
// The cell's kind decides the form; the declared type only matters for date
// cells, which become date("..."), time("..."), datetime("...") or a plain
// quoted string.
func Render(f schema.FieldMeta, c record.Cell) (string, error) {
	switch c.Kind {
	case record.KindNull, record.KindBad:
		return "NULL", nil
	case record.KindBool:
		return strconv.FormatBool(c.Bool), nil
	case record.KindInt:
		return strconv.FormatInt(c.Int, 10), nil
	case record.KindDouble:
		if math.IsNaN(c.Double) || math.IsInf(c.Double, 0) {
			return "", &TypeMappingError{Field: f.Field, DeclaredType: f.Type, Kind: c.Kind}
		}
		return strconv.FormatFloat(c.Double, 'f', -1, 64), nil
	case record.KindString:
		return Quote(c.Str), nil
	case record.KindBytes:
		return Quote(string(c.Bytes)), nil
	case record.KindDate:
		return renderDate(f, c), nil
	default:
		return "", &TypeMappingError{Field: f.Field, DeclaredType: f.Type, Kind: c.Kind}
	}
}

func renderDate(f schema.FieldMeta, c record.Cell) string {
	fn, layout := "", layoutFallback
	switch strings.ToLower(strings.TrimSpace(f.Type)) {
	case "date":
		fn, layout = "date", layoutDate
	case "time":
		fn, layout = "time", layoutTime
	case "datetime":
		fn, layout = "datetime", layoutDateTime
	}

	text := c.Text
	if text == "" {
		text = c.Time.Format(layout)
	}
	if fn == "" {
		return Quote(text)
	}
	return fn + "(" + Quote(text) + ")"
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Quote wraps s in double quotes, escaping backslashes and double quotes.
func Quote(s string) string {
	return `"` + quoteEscaper.Replace(s) + `"`
}
