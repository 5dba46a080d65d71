package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Quoter quotes one identifier for a SQL dialect.
type Quoter func(ident string) string

// QuoteFQN quotes every dot-separated part of a possibly schema-qualified
// name, so "dbo.players" becomes [dbo].[players] under a bracket Quoter.
func QuoteFQN(q Quoter, name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q(p)
	}
	return strings.Join(parts, ".")
}

// QuoteAll maps q over cols.
func QuoteAll(q Quoter, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = q(c)
	}
	return out
}

// SelectSQL builds the default source query of a Repository. where is
// appended verbatim.
func SelectSQL(q Quoter, table string, columns []string, where string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(QuoteAll(q, columns), ","))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(QuoteFQN(q, table))
	if w := strings.TrimSpace(where); w != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(w)
	}
	return sb.String()
}

// Converter turns a scanned driver value into one record.FromAny understands.
// dbType is the driver's DatabaseTypeName, upper case.
type Converter func(dbType string, v any) any

// ScanRows sends every row of rows to out, applying conv when non-nil, and
// closes rows. It returns the number of rows sent.
func ScanRows(ctx context.Context, rows *sql.Rows, out chan<- []any, conv Converter) (int64, error) {
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return 0, fmt.Errorf("column types: %w", err)
	}
	names := make([]string, len(types))
	for i, ct := range types {
		names[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	var n int64
	for rows.Next() {
		vals := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return n, fmt.Errorf("scan row %d: %w", n+1, err)
		}
		if conv != nil {
			for i, v := range vals {
				if v != nil {
					vals[i] = conv(names[i], v)
				}
			}
		}
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case out <- vals:
			n++
		}
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("rows: %w", err)
	}
	return n, nil
}
