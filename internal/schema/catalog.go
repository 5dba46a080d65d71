// Package schema discovers vertex (tag) and edge types and their ordered,
// typed fields from the graph database, and holds them for the lifetime of a
// partition.
//
// A Catalog is populated once by Load and is read-only afterwards, so it may
// be shared by the writer and the statement builder of the same partition.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"graphetl/internal/graph"
)

// ErrSchemaNotFound is returned when a requested type does not exist in the
// graph space.
var ErrSchemaNotFound = errors.New("schema not found")

// Kind distinguishes vertex types from edge types.
type Kind uint8

const (
	KindTag Kind = iota + 1
	KindEdge
)

func (k Kind) String() string {
	switch k {
	case KindTag:
		return "tag"
	case KindEdge:
		return "edge"
	default:
		return "unknown"
	}
}

// FieldMeta describes one declared property of a type.
type FieldMeta struct {
	Field    string
	Type     string // declared type as reported by DESCRIBE, e.g. "int64", "fixed_string(32)"
	Nullable bool
}

// TypeMeta identifies one graph schema object and its fields in declared
// order. For tags, the first selected field is the primary key used to
// derive vertex ids.
type TypeMeta struct {
	Name   string
	Kind   Kind
	Fields []FieldMeta
}

// Catalog is the per-partition cache of discovered type metadata.
type Catalog struct {
	types map[string]TypeMeta
	order []string
}

// Introspection statements.
const (
	showTags  = "SHOW TAGS"
	showEdges = "SHOW EDGES"
)

func describeStmt(k Kind, name string) string {
	if k == KindEdge {
		return "DESCRIBE EDGE " + name
	}
	return "DESCRIBE TAG " + name
}

// Load discovers the requested type names. Every requested name must exist
// as a tag or an edge type; otherwise ErrSchemaNotFound is returned. A type
// whose DESCRIBE yields no fields is dropped with a warning.
func Load(ctx context.Context, q graph.Querier, names []string) (*Catalog, error) {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	kinds := make(map[string]Kind, len(names))
	for _, src := range []struct {
		stmt string
		kind Kind
	}{
		{showTags, KindTag},
		{showEdges, KindEdge},
	} {
		res, err := q.ExecuteQuery(ctx, src.stmt)
		if err != nil {
			return nil, fmt.Errorf("schema: %s: %w", strings.ToLower(src.stmt), err)
		}
		vals, err := res.ColValues("Name")
		if err != nil {
			return nil, fmt.Errorf("schema: %s: %w", strings.ToLower(src.stmt), err)
		}
		for _, v := range vals {
			name, err := v.AsString()
			if err != nil {
				return nil, fmt.Errorf("schema: %s: %w", strings.ToLower(src.stmt), err)
			}
			if _, ok := want[name]; !ok {
				continue
			}
			kinds[name] = src.kind
		}
	}

	for _, n := range names {
		if _, ok := kinds[n]; !ok {
			return nil, fmt.Errorf("schema: type %q: %w", n, ErrSchemaNotFound)
		}
	}

	cat := &Catalog{types: make(map[string]TypeMeta, len(kinds))}
	for _, n := range names {
		if _, seen := cat.types[n]; seen {
			continue
		}
		k := kinds[n]
		fields, err := describe(ctx, q, k, n)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			log.Printf("schema: WARN %s %s has no fields; skipping", k, n)
			continue
		}
		cat.types[n] = TypeMeta{Name: n, Kind: k, Fields: fields}
		cat.order = append(cat.order, n)
		log.Printf("schema: loaded %s %s fields=%s", k, n, formatFields(fields))
	}
	return cat, nil
}

func describe(ctx context.Context, q graph.Querier, k Kind, name string) ([]FieldMeta, error) {
	res, err := q.ExecuteQuery(ctx, describeStmt(k, name))
	if err != nil {
		return nil, fmt.Errorf("schema: describe %s %s: %w", k, name, err)
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}

	fieldIdx, typeIdx, nullIdx := res.ColumnIndex("Field"), res.ColumnIndex("Type"), res.ColumnIndex("Null")
	if fieldIdx < 0 || typeIdx < 0 {
		return nil, fmt.Errorf("schema: describe %s %s: unexpected columns %v", k, name, res.Columns)
	}

	fields := make([]FieldMeta, 0, len(res.Rows))
	need := max(fieldIdx, typeIdx, nullIdx) + 1
	for i, row := range res.Rows {
		if len(row) < need {
			return nil, fmt.Errorf("schema: describe %s %s row %d: %d values for %d columns", k, name, i, len(row), len(res.Columns))
		}
		f, err := row[fieldIdx].AsString()
		if err != nil {
			return nil, fmt.Errorf("schema: describe %s %s row %d: %w", k, name, i, err)
		}
		t, err := row[typeIdx].AsString()
		if err != nil {
			return nil, fmt.Errorf("schema: describe %s %s row %d: %w", k, name, i, err)
		}
		fm := FieldMeta{Field: f, Type: t}
		if nullIdx >= 0 {
			if s, err := row[nullIdx].AsString(); err == nil {
				fm.Nullable = strings.EqualFold(s, "YES")
			}
		}
		fields = append(fields, fm)
	}
	return fields, nil
}

// New builds a Catalog from already known metadata. It is used by tests and
// by callers that cache schema outside the graph.
func New(types ...TypeMeta) *Catalog {
	cat := &Catalog{types: make(map[string]TypeMeta, len(types))}
	for _, t := range types {
		if _, ok := cat.types[t.Name]; !ok {
			cat.order = append(cat.order, t.Name)
		}
		cat.types[t.Name] = t
	}
	return cat
}

// Type returns the metadata for name.
func (c *Catalog) Type(name string) (TypeMeta, bool) {
	t, ok := c.types[name]
	return t, ok
}

// Fields returns the ordered fields of name, or nil.
func (c *Catalog) Fields(name string) []FieldMeta {
	return c.types[name].Fields
}

// Names returns the loaded type names in request order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

func formatFields(fields []FieldMeta) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Field + ":" + f.Type
	}
	return "[" + strings.Join(parts, ",") + "]"
}
