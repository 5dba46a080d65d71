package ngql

import (
	"errors"
	"fmt"
	"strings"

	"graphetl/internal/record"
	"graphetl/internal/schema"
)

// ErrRowWidth means a row has fewer cells than configured columns.
var ErrRowWidth = errors.New("row narrower than configured columns")

// EdgeBinding names the endpoint tags of an edge type and the configured
// columns that carry their primary keys.
type EdgeBinding struct {
	SrcTag        string
	SrcPrimaryKey string
	DstTag        string
	DstPrimaryKey string
}

// Selection is a type's declared fields filtered to the configured columns,
// in declared order, with each field's position in the row.
type Selection struct {
	Fields []schema.FieldMeta
	Index  []int
}

// Select filters fields to those named in columns. Columns with no matching
// field are ignored; they may belong to another type written from the same
// row.
func Select(fields []schema.FieldMeta, columns []string) Selection {
	pos := columnIndex(columns)
	var sel Selection
	for _, f := range fields {
		i, ok := pos[f.Field]
		if !ok {
			continue
		}
		sel.Fields = append(sel.Fields, f)
		sel.Index = append(sel.Index, i)
	}
	return sel
}

func columnIndex(columns []string) map[string]int {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := pos[c]; !dup {
			pos[c] = i
		}
	}
	return pos
}

// BuildVertexInsert renders
//
//	INSERT VERTEX t(f1,f2) VALUES "t_pk1":(v1,v2),"t_pk2":(v1,v2)
//
// The id of each row comes from the first selected field.
func BuildVertexInsert(typeName string, fields []schema.FieldMeta, columns []string, rows []record.Row) (string, error) {
	if len(rows) == 0 {
		return "", ErrEmptyBatch
	}
	sel := Select(fields, columns)
	if len(sel.Fields) == 0 {
		return "", fmt.Errorf("ngql: vertex %s: no configured column matches a declared field: %w", typeName, ErrColumnNotFound)
	}

	var b strings.Builder
	b.WriteString("INSERT VERTEX ")
	b.WriteString(typeName)
	writeFieldList(&b, sel.Fields)
	b.WriteString(" VALUES ")

	vals := make([]string, len(sel.Fields))
	for r, row := range rows {
		if err := renderRow(sel, row, vals); err != nil {
			return "", fmt.Errorf("ngql: vertex %s line %d: %w", typeName, row.Line, err)
		}
		if row.Cells[sel.Index[0]].IsNull() {
			return "", fmt.Errorf("ngql: vertex %s line %d: field %q: %w", typeName, row.Line, sel.Fields[0].Field, ErrNullKey)
		}
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`"`)
		b.WriteString(VertexID(typeName, vals[0]))
		b.WriteString(`":(`)
		b.WriteString(strings.Join(vals, ","))
		b.WriteByte(')')
	}
	return b.String(), nil
}

// BuildEdgeInsert renders
//
//	INSERT EDGE e(f1) VALUES "src_pk"->"dst_pk":(v1)
//
// Endpoint ids come from the binding's key columns. Rank is not written.
func BuildEdgeInsert(typeName string, fields []schema.FieldMeta, columns []string, binding EdgeBinding, rows []record.Row) (string, error) {
	if len(rows) == 0 {
		return "", ErrEmptyBatch
	}
	pos := columnIndex(columns)
	srcIdx, ok := pos[binding.SrcPrimaryKey]
	if !ok {
		return "", fmt.Errorf("ngql: edge %s: src key %q: %w", typeName, binding.SrcPrimaryKey, ErrColumnNotFound)
	}
	dstIdx, ok := pos[binding.DstPrimaryKey]
	if !ok {
		return "", fmt.Errorf("ngql: edge %s: dst key %q: %w", typeName, binding.DstPrimaryKey, ErrColumnNotFound)
	}
	sel := Select(fields, columns)
	srcField := schema.FieldMeta{Field: binding.SrcPrimaryKey}
	dstField := schema.FieldMeta{Field: binding.DstPrimaryKey}

	var b strings.Builder
	b.WriteString("INSERT EDGE ")
	b.WriteString(typeName)
	writeFieldList(&b, sel.Fields)
	b.WriteString(" VALUES ")

	vals := make([]string, len(sel.Fields))
	for r, row := range rows {
		src, err := renderKey(srcField, row, srcIdx)
		if err != nil {
			return "", fmt.Errorf("ngql: edge %s line %d: %w", typeName, row.Line, err)
		}
		dst, err := renderKey(dstField, row, dstIdx)
		if err != nil {
			return "", fmt.Errorf("ngql: edge %s line %d: %w", typeName, row.Line, err)
		}
		if err := renderRow(sel, row, vals); err != nil {
			return "", fmt.Errorf("ngql: edge %s line %d: %w", typeName, row.Line, err)
		}
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`"`)
		b.WriteString(VertexID(binding.SrcTag, src))
		b.WriteString(`"->"`)
		b.WriteString(VertexID(binding.DstTag, dst))
		b.WriteString(`":(`)
		b.WriteString(strings.Join(vals, ","))
		b.WriteByte(')')
	}
	return b.String(), nil
}

func writeFieldList(b *strings.Builder, fields []schema.FieldMeta) {
	b.WriteByte('(')
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Field)
	}
	b.WriteByte(')')
}

func renderRow(sel Selection, row record.Row, dst []string) error {
	for i, f := range sel.Fields {
		v, err := renderAt(f, row, sel.Index[i])
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func renderAt(f schema.FieldMeta, row record.Row, idx int) (string, error) {
	if idx >= len(row.Cells) {
		return "", fmt.Errorf("field %q at column %d of %d: %w", f.Field, idx, len(row.Cells), ErrRowWidth)
	}
	return Render(f, row.Cells[idx])
}

// renderKey renders a cell that feeds a vertex id. Null and bad cells are
// rejected with ErrNullKey.
func renderKey(f schema.FieldMeta, row record.Row, idx int) (string, error) {
	v, err := renderAt(f, row, idx)
	if err != nil {
		return "", err
	}
	if row.Cells[idx].IsNull() {
		return "", fmt.Errorf("key %q: %w", f.Field, ErrNullKey)
	}
	return v, nil
}
