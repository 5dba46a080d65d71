package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"graphetl/internal/config"
	"graphetl/internal/graph"
	"graphetl/internal/schema"
	"graphetl/internal/storage"
)

// storageType maps a declared graph property type to the generic storage
// type its read-mode values load as.
func storageType(declared string) string {
	t := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch {
	case t == "bool":
		return storage.TypeBool
	case strings.HasPrefix(t, "int"), t == "timestamp":
		return storage.TypeInt
	case t == "float", t == "double":
		return storage.TypeFloat
	case t == "date":
		return storage.TypeDate
	default:
		return storage.TypeText
	}
}

// sinkTableDef describes the read-mode sink table. Column i takes its type
// from graph column i in the first table declaring it; columns the catalog
// does not know are nullable text.
func sinkTableDef(cat *schema.Catalog, p config.Job) storage.TableDef {
	cols := p.SQLColumns()
	def := storage.TableDef{Table: p.Storage.DB.Table, Columns: make([]storage.ColumnDef, len(cols))}
	for i, name := range cols {
		cd := storage.ColumnDef{Name: name, Type: storage.TypeText, Nullable: true}
		if i < len(p.Graph.Column) && cat != nil {
			if f, ok := lookupField(cat, p.Graph.Table, p.Graph.Column[i]); ok {
				cd.Type = storageType(f.Type)
				cd.Nullable = f.Nullable
			}
		}
		def.Columns[i] = cd
	}
	return def
}

func lookupField(cat *schema.Catalog, tables []string, field string) (schema.FieldMeta, bool) {
	for _, t := range tables {
		for _, f := range cat.Fields(t) {
			if f.Field == field {
				return f, true
			}
		}
	}
	return schema.FieldMeta{}, false
}

// createSinkTable creates the sink table if it is missing.
func createSinkTable(ctx context.Context, p config.Job, sess graph.Session, repo storage.Repository) error {
	d, err := storage.DialectFor(p.Storage.Kind)
	if err != nil {
		return err
	}
	var cat *schema.Catalog
	if len(p.Graph.Table) > 0 {
		if cat, err = schema.Load(ctx, sess, p.Graph.Table); err != nil {
			return fmt.Errorf("create_table: %w", err)
		}
	}
	stmt, err := storage.CreateTableSQL(d, sinkTableDef(cat, p))
	if err != nil {
		return fmt.Errorf("create_table: %w", err)
	}
	log.Printf("prepare: create_table: %s", strings.ReplaceAll(stmt, "\n", " "))
	if err := repo.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create_table: %w", err)
	}
	return nil
}
