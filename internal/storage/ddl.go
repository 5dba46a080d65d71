package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Generic column types a TableDef is written in. Dialects map them to
// concrete SQL types.
const (
	TypeInt   = "int"
	TypeFloat = "float"
	TypeBool  = "bool"
	TypeText  = "text"
	TypeDate  = "date"
)

// ColumnDef describes one column of a table to create. Type is one of the
// generic Type* names; unknown types render as the dialect's text type.
type ColumnDef struct {
	Name     string
	Type     string
	Nullable bool
}

// TableDef is a table to create. Table may be schema-qualified.
type TableDef struct {
	Table   string
	Columns []ColumnDef
}

// Dialect renders DDL for one storage kind.
type Dialect struct {
	Quote Quoter
	Types map[string]string
	// Guard wraps a bare CREATE TABLE for engines without IF NOT EXISTS.
	// When nil the statement uses CREATE TABLE IF NOT EXISTS.
	Guard func(table, create string) string
}

func (d Dialect) sqlType(generic string) string {
	if t, ok := d.Types[generic]; ok {
		return t
	}
	return d.Types[TypeText]
}

// CreateTableSQL renders an idempotent CREATE TABLE for t.
func CreateTableSQL(d Dialect, t TableDef) (string, error) {
	table := strings.TrimSpace(t.Table)
	if table == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}
	if d.Quote == nil || d.Types[TypeText] == "" {
		return "", fmt.Errorf("ddl: dialect needs a quoter and a text type")
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", table)
		}
		def := d.Quote(name) + " " + d.sqlType(c.Type)
		if !c.Nullable {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}

	body := fmt.Sprintf("%s (\n  %s\n)", QuoteFQN(d.Quote, table), strings.Join(cols, ",\n  "))
	if d.Guard != nil {
		return d.Guard(table, "CREATE TABLE "+body), nil
	}
	return "CREATE TABLE IF NOT EXISTS " + body, nil
}

var (
	dialectMu sync.RWMutex
	dialects  = map[string]Dialect{}
)

// RegisterDialect associates a storage kind with its DDL dialect. Backends
// call it from init next to Register.
func RegisterDialect(kind string, d Dialect) {
	dialectMu.Lock()
	defer dialectMu.Unlock()
	dialects[kind] = d
}

// DialectFor returns the dialect registered for kind.
func DialectFor(kind string) (Dialect, error) {
	dialectMu.RLock()
	defer dialectMu.RUnlock()
	d, ok := dialects[kind]
	if !ok {
		known := make([]string, 0, len(dialects))
		for k := range dialects {
			known = append(known, k)
		}
		sort.Strings(known)
		return Dialect{}, fmt.Errorf("no DDL dialect for storage.kind=%s (have %v)", kind, known)
	}
	return d, nil
}
