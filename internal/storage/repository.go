// Package storage holds the relational side of a job: the table rows are read
// from in write mode, or the table mapped graph records are loaded into in
// read mode. Backends register themselves by kind; callers stay agnostic and
// go through Repository.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Repository is a relational endpoint bound to one table and column list.
type Repository interface {
	// Stream runs query and sends each result row, values in select order,
	// to out. An empty query selects Config.Columns from Config.Table,
	// filtered by Config.Where. It does not close out.
	Stream(ctx context.Context, query string, out chan<- []any) (int64, error)
	// CopyFrom bulk-inserts rows aligned to columns into Config.Table.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// Exec runs a single statement, typically a pre-load DDL or cleanup.
	Exec(ctx context.Context, sql string) error
	Close()
}

// Config selects a backend and binds it to a table.
type Config struct {
	Kind    string
	DSN     string
	Table   string
	Columns []string
	Where   string
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Registering the same kind
// twice replaces the earlier factory.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens the Repository registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %s)", cfg.Kind, strings.Join(ListKinds(), ", "))
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
