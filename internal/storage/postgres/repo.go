// Package postgres is the PostgreSQL storage backend. Loads use COPY via
// pgxpool; streams use the pool's query path.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"graphetl/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the resolved Postgres settings.
type Config struct {
	DSN     string
	Table   string
	Columns []string
	Where   string
}

// Repository is a pgxpool-backed storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Repository{pool: pool, cfg: cfg}, pool.Close, nil
}

// Stream implements storage.Repository.
func (r *Repository) Stream(ctx context.Context, query string, out chan<- []any) (int64, error) {
	if query == "" {
		query = storage.SelectSQL(pgIdent, r.cfg.Table, r.cfg.Columns, r.cfg.Where)
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("postgres query: %w", err)
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return n, fmt.Errorf("postgres row %d: %w", n+1, err)
		}
		for i, v := range vals {
			vals[i] = toCell(v)
		}
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case out <- vals:
			n++
		}
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("postgres rows: %w", err)
	}
	return n, nil
}

// CopyFrom loads rows with COPY into the configured table.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	return r.pool.CopyFrom(ctx, splitFQN(r.cfg.Table), columns, pgx.CopyFromRows(rows))
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("postgres exec: %w", err)
	}
	return nil
}

// toCell narrows pgx's decoded values to the plain Go types rows carry.
func toCell(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}

// pgIdent quotes an identifier, escaping embedded quotes.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// splitFQN turns "schema.table" into a pgx.Identifier.
func splitFQN(fqn string) pgx.Identifier {
	if i := strings.IndexByte(fqn, '.'); i > 0 {
		return pgx.Identifier{fqn[:i], fqn[i+1:]}
	}
	return pgx.Identifier{fqn}
}
