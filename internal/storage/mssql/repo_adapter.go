package mssql

import (
	"context"
	"fmt"
	"strings"

	"graphetl/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

var _ storage.Repository = (*wrappedRepo)(nil)

func init() {
	storage.RegisterDialect("mssql", storage.Dialect{
		Quote: msIdent,
		Types: map[string]string{
			storage.TypeInt:   "BIGINT",
			storage.TypeFloat: "FLOAT",
			storage.TypeBool:  "BIT",
			storage.TypeText:  "NVARCHAR(MAX)",
			storage.TypeDate:  "DATE",
		},
		Guard: func(table, create string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL %s", strings.ReplaceAll(table, "'", "''"), create)
		},
	})
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:     cfg.DSN,
			Table:   cfg.Table,
			Columns: cfg.Columns,
			Where:   cfg.Where,
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
}

type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() { w.closeFn() }
