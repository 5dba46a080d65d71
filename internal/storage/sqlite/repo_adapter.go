package sqlite

import (
	"context"

	"graphetl/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

var _ storage.Repository = (*wrappedRepo)(nil)

func init() {
	storage.RegisterDialect("sqlite", storage.Dialect{
		Quote: sqliteIdent,
		Types: map[string]string{
			storage.TypeInt:   "INTEGER",
			storage.TypeFloat: "REAL",
			storage.TypeBool:  "INTEGER",
			storage.TypeText:  "TEXT",
			storage.TypeDate:  "DATE",
		},
	})
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
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

// wrappedRepo adds Close on top of the cleanup func from NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}
