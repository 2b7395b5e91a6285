package mongo

import (
	"context"

	"emailextract/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

var _ storage.Repository = (*wrappedRepo)(nil)

func init() {
	storage.Register("mongo", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{URI: cfg.DSN, Database: cfg.Database, Collection: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	// Collections are schemaless; only the collection itself is created.
	storage.RegisterDDL("mongo", func(ctx context.Context, repo storage.Repository, table string, _ []string) error {
		if err := repo.Exec(ctx, createCollectionCmd(table)); err != nil && !isNamespaceExists(err) {
			return err
		}
		return nil
	})
}
