package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoDDL is returned by EnsureTable for kinds without a bootstrapper
// (file sinks, for instance).
var ErrNoDDL = errors.New("no DDL bootstrapper registered")

// DDLBootstrapper creates table (with the given columns, all text) when it
// does not exist yet. It must be idempotent.
type DDLBootstrapper func(ctx context.Context, repo Repository, table string, columns []string) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the DDLBootstrapper for kind.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureTable runs the bootstrapper registered for kind against repo.
func EnsureTable(ctx context.Context, kind string, repo Repository, table string, columns []string) error {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w for storage.kind=%q", ErrNoDDL, kind)
	}
	if len(columns) == 0 {
		return fmt.Errorf("ensure table %s: no columns", table)
	}
	return fn(ctx, repo, table, columns)
}
