// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"fmt"

	"github.com/pdiddy/litreview-engine/pkg/types"
)

// Backend is durable entry storage keyed by entry id. Each call is atomic
// for a single entry; multi-entry calls are not assumed transactional.
type Backend interface {
	GetAll(ctx context.Context) ([]types.Entry, error)
	Put(ctx context.Context, e types.Entry) error
	PutMany(ctx context.Context, entries []types.Entry) error
	DeleteMany(ctx context.Context, ids []string) error
	Clear(ctx context.Context) error
	Close() error
}

// StoreIOError reports a persistence failure. The in-memory view is left
// matching whatever the backend holds.
type StoreIOError struct {
	Op  string
	Err error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("knowledge store %s: %v", e.Op, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }

// OpenBackend opens the backend selected by cfg.
func OpenBackend(cfg types.StoreConfig) (Backend, error) {
	switch cfg.Backend {
	case types.StoreSQLite, "":
		return NewSQLiteBackend(cfg.Dir)
	case types.StoreBadger:
		return NewBadgerBackend(cfg.Dir, false)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
