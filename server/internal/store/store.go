package store

import (
	"context"
	"fmt"

	"github.com/livefeed/livefeed/pkg/types"
	"github.com/livefeed/livefeed/server/internal/config"
)

// Range bounds a query by timestamp. A nil bound is not applied.
// Start is inclusive, Stop is exclusive.
type Range struct {
	Start *int64
	Stop  *int64
}

// Contains reports whether ts falls inside r.
func (r Range) Contains(ts int64) bool {
	if r.Start != nil && ts < *r.Start {
		return false
	}
	if r.Stop != nil && ts >= *r.Stop {
		return false
	}
	return true
}

// Store is the record store contract.
//
// Errors returned by any method indicate a storage failure. There is no
// degraded mode: callers treat them as fatal.
type Store interface {
	// Insert stores a new record with a freshly assigned id and returns it.
	Insert(ctx context.Context, timestamp int64, body string) (types.Record, error)

	// DeleteRandom removes one record chosen uniformly at random and returns
	// it. ok is false when the store is empty.
	DeleteRandom(ctx context.Context) (rec types.Record, ok bool, err error)

	// MutateRandom replaces the body of one record chosen uniformly at random.
	// ok is false when the store is empty.
	MutateRandom(ctx context.Context, body string) (m types.Mutation, ok bool, err error)

	// Query returns every record inside r ordered by timestamp, then id.
	Query(ctx context.Context, r Range) ([]types.Record, error)

	// Count returns the number of records currently held.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Open builds the backend selected by cfg. seed drives random selection;
// zero picks a random seed.
func Open(cfg config.StoreConfig, seed int64) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemory(seed), nil
	case config.BackendSQLite:
		return OpenSQLite(cfg.SQLiteDSN, seed)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
