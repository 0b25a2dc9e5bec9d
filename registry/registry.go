// Package registry persists the set of mailing list subscribers.
//
// The registry guarantees at-most-one membership per address: identity is
// the normalized (case-folded, whitespace-trimmed) address, and Add/Remove
// are idempotent, reporting the outcome instead of failing on duplicates.
// Every mutation is written through to the backing store before it returns;
// there is no in-memory state that can diverge from disk.
//
// Two backends are provided: SQLite for single-node deployments and
// Postgres for shared ones. Both are selected through config.StorageConfig.
package registry

import (
	"context"
	"fmt"

	"github.com/migadu/ezlist/config"
)

// AddResult reports the outcome of an Add operation.
type AddResult int

const (
	Added AddResult = iota
	AlreadyPresent
)

func (r AddResult) String() string {
	if r == Added {
		return "added"
	}
	return "already present"
}

// RemoveResult reports the outcome of a Remove operation.
type RemoveResult int

const (
	Removed RemoveResult = iota
	NotPresent
)

func (r RemoveResult) String() string {
	if r == Removed {
		return "removed"
	}
	return "not present"
}

// Store is the subscriber registry contract. Implementations normalize
// addresses before any comparison or write.
type Store interface {
	// Contains reports whether the address is a subscriber.
	Contains(ctx context.Context, address string) (bool, error)
	// Add subscribes the address. Adding an existing subscriber is not an
	// error; the result reports which case occurred.
	Add(ctx context.Context, address string) (AddResult, error)
	// Remove unsubscribes the address. Removing an unknown address is not
	// an error; the result reports which case occurred.
	Remove(ctx context.Context, address string) (RemoveResult, error)
	// List returns a snapshot of all subscribers in insertion order.
	List(ctx context.Context) ([]string, error)
	// Count returns the number of subscribers.
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Open constructs the registry backend selected by the configuration.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLite.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
