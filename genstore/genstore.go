// Package genstore keeps a generation counter per cache key.
//
// The cache aspect uses generations to drop stale writes: a Set-plan miss
// snapshots the key's generation before the real method runs and the result is
// only stored if no Remove bumped the generation in the meantime.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
// Use LocalGenStore for in-process gens, or RedisGenStore when several
// processes share one distributed cache.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
