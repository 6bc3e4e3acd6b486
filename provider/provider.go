// Package provider defines the storage abstractions behind the cache aspect.
//
// Two kinds of backends exist:
//   - Store: an in-process object store. Values are kept as-is, so a hit hands
//     back the very value the intercepted method returned.
//   - Provider: a byte store (local or remote). Values are serialized by a
//     codec before Set and decoded after Get.
//
// Implementations MUST be safe for concurrent use; the cache adds no locking.
package provider

import (
	"context"
	"time"
)

// Store is an in-process object store with per-entry TTLs.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) (any, bool, error)

	// Set stores value with the given TTL.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value any, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Missing keys are not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Provider is a minimal byte store with TTLs.
// Must be byte-for-byte transparent: Get must return exactly the []byte
// previously passed to Set for the same key. Adapters that need their own
// framing (see provider/bigcache) must strip it before returning.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort). Missing keys are not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
