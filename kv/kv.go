// Package kv abstracts the key-value backend shared by all server
// instances. Sessions, secondary lookup mappings, the active-session
// registry, and computed-result caches all live behind this interface so
// that any instance can serve any session.
package kv

import (
	"context"
	"time"
)

// Store is the contract every backend must satisfy. Read operations fail
// closed: a backend error surfaces as a miss, never as a panic into the
// connection-handling path.
type Store interface {
	// Get returns the value for key, or ok=false if missing or the
	// backend is unreachable
	Get(ctx context.Context, key string) (value string, ok bool)

	// SetEX stores value under key with a time-to-live
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores value under key with a time-to-live only if the key
	// is absent, atomically; claimed reports whether the write won
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (claimed bool, err error)

	// Del removes the given keys; missing keys are not an error
	Del(ctx context.Context, keys ...string) error

	// SAdd adds a member to a set; adding an existing member is a no-op
	SAdd(ctx context.Context, key, member string) error

	// SRem removes a member from a set; removing a missing member is a
	// no-op
	SRem(ctx context.Context, key, member string) error

	// SMembers returns all members of a set, empty if missing
	SMembers(ctx context.Context, key string) ([]string, error)
}
