// Package storage defines the abstract key/value contract this library
// persists all session, nonce, and auth-request state behind, plus memory
// and Redis implementations. The contract generalizes the ClientAuthStore
// interface found in the retrieval corpus's oauth sketch package (which is
// scoped narrowly to sessions and auth-request info, keyed by DID) into the
// generic set/get/delete/lock primitives this library's session manager,
// nonce manager, and DPoP key persistence all need.
//
// Implementations must allow concurrent access from multiple
// goroutines/processes without corrupting state; the memory implementation
// guards a map with a mutex, the Redis implementation relies on Redis's own
// atomicity guarantees (SETNX for locks).
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the requested key does not currently
// hold a value.
var ErrNotFound = errors.New("storage: key not found")

// ErrLockHeld is returned by AcquireLock when another holder currently owns
// the lock.
var ErrLockHeld = errors.New("storage: lock already held")

// Store is the abstract K/V interface every component in this library
// persists through. TTLs are time.Duration values; a TTL of zero means no
// expiry.
type Store interface {
	// Get returns the value for key, or ErrNotFound if absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// Set writes value for key with the given TTL (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether key currently holds an unexpired value.
	Exists(ctx context.Context, key string) (bool, error)

	// MultiGet returns the values present among keys. Missing keys are
	// simply absent from the result map; MultiGet itself does not error on
	// missing keys.
	MultiGet(ctx context.Context, keys []string) (map[string]string, error)
	// MultiSet writes every key in values, all with the same TTL, as
	// close to atomically as the backend supports.
	MultiSet(ctx context.Context, values map[string]string, ttl time.Duration) error

	// AcquireLock attempts to atomically claim key as a lock for ttl,
	// returning ErrLockHeld if another holder currently has it.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) error
	// ReleaseLock releases a lock previously claimed with AcquireLock.
	// Releasing an unheld lock is not an error.
	ReleaseLock(ctx context.Context, key string) error
}

// WithLock acquires the named lock, runs fn, and releases the lock on every
// exit path including panic or error, per the concurrency model's
// with_lock(key, ttl) { ... } contract.
func WithLock(ctx context.Context, store Store, key string, ttl time.Duration, fn func() error) error {
	if err := store.AcquireLock(ctx, key, ttl); err != nil {
		return err
	}
	defer store.ReleaseLock(ctx, key)
	return fn()
}
