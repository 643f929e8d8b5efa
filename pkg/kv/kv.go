package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by stores that have already been closed.
var ErrClosed = errors.New("kv: store closed")

// Store defines the interface for a key-value store.
// Implementations of this interface can be swapped out,
// allowing for different storage backends (e.g., Redis, in-memory, Raft-replicated).
//
// Besides plain string values a Store keeps unordered sets of strings,
// which are addressed by the same key space as the values.
type Store interface {
	// Get retrieves the value associated with the given key.
	// Returns the value and true if the key exists, or empty string and false if not.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a key-value pair, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes the given keys, whether they hold values or sets.
	// Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Keys returns every key matching a glob pattern ('*' and '?').
	Keys(ctx context.Context, pattern string) ([]string, error)

	// SAdd adds members to the set stored at key, creating it if needed.
	SAdd(ctx context.Context, key string, members ...string) error

	// SMembers returns the members of the set stored at key.
	// A missing key yields an empty slice. Order is backend specific.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Close releases the connection or file held by the store.
	Close() error
}
