package kv

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is the error returned when the key requested is not found.
	ErrKeyNotFound = errors.New("key not found")
	// ErrStoreUnavailable is returned (wrapped) when the underlying storage
	// for a store cannot be opened.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreClosed is returned when an operation is attempted against a
	// store which has not been opened or has already been closed.
	ErrStoreClosed = errors.New("store is closed")
	// ErrBatchResolved is returned when a batch is mutated or committed
	// after it has already been committed or aborted.
	ErrBatchResolved = errors.New("batch already resolved")
)

// Store is a named key value store within a repository. It is modeled after
// the boltdb database struct, with the difference that each store owns its
// own backing database rather than a bucket within a shared one.
//
// A Store must be opened before use and closed exactly once per open.
// Close is best effort; callers are expected to log, not propagate, its error.
type Store interface {
	// Open establishes access to the underlying storage. Failures wrap
	// ErrStoreUnavailable.
	Open(ctx context.Context) error
	// Close releases the underlying storage.
	Close() error

	// Get retrieves the value at the provided key, returning ErrKeyNotFound
	// when absent.
	Get(ctx context.Context, key []byte) ([]byte, error)
	// Put sets the value at the provided key.
	Put(ctx context.Context, key, value []byte) error
	// Delete removes the provided key.
	Delete(ctx context.Context, key []byte) error

	// Iterate returns a forward-only iterator over every record in the
	// store in its native key ordering. Keys and values are exposed as the
	// exact raw bytes held by the backend, bypassing any higher level
	// (de)serialization. The iterator observes a snapshot of the store taken
	// when Iterate is called: batches committed while iterating do not
	// become visible to it.
	Iterate(ctx context.Context) (Iterator, error)

	// Batch begins a group of mutations which Commit applies as a single
	// atomic unit.
	Batch(ctx context.Context) (Batch, error)
}

// Iterator is a non-restartable cursor over the raw records of a store.
// Keys and values returned are only valid until the next call to Next.
type Iterator interface {
	// Next advances to the next record, returning false when the sequence
	// is exhausted or an error occurred.
	Next() bool
	Key() []byte
	Value() []byte
	// Err reports the first error encountered while iterating.
	Err() error
	Close() error
}

// Batch is a group of pending mutations. None of the mutations are visible
// until Commit returns nil; a failed Commit or an Abort applies none of them.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	// Commit durably applies every staged mutation, all or nothing.
	Commit() error
	// Abort discards the staged mutations. Aborting a resolved batch is a
	// no-op.
	Abort()
}
