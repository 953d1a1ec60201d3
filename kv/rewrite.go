package kv

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRewriteAborted wraps every failure surfaced by RewriteKeys.
	ErrRewriteAborted = errors.New("rewrite aborted")
	// ErrTransform wraps a failure raised by the per-record transform.
	ErrTransform = errors.New("transform failed")
	// ErrAbortedByCaller is synthesized when the underlying batch mechanism
	// aborts without supplying an explicit cause.
	ErrAbortedByCaller = errors.New("aborted by caller")
)

// OpType discriminates the kinds of pending mutation a transform can emit.
type OpType int

const (
	// OpDelete removes Key from the store.
	OpDelete OpType = iota
	// OpPut sets Key to Value in the store.
	OpPut
)

// Operation is a single pending mutation against a store produced by a
// rewrite transform.
type Operation struct {
	Type  OpType
	Key   []byte
	Value []byte
}

// TransformFn computes the operations required to rewrite a single record.
// It must be pure and must not perform I/O. For a same-record rekeying the
// expected emission order is delete-old-key then put-new-key, so that no
// batch ever leaves both or neither form behind.
type TransformFn func(key, value []byte) ([]Operation, error)

// RewriteKeys rewrites every record of an open store using transform.
//
// The store is iterated exactly once in raw mode. For each record the
// operations returned by transform are applied in the order given as one
// atomic batch, and the next record is not read until that batch has
// committed. The atomicity unit is a single record's operation list, not the
// whole store: records committed before a failure remain committed.
//
// Any failure aborts the in-flight batch and returns an error wrapping
// ErrRewriteAborted. Transform failures additionally wrap ErrTransform.
func RewriteKeys(ctx context.Context, store Store, transform TransformFn) error {
	itr, err := store.Iterate(ctx)
	if err != nil {
		return abortErr(err)
	}
	defer itr.Close()

	for itr.Next() {
		ops, err := transform(itr.Key(), itr.Value())
		if err != nil {
			return abortErr(fmt.Errorf("%w: %w", ErrTransform, err))
		}

		if err := applyBatch(ctx, store, ops); err != nil {
			return abortErr(err)
		}
	}
	if err := itr.Err(); err != nil {
		return abortErr(err)
	}

	return nil
}

// applyBatch applies one record's operations as a single atomic unit.
func applyBatch(ctx context.Context, store Store, ops []Operation) error {
	batch, err := store.Batch(ctx)
	if err != nil {
		return err
	}

	for _, op := range ops {
		switch op.Type {
		case OpDelete:
			err = batch.Delete(op.Key)
		case OpPut:
			err = batch.Put(op.Key, op.Value)
		default:
			err = fmt.Errorf("unknown operation type %d", op.Type)
		}
		if err != nil {
			batch.Abort()
			return err
		}
	}

	return batch.Commit()
}

func abortErr(cause error) error {
	if cause == nil {
		cause = ErrAbortedByCaller
	}
	return fmt.Errorf("%w: %w", ErrRewriteAborted, cause)
}
