package leveldb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"go.uber.org/zap"

	"github.com/kvrepo/kvrepo/kv"
)

// Kind is the backend kind stores of this package declare in a repository
// configuration.
const Kind = "leveldb"

// KVStore is a kv.Store backed by a leveldb database directory.
type KVStore struct {
	path   string
	db     *leveldb.DB
	logger *zap.Logger
}

var _ kv.Store = (*KVStore)(nil)

// NewKVStore returns an instance of KVStore with the database directory at
// the provided path.
func NewKVStore(logger *zap.Logger, path string) *KVStore {
	return &KVStore{
		path:   path,
		logger: logger,
	}
}

// Open creates the leveldb directory if it doesn't exist and opens it
// otherwise.
func (s *KVStore) Open(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("%w: unable to create directory %s: %w", kv.ErrStoreUnavailable, s.path, err)
	}

	db, err := leveldb.OpenFile(s.path, &opt.Options{})
	if err != nil {
		return fmt.Errorf("%w: unable to open leveldb %s: %w", kv.ErrStoreUnavailable, s.path, err)
	}
	s.db = db

	s.logger.Info("Resources opened", zap.String("path", s.path))
	return nil
}

// Close the connection to the leveldb database.
func (s *KVStore) Close() error {
	if s.db != nil {
		db := s.db
		s.db = nil
		return db.Close()
	}
	return nil
}

// Get retrieves the value at the provided key.
func (s *KVStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	if s.db == nil {
		return nil, kv.ErrStoreClosed
	}

	value, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, kv.ErrKeyNotFound
	}
	return value, err
}

// Put sets the value at the provided key.
func (s *KVStore) Put(ctx context.Context, key, value []byte) error {
	if s.db == nil {
		return kv.ErrStoreClosed
	}
	return s.db.Put(key, value, nil)
}

// Delete removes the provided key.
func (s *KVStore) Delete(ctx context.Context, key []byte) error {
	if s.db == nil {
		return kv.ErrStoreClosed
	}
	return s.db.Delete(key, nil)
}

// Iterate walks a snapshot of the database, so batches committed while
// iterating do not become visible to the iterator.
func (s *KVStore) Iterate(ctx context.Context) (kv.Iterator, error) {
	if s.db == nil {
		return nil, kv.ErrStoreClosed
	}

	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, err
	}

	return &snapshotIterator{
		snap: snap,
		itr:  snap.NewIterator(nil, nil),
	}, nil
}

// Batch stages mutations in a native leveldb write batch, applied atomically
// on Commit.
func (s *KVStore) Batch(ctx context.Context) (kv.Batch, error) {
	if s.db == nil {
		return nil, kv.ErrStoreClosed
	}

	return &batch{store: s, batch: new(leveldb.Batch)}, nil
}

// snapshotIterator wraps a goleveldb iterator pinned to a snapshot.
type snapshotIterator struct {
	snap *leveldb.Snapshot
	itr  iterator.Iterator
}

func (it *snapshotIterator) Next() bool    { return it.itr.Next() }
func (it *snapshotIterator) Key() []byte   { return it.itr.Key() }
func (it *snapshotIterator) Value() []byte { return it.itr.Value() }
func (it *snapshotIterator) Err() error    { return it.itr.Error() }

func (it *snapshotIterator) Close() error {
	it.itr.Release()
	it.snap.Release()
	return it.itr.Error()
}

// batch wraps a native leveldb write batch.
type batch struct {
	store    *KVStore
	batch    *leveldb.Batch
	resolved bool
}

func (b *batch) Put(key, value []byte) error {
	if b.resolved {
		return kv.ErrBatchResolved
	}
	b.batch.Put(key, value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	if b.resolved {
		return kv.ErrBatchResolved
	}
	b.batch.Delete(key)
	return nil
}

func (b *batch) Commit() error {
	if b.resolved {
		return kv.ErrBatchResolved
	}
	b.resolved = true

	if b.store.db == nil {
		return kv.ErrStoreClosed
	}
	return b.store.db.Write(b.batch, nil)
}

func (b *batch) Abort() {
	b.resolved = true
	b.batch.Reset()
}
