package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/kvrepo/kvrepo/kv"
)

// Kind is the backend kind stores of this package declare in a repository
// configuration.
const Kind = "boltdb"

// dataBucket holds every record of the store. Each store owns its own
// boltdb file, so a single bucket suffices.
var dataBucket = []byte("datav1")

// KVStore is a kv.Store backed by boltdb.
type KVStore struct {
	path   string
	db     *bolt.DB
	logger *zap.Logger
	noSync bool
}

var _ kv.Store = (*KVStore)(nil)

// KVOption is a functional option for the KVStore struct.
type KVOption func(*KVStore)

// WithNoSync WARNING: this is useful for tests only
// this skips fsyncing on every commit to improve
// write performance in exchange for no guarantees
// that the db will persist.
func WithNoSync(s *KVStore) {
	s.noSync = true
}

// NewKVStore returns an instance of KVStore with the file at
// the provided path.
func NewKVStore(logger *zap.Logger, path string, opts ...KVOption) *KVStore {
	store := &KVStore{
		path:   path,
		logger: logger,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Open creates the boltdb file if it doesn't exist and opens it otherwise.
func (s *KVStore) Open(ctx context.Context) error {
	// Ensure the required directory structure exists.
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("%w: unable to create directory %s: %w", kv.ErrStoreUnavailable, s.path, err)
	}

	if _, err := os.Stat(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %w", kv.ErrStoreUnavailable, err)
	}

	// Open database file.
	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("%w: unable to open boltdb file %s: %w", kv.ErrStoreUnavailable, s.path, err)
	}
	db.NoSync = s.noSync

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	}); err != nil {
		db.Close()
		return fmt.Errorf("%w: initializing boltdb file %s: %w", kv.ErrStoreUnavailable, s.path, err)
	}
	s.db = db

	s.logger.Info("Resources opened", zap.String("path", s.path))
	return nil
}

// Close the connection to the bolt database.
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

	var value []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dataBucket).Get(key)
		if v == nil {
			return kv.ErrKeyNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	}); err != nil {
		return nil, err
	}
	return value, nil
}

// Put sets the value at the provided key.
func (s *KVStore) Put(ctx context.Context, key, value []byte) error {
	if s.db == nil {
		return kv.ErrStoreClosed
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dataBucket).Put(key, value)
	})
}

// Delete removes the provided key.
func (s *KVStore) Delete(ctx context.Context, key []byte) error {
	if s.db == nil {
		return kv.ErrStoreClosed
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dataBucket).Delete(key)
	})
}

// Iterate copies every record out of a short-lived read transaction and
// walks the copy. Materializing the snapshot up front means no bbolt
// transaction stays open while the caller commits batches between calls to
// Next: a read transaction held across commits pins the mmap and the
// freelist, and an update that must grow the file past the mapped region
// blocks forever waiting for the remap.
func (s *KVStore) Iterate(ctx context.Context) (kv.Iterator, error) {
	if s.db == nil {
		return nil, kv.ErrStoreClosed
	}

	var pairs []pair
	if err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(dataBucket).ForEach(func(k, v []byte) error {
			pairs = append(pairs, pair{
				key:   append([]byte(nil), k...),
				value: append([]byte(nil), v...),
			})
			return nil
		})
	}); err != nil {
		return nil, err
	}

	return &iterator{pairs: pairs}, nil
}

// Batch stages mutations in memory and applies them in a single update
// transaction on Commit.
func (s *KVStore) Batch(ctx context.Context) (kv.Batch, error) {
	if s.db == nil {
		return nil, kv.ErrStoreClosed
	}

	return &batch{store: s}, nil
}

type pair struct {
	key   []byte
	value []byte
}

// iterator walks a copy of the records taken when Iterate was called.
type iterator struct {
	pairs []pair
	key   []byte
	value []byte
}

func (it *iterator) Next() bool {
	if len(it.pairs) == 0 {
		it.key, it.value = nil, nil
		return false
	}

	it.key, it.value = it.pairs[0].key, it.pairs[0].value
	it.pairs = it.pairs[1:]
	return true
}

func (it *iterator) Key() []byte   { return it.key }
func (it *iterator) Value() []byte { return it.value }
func (it *iterator) Err() error    { return nil }

func (it *iterator) Close() error {
	it.pairs = nil
	return nil
}

// batch stages operations and applies them in one bolt update transaction.
type batch struct {
	store    *KVStore
	ops      []kv.Operation
	resolved bool
}

func (b *batch) Put(key, value []byte) error {
	if b.resolved {
		return kv.ErrBatchResolved
	}
	b.ops = append(b.ops, kv.Operation{
		Type:  kv.OpPut,
		Key:   append([]byte(nil), key...),
		Value: append([]byte(nil), value...),
	})
	return nil
}

func (b *batch) Delete(key []byte) error {
	if b.resolved {
		return kv.ErrBatchResolved
	}
	b.ops = append(b.ops, kv.Operation{
		Type: kv.OpDelete,
		Key:  append([]byte(nil), key...),
	})
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

	return b.store.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(dataBucket)
		for _, op := range b.ops {
			var err error
			switch op.Type {
			case kv.OpPut:
				err = bkt.Put(op.Key, op.Value)
			case kv.OpDelete:
				err = bkt.Delete(op.Key)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *batch) Abort() {
	b.resolved = true
	b.ops = nil
}
