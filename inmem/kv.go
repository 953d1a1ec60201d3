package inmem

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/kvrepo/kvrepo/kv"
)

// Kind is the backend kind stores of this package declare in a repository
// configuration.
const Kind = "memory"

// KVStore is an in memory btree backed kv.Store. It is primarily useful for
// tests and for repositories that do not need persistence across processes.
// Records survive Close and a later Open within the same process.
type KVStore struct {
	mu   sync.RWMutex
	tree *btree.BTree
	open bool
}

var _ kv.Store = (*KVStore)(nil)

// NewKVStore creates an instance of a KVStore.
func NewKVStore() *KVStore {
	return &KVStore{}
}

// Open initializes the in memory tree.
func (s *KVStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		s.tree = btree.New(2)
	}
	s.open = true
	return nil
}

// Close marks the store closed. The tree is retained so a later Open within
// the same process sees the same records.
func (s *KVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// Get retrieves the value at the provided key.
func (s *KVStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, kv.ErrStoreClosed
	}

	item := s.tree.Get(&pair{key: key})
	if item == nil {
		return nil, kv.ErrKeyNotFound
	}
	return item.(*pair).value, nil
}

// Put sets the value at the provided key.
func (s *KVStore) Put(ctx context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return kv.ErrStoreClosed
	}

	s.tree.ReplaceOrInsert(newPair(key, value))
	return nil
}

// Delete removes the provided key.
func (s *KVStore) Delete(ctx context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return kv.ErrStoreClosed
	}

	s.tree.Delete(&pair{key: key})
	return nil
}

// Iterate returns an iterator over a clone of the current tree, so batches
// committed while iterating are not observed.
func (s *KVStore) Iterate(ctx context.Context) (kv.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, kv.ErrStoreClosed
	}

	return &iterator{tree: s.tree.Clone()}, nil
}

// Batch begins a batch of mutations staged in memory until Commit.
func (s *KVStore) Batch(ctx context.Context) (kv.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, kv.ErrStoreClosed
	}

	return &batch{store: s}, nil
}

// pair is a btree.Item holding one record.
type pair struct {
	key   []byte
	value []byte
}

func newPair(key, value []byte) *pair {
	return &pair{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	}
}

func (p *pair) Less(than btree.Item) bool {
	return bytes.Compare(p.key, than.(*pair).key) < 0
}

// iterator walks a cloned tree in ascending key order.
type iterator struct {
	tree    *btree.BTree
	cur     *pair
	started bool
}

func (it *iterator) Next() bool {
	if it.tree == nil {
		return false
	}

	var next *pair
	if !it.started {
		it.started = true
		it.tree.Ascend(func(item btree.Item) bool {
			next = item.(*pair)
			return false
		})
	} else if it.cur != nil {
		it.tree.AscendGreaterOrEqual(it.cur, func(item btree.Item) bool {
			p := item.(*pair)
			if bytes.Equal(p.key, it.cur.key) {
				return true
			}
			next = p
			return false
		})
	}

	it.cur = next
	return next != nil
}

func (it *iterator) Key() []byte {
	if it.cur == nil {
		return nil
	}
	return it.cur.key
}

func (it *iterator) Value() []byte {
	if it.cur == nil {
		return nil
	}
	return it.cur.value
}

func (it *iterator) Err() error { return nil }

func (it *iterator) Close() error {
	it.tree = nil
	it.cur = nil
	return nil
}

// batch stages operations and applies them under the store lock on Commit.
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

	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if !b.store.open {
		return kv.ErrStoreClosed
	}

	for _, op := range b.ops {
		switch op.Type {
		case kv.OpPut:
			b.store.tree.ReplaceOrInsert(&pair{key: op.Key, value: op.Value})
		case kv.OpDelete:
			b.store.tree.Delete(&pair{key: op.Key})
		}
	}
	return nil
}

func (b *batch) Abort() {
	b.resolved = true
	b.ops = nil
}
