package leveldb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kvrepo/kvrepo/kv"
)

func newTestStore(t *testing.T) *KVStore {
	t.Helper()

	store := NewKVStore(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "test.leveldb"))
	require.NoError(t, store.Open(context.Background()))
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestKVStore_OpenUnavailable(t *testing.T) {
	// a regular file at the database path makes leveldb unopenable
	path := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0600))

	store := NewKVStore(zaptest.NewLogger(t), path)
	err := store.Open(context.Background())
	require.ErrorIs(t, err, kv.ErrStoreUnavailable)
}

func TestKVStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Get(ctx, []byte("missing"))
	require.ErrorIs(t, err, kv.ErrKeyNotFound)

	require.NoError(t, store.Put(ctx, []byte("k"), []byte("v")))

	got, err := store.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	require.NoError(t, store.Delete(ctx, []byte("k")))
	_, err = store.Get(ctx, []byte("k"))
	require.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestKVStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.leveldb")

	store := NewKVStore(zaptest.NewLogger(t), path)
	require.NoError(t, store.Open(ctx))
	require.NoError(t, store.Put(ctx, []byte("k"), []byte("v")))
	require.NoError(t, store.Close())

	reopened := NewKVStore(zaptest.NewLogger(t), path)
	require.NoError(t, reopened.Open(ctx))
	defer reopened.Close()

	got, err := reopened.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestKVStore_IterateObservesSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, []byte("a"), []byte("1")))
	require.NoError(t, store.Put(ctx, []byte("b"), []byte("2")))

	itr, err := store.Iterate(ctx)
	require.NoError(t, err)
	defer itr.Close()

	batch, err := store.Batch(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.Put([]byte("z"), []byte("26")))
	require.NoError(t, batch.Delete([]byte("b")))
	require.NoError(t, batch.Commit())

	// the snapshot pins the pre-batch view
	var keys []string
	for itr.Next() {
		keys = append(keys, string(itr.Key()))
	}
	require.NoError(t, itr.Err())
	require.Equal(t, []string{"a", "b"}, keys)

	_, err = store.Get(ctx, []byte("b"))
	require.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestKVStore_BatchAtomicity(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, []byte("old"), []byte("v")))

	batch, err := store.Batch(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.Delete([]byte("old")))
	require.NoError(t, batch.Put([]byte("new"), []byte("v")))

	_, err = store.Get(ctx, []byte("new"))
	require.ErrorIs(t, err, kv.ErrKeyNotFound)

	require.NoError(t, batch.Commit())
	require.ErrorIs(t, batch.Commit(), kv.ErrBatchResolved)

	_, err = store.Get(ctx, []byte("old"))
	require.ErrorIs(t, err, kv.ErrKeyNotFound)
	got, err := store.Get(ctx, []byte("new"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}
