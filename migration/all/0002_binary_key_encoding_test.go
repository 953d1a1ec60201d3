package all

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kvrepo/kvrepo/bolt"
	"github.com/kvrepo/kvrepo/kv"
	"github.com/kvrepo/kvrepo/leveldb"
	"github.com/kvrepo/kvrepo/migration"
)

func newLevelStore(t *testing.T) kv.Store {
	t.Helper()

	store := leveldb.NewKVStore(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "store.leveldb"))
	require.NoError(t, store.Open(context.Background()))
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func newBoltStore(t *testing.T) kv.Store {
	t.Helper()

	store := bolt.NewKVStore(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "store.bolt"), bolt.WithNoSync)
	require.NoError(t, store.Open(context.Background()))
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func seedStore(t *testing.T, store kv.Store, records map[string][]byte) {
	t.Helper()
	for k, v := range records {
		require.NoError(t, store.Put(context.Background(), []byte(k), v))
	}
}

func dumpStore(t *testing.T, store kv.Store) map[string][]byte {
	t.Helper()

	itr, err := store.Iterate(context.Background())
	require.NoError(t, err)
	defer itr.Close()

	records := map[string][]byte{}
	for itr.Next() {
		records[string(itr.Key())] = append([]byte(nil), itr.Value()...)
	}
	require.NoError(t, itr.Err())
	return records
}

func discardReport(string) {}

func TestTextKeyCodecRoundTrip(t *testing.T) {
	raws := [][]byte{
		{},
		[]byte("alpha"),
		[]byte("with space"),
		[]byte(`with"quote`),
		[]byte(`with\backslash`),
		[]byte("ключ"),
		{0x00, 0x01, 0x02},
		{0xff, 0xfe},
		[]byte("line\nbreak"),
	}

	for _, raw := range raws {
		text := encodeTextKey(raw)
		back, err := decodeTextKey(text)
		require.NoError(t, err)
		require.Equal(t, raw, back, "codec must be exact for % x", raw)
	}
}

func TestBinaryKeyEncoding_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newLevelStore(t)
	info := migration.StoreInfo{Name: "keys", Backend: leveldb.Kind}

	raws := map[string][]byte{
		"alpha":          []byte("1"),
		"beta/gamma":     []byte("2"),
		"with\nnewline":  []byte("3"),
		"\x00\x01binary": []byte("4"),
		`quoted"key`:     []byte("5"),
	}
	for raw, value := range raws {
		require.NoError(t, store.Put(ctx, encodeTextKey([]byte(raw)), value))
	}
	original := dumpStore(t, store)

	require.NoError(t, Migration0002_BinaryKeyEncoding.Migrate(ctx, info, store, discardReport))

	// every key is now the raw byte form
	migrated := dumpStore(t, store)
	require.Len(t, migrated, len(raws))
	for raw, value := range raws {
		require.Equal(t, value, migrated[raw])
	}

	require.NoError(t, Migration0002_BinaryKeyEncoding.Revert(ctx, info, store, discardReport))

	if diff := cmp.Diff(original, dumpStore(t, store)); diff != "" {
		t.Fatalf("migrate then revert changed the store (-want +got):\n%s", diff)
	}
}

// A store holding {"alpha": [1,2,3]} under a text key holds the raw UTF-8
// bytes of "alpha" after the upgrade and is restored exactly by the revert.
func TestBinaryKeyEncoding_AlphaScenario(t *testing.T) {
	ctx := context.Background()
	store := newLevelStore(t)
	info := migration.StoreInfo{Name: "keys", Backend: leveldb.Kind}

	value := []byte{1, 2, 3}
	require.NoError(t, store.Put(ctx, encodeTextKey([]byte("alpha")), value))

	require.NoError(t, Migration0002_BinaryKeyEncoding.Migrate(ctx, info, store, discardReport))
	require.Equal(t, map[string][]byte{"alpha": value}, dumpStore(t, store))

	require.NoError(t, Migration0002_BinaryKeyEncoding.Revert(ctx, info, store, discardReport))
	require.Equal(t, map[string][]byte{"alpha": value}, dumpStore(t, store))
}

func TestBinaryKeyEncoding_SkipsOtherBackendKinds(t *testing.T) {
	ctx := context.Background()
	store := newBoltStore(t)
	info := migration.StoreInfo{Name: "root", Backend: bolt.Kind}

	seedStore(t, store, map[string][]byte{"alpha": []byte("1")})
	original := dumpStore(t, store)

	var messages []string
	report := func(message string) { messages = append(messages, message) }

	require.NoError(t, Migration0002_BinaryKeyEncoding.Migrate(ctx, info, store, report))
	require.NoError(t, Migration0002_BinaryKeyEncoding.Revert(ctx, info, store, report))

	require.Equal(t, []string{
		"root did not need an upgrade",
		"root did not need a downgrade",
	}, messages)

	if diff := cmp.Diff(original, dumpStore(t, store)); diff != "" {
		t.Fatalf("no-op migration changed the store (-want +got):\n%s", diff)
	}
}

// When the transform fails on record K, records before K (in key order) stay
// converted, K keeps its failed state untouched and records after K are
// never touched.
func TestBinaryKeyEncoding_UpgradeFailureIsAtomicPerRecord(t *testing.T) {
	ctx := context.Background()
	store := newLevelStore(t)
	info := migration.StoreInfo{Name: "keys", Backend: leveldb.Kind}

	// keys iterate in byte order: a\n, b\t, bad"x, z\\
	seedStore(t, store, map[string][]byte{
		`a\n`:   []byte("1"),
		`b\t`:   []byte("2"),
		`bad"x`: []byte("3"), // raw quote: not valid text encoding
		`z\\`:   []byte("4"),
	})

	err := Migration0002_BinaryKeyEncoding.Migrate(ctx, info, store, discardReport)
	require.ErrorIs(t, err, kv.ErrRewriteAborted)
	require.ErrorIs(t, err, kv.ErrTransform)

	require.Equal(t, map[string][]byte{
		"a\n":   []byte("1"), // converted
		"b\t":   []byte("2"), // converted
		`bad"x`: []byte("3"), // untouched by its own failed operations
		`z\\`:   []byte("4"), // never reached
	}, dumpStore(t, store))
}
