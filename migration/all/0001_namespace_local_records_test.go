package all

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/kvrepo/kvrepo/bolt"
	"github.com/kvrepo/kvrepo/leveldb"
	"github.com/kvrepo/kvrepo/migration"
)

func TestNamespaceLocalRecords_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newBoltStore(t)
	info := migration.StoreInfo{Name: "root", Backend: bolt.Kind}

	seedStore(t, store, map[string][]byte{
		"config":  []byte("{}"),
		"datakey": []byte("1"),
	})
	original := dumpStore(t, store)

	require.NoError(t, Migration0001_NamespaceLocalRecords.Migrate(ctx, info, store, discardReport))

	require.Equal(t, map[string][]byte{
		"/local/config":  []byte("{}"),
		"/local/datakey": []byte("1"),
	}, dumpStore(t, store))

	require.NoError(t, Migration0001_NamespaceLocalRecords.Revert(ctx, info, store, discardReport))

	if diff := cmp.Diff(original, dumpStore(t, store)); diff != "" {
		t.Fatalf("migrate then revert changed the store (-want +got):\n%s", diff)
	}
}

func TestNamespaceLocalRecords_SkipsOtherBackendKinds(t *testing.T) {
	ctx := context.Background()
	store := newLevelStore(t)
	info := migration.StoreInfo{Name: "blocks", Backend: leveldb.Kind}

	seedStore(t, store, map[string][]byte{"k": []byte("v")})

	var messages []string
	report := func(message string) { messages = append(messages, message) }

	require.NoError(t, Migration0001_NamespaceLocalRecords.Migrate(ctx, info, store, report))
	require.Equal(t, []string{"blocks did not need an upgrade"}, messages)

	require.Equal(t, map[string][]byte{"k": []byte("v")}, dumpStore(t, store))
}
