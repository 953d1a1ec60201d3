package all

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kvrepo/kvrepo/kv"
	"github.com/kvrepo/kvrepo/leveldb"
	"github.com/kvrepo/kvrepo/migration"
)

// Migration0002_BinaryKeyEncoding converts the keys of leveldb backed stores
// between their legacy escaped text representation and raw binary bytes.
//
// Legacy repositories stored every key in quoted-string escaped form so that
// all keys were printable UTF-8 text. The canonical binary form is the
// unescaped raw bytes; for a key that is already printable text, such as
// "alpha", the two forms are byte-identical. The codec is exact in both
// directions, so migrating and then reverting leaves the key space
// untouched. Values are carried through unmodified.
var Migration0002_BinaryKeyEncoding = &migration.Migration{
	Version:     2,
	Description: "binary key encoding",
	Backend:     leveldb.Kind,
	Migrate:     upgradeKeyEncoding,
	Revert:      downgradeKeyEncoding,
}

func upgradeKeyEncoding(ctx context.Context, store migration.StoreInfo, handle kv.Store, report migration.ReportFunc) error {
	if store.Backend != leveldb.Kind {
		report(fmt.Sprintf("%s did not need an upgrade", store.Name))
		return nil
	}

	report(fmt.Sprintf("Upgrading %s", store.Name))

	// TODO: detect keys already in raw binary form before converting; after
	// a mid-rewrite failure, re-running the upgrade unescapes already
	// converted keys a second time.
	return kv.RewriteKeys(ctx, handle, func(key, value []byte) ([]kv.Operation, error) {
		raw, err := decodeTextKey(key)
		if err != nil {
			return nil, err
		}

		return []kv.Operation{
			{Type: kv.OpDelete, Key: key},
			{Type: kv.OpPut, Key: raw, Value: value},
		}, nil
	})
}

func downgradeKeyEncoding(ctx context.Context, store migration.StoreInfo, handle kv.Store, report migration.ReportFunc) error {
	if store.Backend != leveldb.Kind {
		report(fmt.Sprintf("%s did not need a downgrade", store.Name))
		return nil
	}

	report(fmt.Sprintf("Downgrading %s", store.Name))

	return kv.RewriteKeys(ctx, handle, func(key, value []byte) ([]kv.Operation, error) {
		return []kv.Operation{
			{Type: kv.OpDelete, Key: key},
			{Type: kv.OpPut, Key: encodeTextKey(key), Value: value},
		}, nil
	})
}

// encodeTextKey returns the escaped text form of raw key bytes. It never
// fails: any byte sequence has a printable escaped representation.
func encodeTextKey(raw []byte) []byte {
	quoted := strconv.Quote(string(raw))
	return []byte(quoted[1 : len(quoted)-1])
}

// decodeTextKey returns the raw bytes a text encoded key stands for. It
// fails when the key is not well formed escaped text.
func decodeTextKey(text []byte) ([]byte, error) {
	raw, err := strconv.Unquote(`"` + string(text) + `"`)
	if err != nil {
		return nil, fmt.Errorf("key %q is not valid text encoded: %w", text, err)
	}
	return []byte(raw), nil
}
