package all

import (
	"bytes"
	"context"
	"fmt"

	"github.com/kvrepo/kvrepo/bolt"
	"github.com/kvrepo/kvrepo/kv"
	"github.com/kvrepo/kvrepo/migration"
)

var localPrefix = []byte("/local/")

// Migration0001_NamespaceLocalRecords moves every record of boltdb backed
// stores under the /local/ namespace, making room for replicated namespaces
// alongside them. The revert strips the prefix again.
var Migration0001_NamespaceLocalRecords = &migration.Migration{
	Version:     1,
	Description: "namespace local records",
	Backend:     bolt.Kind,
	Migrate:     namespaceLocalRecords,
	Revert:      flattenLocalRecords,
}

func namespaceLocalRecords(ctx context.Context, store migration.StoreInfo, handle kv.Store, report migration.ReportFunc) error {
	if store.Backend != bolt.Kind {
		report(fmt.Sprintf("%s did not need an upgrade", store.Name))
		return nil
	}

	report(fmt.Sprintf("Upgrading %s", store.Name))

	return kv.RewriteKeys(ctx, handle, func(key, value []byte) ([]kv.Operation, error) {
		namespaced := make([]byte, 0, len(localPrefix)+len(key))
		namespaced = append(namespaced, localPrefix...)
		namespaced = append(namespaced, key...)

		return []kv.Operation{
			{Type: kv.OpDelete, Key: key},
			{Type: kv.OpPut, Key: namespaced, Value: value},
		}, nil
	})
}

func flattenLocalRecords(ctx context.Context, store migration.StoreInfo, handle kv.Store, report migration.ReportFunc) error {
	if store.Backend != bolt.Kind {
		report(fmt.Sprintf("%s did not need a downgrade", store.Name))
		return nil
	}

	report(fmt.Sprintf("Downgrading %s", store.Name))

	return kv.RewriteKeys(ctx, handle, func(key, value []byte) ([]kv.Operation, error) {
		return []kv.Operation{
			{Type: kv.OpDelete, Key: key},
			{Type: kv.OpPut, Key: bytes.TrimPrefix(key, localPrefix), Value: value},
		}, nil
	})
}
