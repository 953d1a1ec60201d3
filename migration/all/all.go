package all

import (
	"github.com/kvrepo/kvrepo/migration"
)

// Migrations contains all the migrations required for the entire history of
// the kvrepo repository format. A repository at version N has had the first
// N migrations of this list applied.
var Migrations = []*migration.Migration{
	// namespace local records
	Migration0001_NamespaceLocalRecords,
	// binary key encoding
	Migration0002_BinaryKeyEncoding,
	// {{ do_not_edit . }}
}
