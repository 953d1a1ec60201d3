// package all
//
// This package is the canonical location for every migration shipped for the
// kvrepo repository format.
//
// The array all.Migrations contains the ordered list of migration
// descriptors which drives the serial set of operations required to move a
// repository between any two versions. The list is constructed explicitly at
// init time and passed to migration.Resolve by the caller; there is no
// hidden global registry.
//
// This package is arranged like so:
//
//	doc.go - this piece of documentation.
//	all.go - definition of the Migrations array referencing each of the named migrations in the numbered migration files (below).
//	000X_migration_name.go (example) - N files containing the specific implementations of each migration enumerated in all.go.
//	...
//
// Managing this list of files and all.go can be fiddly. The kvrepo cli has a
// command `create` which automatically creates a new migration in the
// expected location and appends it appropriately into the all.go Migrations
// array.
package all
