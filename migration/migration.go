package migration

import (
	"context"

	"github.com/kvrepo/kvrepo/kv"
)

// Direction is a type for describing which way a migration is applied.
type Direction int

const (
	// Up applies the forward transformation of a migration.
	Up Direction = iota
	// Down applies the backward transformation of a migration.
	Down
)

// String returns a string representation for a migration direction.
func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// StoreInfo identifies one configured store by logical name and by the
// backend kind that constructs it. The backend kind is declared at
// configuration time; it is never discovered by inspecting a live handle.
type StoreInfo struct {
	Name    string
	Backend string
}

// ReportFunc receives human readable progress messages emitted by a step
// while it works on a single store.
type ReportFunc func(message string)

// StepFunc applies one direction of a migration to a single store. The
// handle is open when the step is invoked and is closed by the driver after
// the step returns; steps must not retain it.
type StepFunc func(ctx context.Context, store StoreInfo, handle kv.Store, report ReportFunc) error

// Migration is an immutable descriptor of a single reversible repository
// migration. Migrations are constructed once at process start (see the
// migration/all package) and never mutated.
type Migration struct {
	// Version is the repository version this migration upgrades to. Its
	// Revert step returns the repository to Version-1.
	Version     int
	Description string
	// Backend restricts the migration to stores of one backend kind. Stores
	// of any other kind are skipped as successful no-ops. Empty matches
	// every store.
	Backend string

	Migrate StepFunc
	Revert  StepFunc
}

// Eligible reports whether a store of the given backend kind participates
// in this migration.
func (m *Migration) Eligible(backend string) bool {
	return m.Backend == "" || m.Backend == backend
}

// step returns the StepFunc for the requested direction.
func (m *Migration) step(d Direction) StepFunc {
	if d == Down {
		return m.Revert
	}
	return m.Migrate
}
