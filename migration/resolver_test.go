package migration_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvrepo/kvrepo/migration"
)

func testMigrations(versions ...int) []*migration.Migration {
	ms := make([]*migration.Migration, 0, len(versions))
	for _, v := range versions {
		ms = append(ms, &migration.Migration{Version: v})
	}
	return ms
}

func planVersions(plan *migration.Plan) []int {
	versions := make([]int, 0, len(plan.Migrations))
	for _, m := range plan.Migrations {
		versions = append(versions, m.Version)
	}
	return versions
}

func TestResolve_Up(t *testing.T) {
	plan, err := migration.Resolve(testMigrations(1, 2, 3, 4), 1, 3)
	require.NoError(t, err)
	require.Equal(t, migration.Up, plan.Direction)
	require.Equal(t, []int{2, 3}, planVersions(plan))
}

func TestResolve_Down(t *testing.T) {
	plan, err := migration.Resolve(testMigrations(1, 2, 3, 4), 4, 1)
	require.NoError(t, err)
	require.Equal(t, migration.Down, plan.Direction)
	require.Equal(t, []int{4, 3, 2}, planVersions(plan))
}

func TestResolve_AlreadyAtTarget(t *testing.T) {
	plan, err := migration.Resolve(testMigrations(1, 2), 2, 2)
	require.NoError(t, err)
	require.Empty(t, plan.Migrations)
}

func TestResolve_FromVersionZero(t *testing.T) {
	plan, err := migration.Resolve(testMigrations(1, 2), 0, 2)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, planVersions(plan))
}

func TestResolve_MissingStep(t *testing.T) {
	_, err := migration.Resolve(testMigrations(1, 3), 0, 3)
	require.ErrorContains(t, err, "no migration to version 2")
}

func TestResolve_NonMonotonicRegistry(t *testing.T) {
	_, err := migration.Resolve(testMigrations(2, 1), 0, 2)
	require.ErrorContains(t, err, "strictly increasing")
}

func TestResolve_NegativeVersion(t *testing.T) {
	_, err := migration.Resolve(testMigrations(1), 0, -1)
	require.Error(t, err)
}
