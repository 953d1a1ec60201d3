package migration

import (
	"fmt"
)

// Plan is an ordered list of migrations resolved for one version transition,
// ready for execution in a single direction.
type Plan struct {
	Direction  Direction
	Migrations []*Migration
}

// Resolve produces the ordered list of migrations required to move a
// repository from the current version to the target version.
//
// Ascending transitions run the Migrate step of each migration with a
// version in (current, target], lowest first. Descending transitions run the
// Revert step of each migration with a version in (target, current],
// highest first. When current equals target the plan is empty.
//
// The provided migrations must be ordered by strictly increasing version,
// and must cover every single-step transition of the requested range.
func Resolve(migrations []*Migration, current, target int) (*Plan, error) {
	if current < 0 || target < 0 {
		return nil, fmt.Errorf("repository versions are non-negative, got current %d target %d", current, target)
	}

	byVersion := make(map[int]*Migration, len(migrations))
	last := 0
	for _, m := range migrations {
		if m.Version <= last {
			return nil, fmt.Errorf("migration versions must be strictly increasing, got %d after %d", m.Version, last)
		}
		last = m.Version
		byVersion[m.Version] = m
	}

	plan := &Plan{Direction: Up}
	switch {
	case target > current:
		for v := current + 1; v <= target; v++ {
			m, ok := byVersion[v]
			if !ok {
				return nil, fmt.Errorf("no migration to version %d", v)
			}
			plan.Migrations = append(plan.Migrations, m)
		}

	case target < current:
		plan.Direction = Down
		for v := current; v > target; v-- {
			m, ok := byVersion[v]
			if !ok {
				return nil, fmt.Errorf("no migration to version %d", v)
			}
			plan.Migrations = append(plan.Migrations, m)
		}
	}

	return plan, nil
}
