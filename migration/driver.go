package migration

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kvrepo/kvrepo/kv"
)

// ProgressFn receives coarse whole-run progress. percent is in 0..100 and is
// non-decreasing across a single run; message is free text. It is fire and
// forget and must not panic.
type ProgressFn func(percent int, message string)

// OpenFunc constructs and opens the store with the given logical name.
// Failures to access the underlying storage wrap kv.ErrStoreUnavailable.
type OpenFunc func(ctx context.Context, name string) (kv.Store, error)

// Driver executes one migration direction across every qualifying store of
// a repository. It exclusively owns each store handle for the duration of
// one step invocation: it opens the handle, passes it to the step and closes
// it on every exit path.
type Driver struct {
	logger   *zap.Logger
	stores   []StoreInfo
	open     OpenFunc
	progress ProgressFn

	metrics *driverMetrics
}

// NewDriver constructs and configures a new Driver. The store list is
// processed in the order given; progress may be nil.
func NewDriver(logger *zap.Logger, stores []StoreInfo, open OpenFunc, progress ProgressFn) *Driver {
	if progress == nil {
		progress = func(int, string) {}
	}

	return &Driver{
		logger:   logger,
		stores:   stores,
		open:     open,
		progress: progress,
		metrics:  newDriverMetrics(),
	}
}

// Run applies one direction of a single migration across every configured
// store whose backend kind the migration targets, in configuration order.
//
// Stores are processed strictly sequentially. The handle of the store being
// worked on is closed regardless of the step outcome, but a step failure
// halts the run: remaining stores are not attempted and the error is
// returned to the caller unchanged. No retries are performed.
func (d *Driver) Run(ctx context.Context, m *Migration, dir Direction) error {
	var targets []StoreInfo
	for _, store := range d.stores {
		if m.Eligible(store.Backend) {
			targets = append(targets, store)
		}
	}

	d.logger.Debug(
		"Executing repository migration",
		zap.Int("version", m.Version),
		zap.String("migration", m.Description),
		zap.String("direction", dir.String()),
		zap.Int("store_count", len(targets)),
	)

	d.progress(0, fmt.Sprintf("Migrating %d dbs", len(targets)))

	completed := 0
	for _, target := range targets {
		store, err := d.open(ctx, target.Name)
		if err != nil {
			d.metrics.stores.WithLabelValues(dir.String(), "error").Inc()
			return fmt.Errorf("opening store %q: %w", target.Name, err)
		}

		err = d.runStore(ctx, m, dir, target, store, completed, len(targets))
		completed++
		if err != nil {
			d.metrics.stores.WithLabelValues(dir.String(), "error").Inc()
			return err
		}
		d.metrics.stores.WithLabelValues(dir.String(), "ok").Inc()
	}

	d.progress(100, fmt.Sprintf("Migrated %d dbs", len(targets)))
	return nil
}

// runStore invokes the step for one store, guaranteeing the handle is closed
// on every exit path. Close errors are logged, never propagated: a failed
// close must not mask the step outcome.
func (d *Driver) runStore(ctx context.Context, m *Migration, dir Direction, target StoreInfo, store kv.Store, completed, total int) error {
	defer func() {
		if err := store.Close(); err != nil {
			d.logger.Warn(
				"Closing store failed",
				zap.String("store", target.Name),
				zap.Error(err),
			)
		}
	}()

	// Intra-store messages are passed through as text, but the reported
	// percentage reflects whole-store completion counting only.
	pct := percent(completed, total)
	report := func(message string) {
		d.progress(pct, message)
	}

	return m.step(dir)(ctx, target, store, report)
}

// Apply runs every migration of a plan in order, persisting the repository
// version through setVersion after each step so that the persisted version
// always moves by exactly one per applied migration.
func (d *Driver) Apply(ctx context.Context, plan *Plan, setVersion func(version int) error) error {
	if len(plan.Migrations) == 0 {
		return nil
	}

	switch plan.Direction {
	case Up:
		d.logger.Info("Bringing up repository migrations", zap.Int("migration_count", len(plan.Migrations)))
	case Down:
		d.logger.Info("Tearing down repository migrations", zap.Int("migration_count", len(plan.Migrations)))
	}

	for _, m := range plan.Migrations {
		if err := d.Run(ctx, m, plan.Direction); err != nil {
			d.metrics.migrations.WithLabelValues(plan.Direction.String(), "error").Inc()
			return fmt.Errorf("%s: %w", plan.Direction, err)
		}

		version := m.Version
		if plan.Direction == Down {
			version = m.Version - 1
		}
		if err := setVersion(version); err != nil {
			d.metrics.migrations.WithLabelValues(plan.Direction.String(), "error").Inc()
			return fmt.Errorf("recording repository version %d: %w", version, err)
		}

		d.metrics.migrations.WithLabelValues(plan.Direction.String(), "ok").Inc()
		d.logger.Debug(
			"Repository migration completed",
			zap.Int("version", m.Version),
			zap.String("migration", m.Description),
			zap.String("direction", plan.Direction.String()),
		)
	}

	return nil
}

// percent flattens per-store completion onto a coarse whole-run percentage.
func percent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}
