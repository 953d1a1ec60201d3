package migration

import (
	"github.com/prometheus/client_golang/prometheus"
)

// driverMetrics instruments a Driver. Collectors are exposed through
// Driver.PrometheusCollectors so the caller decides which registry, if any,
// they end up in.
type driverMetrics struct {
	migrations *prometheus.CounterVec
	stores     *prometheus.CounterVec
}

func newDriverMetrics() *driverMetrics {
	const namespace, subsystem = "kvrepo", "migration"

	return &driverMetrics{
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "migrations_total",
			Help:      "Total number of migrations applied, by direction and status",
		}, []string{"direction", "status"}),
		stores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stores_total",
			Help:      "Total number of per-store step executions, by direction and status",
		}, []string{"direction", "status"}),
	}
}

// PrometheusCollectors returns all prom collectors associated with the driver.
func (d *Driver) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		d.metrics.migrations,
		d.metrics.stores,
	}
}
