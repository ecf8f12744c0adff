package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MigrationsAppliedTotal tracks the total number of migrations applied.
var MigrationsAppliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "migration_orchestrator_migrations_applied_total",
		Help: "Total migrations applied",
	},
	[]string{"instance", "module"},
)

// EngineCallsTotal tracks engine Apply and Revert calls by outcome.
var EngineCallsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "migration_orchestrator_engine_calls_total",
		Help: "Total migration engine calls",
	},
	[]string{"instance", "module", "operation", "outcome"},
)

// LockConflictsTotal tracks operations rejected because the tenant was locked.
var LockConflictsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "migration_orchestrator_lock_conflicts_total",
		Help: "Total operations rejected by a held tenant lock",
	},
	[]string{"instance"},
)

// FleetTenantsTotal tracks per-tenant results of fleet-wide runs.
var FleetTenantsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "migration_orchestrator_fleet_tenants_total",
		Help: "Total tenants processed by fleet-wide runs",
	},
	[]string{"instance", "status"},
)

// ScheduleTransitionsTotal tracks scheduled migration status transitions.
var ScheduleTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "migration_orchestrator_schedule_transitions_total",
		Help: "Total scheduled migration status transitions",
	},
	[]string{"instance", "status"},
)

// InFlightTenants tracks the current number of tenants being migrated.
var InFlightTenants = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "migration_orchestrator_in_flight_tenants",
		Help: "Current tenants holding a migration lease",
	},
	[]string{"instance"},
)

// EngineCallDuration tracks the latency of engine Apply and Revert calls.
var EngineCallDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "migration_orchestrator_engine_call_duration_seconds",
		Help:    "Migration engine call latency",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	},
	[]string{"instance", "module", "operation"},
)

// FleetRunDuration tracks the duration of fleet-wide runs.
var FleetRunDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "migration_orchestrator_fleet_run_duration_seconds",
		Help:    "Fleet-wide migration run duration",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	},
	[]string{"instance"},
)
