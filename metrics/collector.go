package metrics

// Collector wraps metrics and provides helper methods with pre-filled labels.
// A nil *Collector is valid and records nothing.
type Collector struct {
	instance string
}

// NewCollector creates a new Collector for the given orchestrator instance.
func NewCollector(instance string) *Collector {
	return &Collector{instance: instance}
}

// ObserveEngineCall records one engine call and the migrations it applied.
func (c *Collector) ObserveEngineCall(module, operation, outcome string, applied int, seconds float64) {
	if c == nil {
		return
	}
	EngineCallsTotal.WithLabelValues(c.instance, module, operation, outcome).Inc()
	EngineCallDuration.WithLabelValues(c.instance, module, operation).Observe(seconds)
	if applied > 0 {
		MigrationsAppliedTotal.WithLabelValues(c.instance, module).Add(float64(applied))
	}
}

// IncLockConflicts increments the lock conflicts counter.
func (c *Collector) IncLockConflicts() {
	if c == nil {
		return
	}
	LockConflictsTotal.WithLabelValues(c.instance).Inc()
}

// IncFleetTenants increments the fleet tenants counter for a result status.
func (c *Collector) IncFleetTenants(status string) {
	if c == nil {
		return
	}
	FleetTenantsTotal.WithLabelValues(c.instance, status).Inc()
}

// IncScheduleTransitions increments the transitions counter for the new status.
func (c *Collector) IncScheduleTransitions(status string) {
	if c == nil {
		return
	}
	ScheduleTransitionsTotal.WithLabelValues(c.instance, status).Inc()
}

// TenantStarted increments the in-flight tenants gauge.
func (c *Collector) TenantStarted() {
	if c == nil {
		return
	}
	InFlightTenants.WithLabelValues(c.instance).Inc()
}

// TenantFinished decrements the in-flight tenants gauge.
func (c *Collector) TenantFinished() {
	if c == nil {
		return
	}
	InFlightTenants.WithLabelValues(c.instance).Dec()
}

// ObserveFleetRunDuration records a fleet run duration observation.
func (c *Collector) ObserveFleetRunDuration(seconds float64) {
	if c == nil {
		return
	}
	FleetRunDuration.WithLabelValues(c.instance).Observe(seconds)
}
