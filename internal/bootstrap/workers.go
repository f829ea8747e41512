package bootstrap

import (
	"eventsim/internal/workers"
	"eventsim/internal/workers/simulation"
)

// provideWorkers registers the simulation workers:
//   - position_monitor feeds the latest price to every open position
//   - event_expiry ends overdue events and prunes terminal state
func provideWorkers(c *Container) *workers.Scheduler {
	cfg := c.Config
	scheduler := workers.NewScheduler(c.Log)

	scheduler.RegisterWorker(simulation.NewPositionMonitor(
		c.Services.Simulator,
		c.Adapters.Prices,
		cfg.Workers.PositionMonitorInterval,
		c.Log,
	))

	scheduler.RegisterWorker(simulation.NewEventExpiry(
		c.Services.Lifecycle,
		c.Services.Simulator,
		c.Services.Deduplicator,
		cfg.Lifecycle.DedupRetention,
		cfg.Workers.EventExpiryInterval,
		c.Log,
	))

	c.Log.Infow("✓ Workers registered", "count", len(scheduler.GetWorkers()))
	return scheduler
}
