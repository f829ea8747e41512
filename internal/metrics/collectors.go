package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StateCounter reports how many events the lifecycle arena holds per state
type StateCounter interface {
	CountByState() map[string]int
}

// OpenCounter reports the number of open simulated positions
type OpenCounter interface {
	OpenCount() int
}

// ArenaCollector exposes in-memory arena sizes at scrape time
type ArenaCollector struct {
	events    StateCounter
	positions OpenCounter

	eventsByState *prometheus.Desc
	openPositions *prometheus.Desc
}

// NewArenaCollector creates a collector over the lifecycle arena and simulator side table
func NewArenaCollector(events StateCounter, positions OpenCounter) *ArenaCollector {
	return &ArenaCollector{
		events:    events,
		positions: positions,

		eventsByState: prometheus.NewDesc(
			"eventsim_events_in_arena",
			"Events currently held in memory by lifecycle state",
			[]string{"state"}, nil,
		),
		openPositions: prometheus.NewDesc(
			"eventsim_positions_open",
			"Simulated positions currently open",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *ArenaCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.eventsByState
	ch <- c.openPositions
}

// Collect implements prometheus.Collector
func (c *ArenaCollector) Collect(ch chan<- prometheus.Metric) {
	for state, n := range c.events.CountByState() {
		ch <- prometheus.MustNewConstMetric(c.eventsByState, prometheus.GaugeValue, float64(n), state)
	}
	ch <- prometheus.MustNewConstMetric(c.openPositions, prometheus.GaugeValue, float64(c.positions.OpenCount()))
}
