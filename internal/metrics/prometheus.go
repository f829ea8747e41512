package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventsim/pkg/errors"
)

var (
	// Pipeline metrics
	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsim_events_received_total",
			Help: "Total number of inbound payloads",
		},
		[]string{"transport", "result"}, // result: accepted|schema_error|error
	)

	EventTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsim_event_transitions_total",
			Help: "Lifecycle transitions by target state",
		},
		[]string{"state"},
	)

	EventsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsim_events_rejected_total",
			Help: "Rejected events by reason and source class",
		},
		[]string{"reason", "source_class"},
	)

	ConfirmationWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsim_confirmation_wait_seconds",
			Help:    "Time spent waiting for confirmation",
			Buckets: []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"mode", "outcome"},
	)

	// Simulator metrics
	PositionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsim_positions_opened_total",
			Help: "Simulated positions opened",
		},
		[]string{"symbol"},
	)

	PositionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsim_positions_closed_total",
			Help: "Simulated positions closed by exit reason",
		},
		[]string{"symbol", "exit_reason"},
	)

	PositionExcursionPct = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsim_position_excursion_pct",
			Help:    "MFE and MAE of closed positions as percent of entry",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 50},
		},
		[]string{"kind"}, // kind: mfe|mae
	)

	PositionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsim_position_duration_seconds",
			Help:    "Time between entry and exit",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
		},
		[]string{"exit_reason"},
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsim_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsim_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventsim_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsim_kafka_messages_total",
			Help: "Kafka messages by topic and direction",
		},
		[]string{"topic", "direction", "status"}, // direction: in|out
	)

	PriceFeedReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsim_price_feed_reconnects_total",
			Help: "Price feed websocket reconnects",
		},
	)
)

var registerOnce sync.Once

// Init registers all metrics with Prometheus. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EventsReceived,
			EventTransitions,
			EventsRejected,
			ConfirmationWait,
			PositionsOpened,
			PositionsClosed,
			PositionExcursionPct,
			PositionDuration,
			WorkerExecutions,
			WorkerDuration,
			WorkerLastRun,
			KafkaMessages,
			PriceFeedReconnects,
		)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordKafkaMessage records one consumed or produced message
func RecordKafkaMessage(topic, direction string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessages.WithLabelValues(topic, direction, status).Inc()
}

// RecordReceived records one inbound payload by transport (http|kafka)
func RecordReceived(transport string, err error) {
	result := "accepted"
	switch {
	case errors.Is(err, errors.ErrSchema):
		result = "schema_error"
	case err != nil:
		result = "error"
	}
	EventsReceived.WithLabelValues(transport, result).Inc()
}
