package simulator

import (
	"context"

	"eventsim/internal/domain/position"
	"eventsim/internal/metrics"
	"eventsim/pkg/logger"
)

// Sink receives the evaluation record of each closed position
type Sink struct {
	Name   string
	Record func(ctx context.Context, m position.Metrics) error
}

// MetricsRecorder builds a CloseHandler that derives the metrics record,
// observes it in Prometheus and hands it to every sink. A failing sink does not stop the others.
func MetricsRecorder(log *logger.Logger, sinks ...Sink) CloseHandler {
	log = log.With("component", "position_metrics")

	return func(ctx context.Context, p *position.Position) {
		m, err := p.Metrics()
		if err != nil {
			log.Errorw("cannot build metrics record", "event_id", p.EventID, "error", err)
			return
		}

		mfePct, _ := m.MFEPct.Float64()
		maePct, _ := m.MAEPct.Float64()
		metrics.PositionExcursionPct.WithLabelValues("mfe").Observe(mfePct)
		metrics.PositionExcursionPct.WithLabelValues("mae").Observe(maePct)
		metrics.PositionDuration.WithLabelValues(m.ExitReason.String()).Observe(m.Duration().Seconds())

		for _, sink := range sinks {
			if err := sink.Record(ctx, m); err != nil {
				log.Errorw("metrics sink failed", "sink", sink.Name, "event_id", m.EventID, "error", err)
			}
		}
	}
}
