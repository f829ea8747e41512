package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"eventsim/internal/adapters/kafka"
	"eventsim/internal/domain/event"
	"eventsim/internal/domain/position"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

// Sender writes one keyed message to a topic. Implemented by *kafka.Producer.
type Sender interface {
	Publish(ctx context.Context, topic string, key string, payload interface{}) error
}

// AcceptedMessage announces an event that passed validation, dedup and the confidence gate
type AcceptedMessage struct {
	Envelope
	EventID uuid.UUID `json:"event_id"`
	event.Projection
	DetectorSource string    `json:"detector_source"`
	Entities       []string  `json:"entities"`
	DetectedAt     time.Time `json:"detected_at"`
}

// PositionMessage carries a position snapshot on open and on close
type PositionMessage struct {
	Envelope
	Position *position.Position `json:"position"`
}

// MetricsMessage carries the evaluation record of a closed position
type MetricsMessage struct {
	Envelope
	position.Metrics
}

// Publisher serializes domain events to JSON and sends them to Kafka, keyed by event ID
type Publisher struct {
	sender  Sender
	timeout time.Duration
	now     func() time.Time
	log     *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(sender Sender, log *logger.Logger) *Publisher {
	return &Publisher{
		sender:  sender,
		timeout: 5 * time.Second,
		now:     time.Now,
		log:     log.With("component", "event_publisher"),
	}
}

// PublishAccepted publishes the projection of an accepted event
func (p *Publisher) PublishAccepted(ctx context.Context, ev *event.Event) error {
	msg := AcceptedMessage{
		Envelope:       NewEnvelope(TypeEventAccepted, p.now()),
		EventID:        ev.ID,
		Projection:     ev.Project(),
		DetectorSource: SanitizeUTF8(ev.Source),
		Entities:       SanitizeAll(ev.Entities),
		DetectedAt:     ev.Timestamp,
	}
	return p.publish(ctx, kafka.TopicEventsAccepted, ev.ID, msg)
}

// PublishPositionMetrics publishes the evaluation record of a closed position
func (p *Publisher) PublishPositionMetrics(ctx context.Context, m position.Metrics) error {
	msg := MetricsMessage{
		Envelope: NewEnvelope(TypePositionMetrics, p.now()),
		Metrics:  m,
	}
	return p.publish(ctx, kafka.TopicPositionsMetrics, m.EventID, msg)
}

// PositionOpened publishes an opened position. Failures are logged, never returned.
func (p *Publisher) PositionOpened(ctx context.Context, pos *position.Position) {
	p.publishPosition(ctx, kafka.TopicPositionsOpened, TypePositionOpened, pos)
}

// PositionClosed publishes a closed position. Failures are logged, never returned.
func (p *Publisher) PositionClosed(ctx context.Context, pos *position.Position) {
	p.publishPosition(ctx, kafka.TopicPositionsClosed, TypePositionClosed, pos)
}

func (p *Publisher) publishPosition(ctx context.Context, topic, msgType string, pos *position.Position) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := PositionMessage{
		Envelope: NewEnvelope(msgType, p.now()),
		Position: pos,
	}
	if err := p.publish(ctx, topic, pos.EventID, msg); err != nil {
		p.log.Warnw("position message dropped", "event_id", pos.EventID, "type", msgType, "error", err)
	}
}

func (p *Publisher) publish(ctx context.Context, topic string, key uuid.UUID, msg interface{}) error {
	if err := p.sender.Publish(ctx, topic, key.String(), msg); err != nil {
		return errors.Wrapf(err, "publish %s", topic)
	}
	return nil
}
