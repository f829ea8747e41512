package consumers

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"eventsim/internal/adapters/kafka"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

// Confirmer resolves pending MANUAL confirmations. Implemented by *confirmation.Registry.
type Confirmer interface {
	Confirm(eventID uuid.UUID) error
}

// ConfirmationMessage is the body of an events.confirmations message
type ConfirmationMessage struct {
	EventID uuid.UUID `json:"event_id"`
}

// ConfirmationConsumer applies operator confirmations arriving over Kafka
type ConfirmationConsumer struct {
	reader    Reader
	confirmer Confirmer
	log       *logger.Logger
}

// NewConfirmationConsumer creates a new confirmation consumer
func NewConfirmationConsumer(reader Reader, confirmer Confirmer, log *logger.Logger) *ConfirmationConsumer {
	return &ConfirmationConsumer{
		reader:    reader,
		confirmer: confirmer,
		log:       log.With("component", "confirmation_consumer"),
	}
}

// Start consumes until ctx is cancelled
func (c *ConfirmationConsumer) Start(ctx context.Context) error {
	return run(ctx, "confirmations", kafka.TopicConfirmations, c.reader, c.handleMessage, c.log)
}

// handleMessage confirms one event. A confirmation nobody waits for is logged and dropped:
// it arrived after the wait timed out or for an event that never needed one.
func (c *ConfirmationConsumer) handleMessage(_ context.Context, msg kafkago.Message) error {
	var body ConfirmationMessage
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		return errors.Wrap(err, "unmarshal confirmation")
	}
	if body.EventID == uuid.Nil {
		return errors.Wrap(errors.ErrInvalidInput, "confirmation without event_id")
	}

	if err := c.confirmer.Confirm(body.EventID); err != nil {
		if errors.Is(err, errors.ErrNoPendingConfirmation) {
			c.log.Infow("Late or unexpected confirmation", "event_id", body.EventID)
			return nil
		}
		return errors.Wrapf(err, "confirm event %s", body.EventID)
	}

	c.log.Infow("Event confirmed via kafka", "event_id", body.EventID)
	return nil
}
