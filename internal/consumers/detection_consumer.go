package consumers

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"eventsim/internal/adapters/kafka"
	"eventsim/internal/metrics"
	"eventsim/internal/services/pipeline"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

// Submitter accepts raw detection payloads. Implemented by *pipeline.Engine.
type Submitter interface {
	Submit(ctx context.Context, raw []byte) (*pipeline.Result, error)
}

// DetectionConsumer feeds detector payloads from Kafka into the pipeline
type DetectionConsumer struct {
	reader    Reader
	submitter Submitter
	log       *logger.Logger
}

// NewDetectionConsumer creates a new detection consumer
func NewDetectionConsumer(reader Reader, submitter Submitter, log *logger.Logger) *DetectionConsumer {
	return &DetectionConsumer{
		reader:    reader,
		submitter: submitter,
		log:       log.With("component", "detection_consumer"),
	}
}

// Start consumes until ctx is cancelled
func (c *DetectionConsumer) Start(ctx context.Context) error {
	return run(ctx, "detections", kafka.TopicEventsDetected, c.reader, c.handleMessage, c.log)
}

// handleMessage submits one payload. Schema errors are the producer's fault:
// they are logged and dropped so the offset still advances.
func (c *DetectionConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	res, err := c.submitter.Submit(ctx, msg.Value)
	metrics.RecordReceived("kafka", err)

	if err != nil {
		var se *errors.SchemaError
		if errors.As(err, &se) {
			c.log.Warnw("Dropping malformed detection",
				"field", se.Field,
				"reason", se.Reason,
				"offset", msg.Offset,
			)
			return nil
		}
		return errors.Wrap(err, "submit detection")
	}

	c.log.Debugw("Detection submitted",
		"event_id", res.EventID,
		"state", res.State,
		"reject_reason", res.RejectReason,
		"pending", res.Pending,
	)
	return nil
}
