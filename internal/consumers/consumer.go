package consumers

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"eventsim/internal/metrics"
	"eventsim/pkg/logger"
)

// Reader is the part of kafka.Consumer the consumers need
type Reader interface {
	ReadMessageWithShutdownCheck(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// handlerTimeout bounds the processing of one message so shutdown is not held up
const handlerTimeout = 5 * time.Second

// run reads messages until ctx is cancelled. Each message is handled on a context detached
// from ctx so that a message read before shutdown is still processed to completion.
func run(ctx context.Context, name, topic string, reader Reader, handle func(context.Context, kafkago.Message) error, log *logger.Logger) error {
	log.Infow("Starting consumer", "consumer", name, "topic", topic)

	defer func() {
		if err := reader.Close(); err != nil {
			log.Errorw("Failed to close consumer", "consumer", name, "error", err)
		} else {
			log.Infow("Consumer closed", "consumer", name)
		}
	}()

	for {
		msg, err := reader.ReadMessageWithShutdownCheck(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Debugw("Failed to read message", "consumer", name, "error", err)
			continue
		}

		processCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handlerTimeout)
		err = handle(processCtx, msg)
		cancel()

		metrics.RecordKafkaMessage(topic, "in", err)
		if err != nil {
			log.Errorw("Failed to handle message",
				"consumer", name,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
