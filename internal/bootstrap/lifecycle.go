package bootstrap

import (
	"context"
	"sync"
	"time"

	"eventsim/internal/adapters/kafka"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 60 * time.Second,
	}
}

// Shutdown stops components in dependency order:
//  1. no new submissions (HTTP, Kafka, price feed, Telegram)
//  2. pending confirmations end as aborted
//  3. workers finish their current tick
//  4. buffered metrics and messages drain
//  5. error tracker and logs flush
//  6. database connections close last
func (l *Lifecycle) Shutdown(c *Container) {
	log := c.Log
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	log.Info("[1/8] Stopping HTTP server...")
	if c.Application.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := c.Application.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
		httpCancel()
	}

	// Cancelling the root context stops the price feed, the Telegram poller
	// and the consumer loops. Closing readers unblocks pending fetches.
	log.Info("[2/8] Stopping ingest...")
	c.Cancel()
	l.closeKafkaConsumers(map[string]*kafka.Consumer{
		"detections":    c.Adapters.DetectionReader,
		"confirmations": c.Adapters.ConfirmationReader,
	}, log)
	l.waitForGoroutines(c.WG, 10*time.Second, log)

	log.Info("[3/8] Aborting pending confirmations...")
	if c.Services.Engine != nil {
		engineCtx, engineCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		if err := c.Services.Engine.Shutdown(engineCtx); err != nil {
			log.Errorw("Engine shutdown failed", "error", err)
		} else {
			log.Info("✓ Pending confirmations aborted")
		}
		engineCancel()
	}

	log.Info("[4/8] Stopping background workers...")
	if c.Background.WorkerScheduler != nil {
		if err := c.Background.WorkerScheduler.Stop(); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		} else {
			log.Info("✓ Workers stopped")
		}
	}

	log.Info("[5/8] Flushing position metrics...")
	if c.Repos.PositionMetrics != nil {
		if err := c.Repos.PositionMetrics.Stop(shutdownCtx); err != nil {
			log.Errorw("Position metrics flush failed", "error", err)
		}
	}

	log.Info("[6/8] Closing Kafka producer...")
	if c.Adapters.KafkaProducer != nil {
		if err := c.Adapters.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	log.Info("[7/8] Flushing error tracker and logs...")
	l.flushErrorTracker(shutdownCtx, c.ErrorTracker, log)
	_ = logger.Sync()

	log.Info("[8/8] Closing database connections...")
	l.closeDatabases(c, log)

	log.Info("✅ Graceful shutdown complete")
}

// closeKafkaConsumers closes all Kafka consumers
func (l *Lifecycle) closeKafkaConsumers(consumers map[string]*kafka.Consumer, log *logger.Logger) {
	for name, consumer := range consumers {
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				log.Warnw("Kafka consumer close failed", "consumer", name, "error", err)
			}
		}
	}
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(c *Container, log *logger.Logger) {
	var dbErrors []error

	if c.PG != nil {
		if err := c.PG.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "postgres"))
		}
	}
	if c.CH != nil {
		if err := c.CH.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "clickhouse"))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "redis"))
		}
	}

	if len(dbErrors) > 0 {
		log.Errorw("Database close errors", "errors", dbErrors)
	} else {
		log.Info("✓ Database connections closed")
	}
}
