package bootstrap

import (
	"context"
	"sync"

	chclient "eventsim/internal/adapters/clickhouse"
	"eventsim/internal/adapters/config"
	"eventsim/internal/adapters/kafka"
	pgclient "eventsim/internal/adapters/postgres"
	"eventsim/internal/adapters/pricefeed"
	redisclient "eventsim/internal/adapters/redis"
	"eventsim/internal/adapters/telegram"
	"eventsim/internal/api"
	"eventsim/internal/api/health"
	"eventsim/internal/consumers"
	"eventsim/internal/domain/event"
	"eventsim/internal/domain/position"
	"eventsim/internal/events"
	chrepo "eventsim/internal/repository/clickhouse"
	"eventsim/internal/services/confirmation"
	"eventsim/internal/services/dedup"
	"eventsim/internal/services/lifecycle"
	"eventsim/internal/services/pipeline"
	"eventsim/internal/services/simulator"
	"eventsim/internal/workers"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

// Container holds all application dependencies and their lifecycle.
// Components are organized in initialization order.
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure layer, every store is optional
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Adapters    *Adapters
	Services    *Services
	Application *Application
	Background  *Background

	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups the journals. Nil fields mean the store is disabled.
type Repositories struct {
	Event           event.Repository
	Position        position.Repository
	PositionMetrics *chrepo.PositionMetricsRepository
}

// Adapters groups external adapters
type Adapters struct {
	KafkaProducer        *kafka.Producer
	DetectionReader      *kafka.Consumer
	ConfirmationReader   *kafka.Consumer
	Publisher            *events.Publisher
	Prices               *pricefeed.Cache
	PriceFeed            *pricefeed.BinanceFeed
	TelegramBot          *telegram.Bot
	ConfirmationPrompter *telegram.Prompter
}

// Services groups the event pipeline
type Services struct {
	Lifecycle     *lifecycle.Manager
	Deduplicator  *dedup.Deduplicator
	Modes         *confirmation.ModeSource
	Confirmations *confirmation.Registry
	Simulator     *simulator.Simulator
	Engine        *pipeline.Engine
}

// Application groups application layer components
type Application struct {
	HTTPServer    *api.Server
	HealthHandler *health.Handler
}

// Background groups all background processing components
type Background struct {
	WorkerScheduler      *workers.Scheduler
	DetectionConsumer    *consumers.DetectionConsumer
	ConfirmationConsumer *consumers.ConfirmationConsumer
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Services:    &Services{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order.
// Panics on any initialization error (fail-fast at startup).
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitApplication()
	c.MustInitBackground()
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.Repos.PositionMetrics != nil {
		c.Repos.PositionMetrics.Start(c.Context)
	}

	c.goRun("price_feed", func(ctx context.Context) error {
		if c.Adapters.PriceFeed == nil {
			return nil
		}
		return c.Adapters.PriceFeed.Run(ctx)
	})

	if c.Adapters.TelegramBot != nil {
		c.goRun("telegram_bot", func(ctx context.Context) error {
			return c.Adapters.TelegramBot.Run(ctx, c.Adapters.ConfirmationPrompter.HandleCallback)
		})
	}

	c.startConsumers()

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorw("HTTP server failed", "error", err)
			c.Cancel() // fatal HTTP error triggers shutdown
		}
	}()

	c.Log.Infow("✓ All systems operational",
		"confirmation_mode", c.Services.Modes.Get(),
		"postgres", c.PG != nil,
		"clickhouse", c.CH != nil,
		"redis", c.Redis != nil,
		"kafka", c.Adapters.KafkaProducer != nil,
		"telegram", c.Adapters.TelegramBot != nil,
	)
	return nil
}

// startConsumers starts the Kafka consumers in background goroutines
func (c *Container) startConsumers() {
	if c.Background.DetectionConsumer != nil {
		c.goRun("detection_consumer", c.Background.DetectionConsumer.Start)
	}
	if c.Background.ConfirmationConsumer != nil {
		c.goRun("confirmation_consumer", c.Background.ConfirmationConsumer.Start)
	}
}

func (c *Container) goRun(name string, run func(ctx context.Context) error) {
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := run(c.Context); err != nil && c.Context.Err() == nil {
			c.Log.Errorw(name+" stopped", "error", err)
		}
	}()
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")
	c.Lifecycle.Shutdown(c)
}
