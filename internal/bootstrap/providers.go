package bootstrap

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	chclient "eventsim/internal/adapters/clickhouse"
	"eventsim/internal/adapters/config"
	errnoop "eventsim/internal/adapters/errors/noop"
	"eventsim/internal/adapters/errors/sentry"
	"eventsim/internal/adapters/kafka"
	pgclient "eventsim/internal/adapters/postgres"
	"eventsim/internal/adapters/pricefeed"
	redisclient "eventsim/internal/adapters/redis"
	"eventsim/internal/adapters/telegram"
	"eventsim/internal/api"
	"eventsim/internal/api/health"
	"eventsim/internal/api/rest"
	"eventsim/internal/consumers"
	"eventsim/internal/domain/event"
	"eventsim/internal/domain/position"
	"eventsim/internal/domain/price"
	"eventsim/internal/events"
	"eventsim/internal/metrics"
	chrepo "eventsim/internal/repository/clickhouse"
	pgrepo "eventsim/internal/repository/postgres"
	"eventsim/internal/services/confirmation"
	"eventsim/internal/services/dedup"
	"eventsim/internal/services/gate"
	"eventsim/internal/services/lifecycle"
	"eventsim/internal/services/pipeline"
	"eventsim/internal/services/simulator"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
	"eventsim/pkg/templates"
)

const startupTimeout = 30 * time.Second

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects the configured stores. Unconfigured stores stay nil.
func (c *Container) MustInitInfrastructure() {
	ctx, cancel := context.WithTimeout(c.Context, startupTimeout)
	defer cancel()

	var err error

	if c.Config.Postgres.Enabled() {
		c.Log.Info("Connecting to PostgreSQL...")
		c.PG, err = pgclient.NewClient(ctx, c.Config.Postgres)
		if err != nil {
			c.Log.Fatalf("failed to connect postgres: %v", err)
		}
		if err := pgrepo.EnsureSchema(ctx, c.PG.DB()); err != nil {
			c.Log.Fatalf("failed to apply postgres schema: %v", err)
		}
		c.Log.Info("✓ PostgreSQL connected")
	}

	if c.Config.ClickHouse.Enabled() {
		c.Log.Info("Connecting to ClickHouse...")
		c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Info("✓ ClickHouse connected")
	}

	if c.Config.Redis.Enabled() {
		c.Log.Info("Connecting to Redis...")
		c.Redis, err = redisclient.NewClient(ctx, c.Config.Redis)
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Log.Info("✓ Redis connected")
	}
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories initializes the journals backed by the connected stores
func (c *Container) MustInitRepositories() {
	if c.PG != nil {
		c.Repos.Event = pgrepo.NewEventRepository(c.PG.DB())
		c.Repos.Position = pgrepo.NewPositionRepository(c.PG.DB())
	}

	if c.CH != nil {
		c.Repos.PositionMetrics = chrepo.NewPositionMetricsRepository(c.CH.Conn(), chrepo.PositionMetricsTable, c.Log)

		ctx, cancel := context.WithTimeout(c.Context, startupTimeout)
		defer cancel()
		if err := c.Repos.PositionMetrics.EnsureTable(ctx); err != nil {
			c.Log.Fatalf("failed to create position metrics table: %v", err)
		}
	}

	c.Log.Infow("✓ Repositories initialized",
		"event_journal", c.Repos.Event != nil,
		"position_metrics", c.Repos.PositionMetrics != nil,
	)
}

// ========================================
// Phase 4: External Adapters
// ========================================

// MustInitAdapters initializes Kafka, the price feed and the Telegram bot
func (c *Container) MustInitAdapters() {
	cfg := c.Config

	if cfg.Kafka.Enabled() {
		c.Adapters.KafkaProducer = kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers}, c.Log)
		c.Adapters.Publisher = events.NewPublisher(c.Adapters.KafkaProducer, c.Log)
		c.Adapters.DetectionReader = provideKafkaConsumer(cfg, kafka.TopicEventsDetected, c.Log)
		c.Adapters.ConfirmationReader = provideKafkaConsumer(cfg, kafka.TopicConfirmations, c.Log)
		c.Log.Infow("✓ Kafka initialized", "brokers", cfg.Kafka.Brokers)
	}

	c.Adapters.Prices = pricefeed.NewCache(cfg.PriceFeed.MaxAge)
	if cfg.PriceFeed.URL != "" && len(cfg.PriceFeed.Symbols) > 0 {
		c.Adapters.PriceFeed = pricefeed.NewBinanceFeed(cfg.PriceFeed.URL, cfg.PriceFeed.Symbols, c.Adapters.Prices, c.Log)
	}

	if cfg.Telegram.Enabled() {
		bot, err := telegram.NewBot(telegram.Config{
			Token:  cfg.Telegram.BotToken,
			ChatID: cfg.Telegram.ChatID,
			Debug:  cfg.Telegram.Debug,
		}, c.Log)
		if err != nil {
			// operators can still confirm over HTTP and Kafka
			c.Log.Errorw("Telegram bot unavailable, continuing without it", "error", err)
		} else {
			c.Adapters.TelegramBot = bot
		}
	}
}

// ========================================
// Phase 5: Event Pipeline
// ========================================

// MustInitServices wires lifecycle, dedup, confirmation, simulator and the engine
func (c *Container) MustInitServices() {
	cfg := c.Config
	lc := cfg.Lifecycle

	var recorder lifecycle.Recorder
	if c.Repos.Event != nil {
		recorder = c.Repos.Event
	}
	c.Services.Lifecycle = lifecycle.NewManager(lifecycle.Config{
		MaxLifetime: lc.MaxEventLifetime,
		Retention:   lc.DedupRetention,
	}, recorder, c.Log)

	c.Services.Deduplicator = dedup.New(provideDedupStore(c), c.Log)

	mode, err := confirmation.ParseMode(lc.ConfirmationMode)
	if err != nil {
		c.Log.Fatalf("invalid confirmation mode: %v", err)
	}
	c.Services.Modes = confirmation.NewModeSource(mode)
	c.Services.Confirmations = confirmation.NewRegistry(c.Log)
	if c.Adapters.TelegramBot != nil {
		c.Adapters.ConfirmationPrompter = providePrompter(c)
		c.Services.Confirmations.AddNotifier(c.Adapters.ConfirmationPrompter)
	}

	c.Services.Simulator = simulator.New(c.Repos.Position, c.Log)
	c.wireSimulatorHooks()

	deps := pipeline.Deps{
		Validator:    event.MustValidator(),
		Lifecycle:    c.Services.Lifecycle,
		Deduplicator: c.Services.Deduplicator,
		Gate:         gate.NewConfidenceGate(lc.FirstClassSources),
		Confirmation: confirmation.NewGate(c.Services.Confirmations, lc.ConfirmationTimeout, lc.ConfirmationPollInterval, c.Log),
		Modes:        c.Services.Modes,
		Simulator:    c.Services.Simulator,
		Prices:       c.Adapters.Prices,
		Symbols:      price.NewSymbolResolver(cfg.Simulator.SymbolQuote, cfg.PriceFeed.Symbols),
	}
	if c.Adapters.Publisher != nil {
		deps.Publisher = c.Adapters.Publisher
	}
	c.Services.Engine = pipeline.NewEngine(deps, pipeline.Config{
		TakeProfitPct: decimal.NewFromFloat(cfg.Simulator.TakeProfitPct),
		StopLossPct:   decimal.NewFromFloat(cfg.Simulator.StopLossPct),
		MaxDuration:   cfg.Simulator.MaxDuration,
	}, c.Log)

	metrics.Init()
	prometheus.MustRegister(metrics.NewArenaCollector(c.Services.Lifecycle, c.Services.Simulator))

	c.Log.Infow("✓ Event pipeline initialized",
		"confirmation_mode", mode,
		"max_event_lifetime", lc.MaxEventLifetime,
		"dedup_retention", lc.DedupRetention,
		"first_class_sources", lc.FirstClassSources,
	)
}

// wireSimulatorHooks connects position open/close to the event lifecycle and the metric sinks
func (c *Container) wireSimulatorHooks() {
	sim := c.Services.Simulator
	lm := c.Services.Lifecycle

	sim.OnClose(func(ctx context.Context, p *position.Position) {
		if err := lm.Expire(ctx, p.EventID); err != nil && !errors.Is(err, errors.ErrNotFound) {
			c.Log.Warnw("Failed to expire event after position close", "event_id", p.EventID, "error", err)
		}
	})

	var sinks []simulator.Sink
	if c.Adapters.Publisher != nil {
		sinks = append(sinks, simulator.Sink{Name: "kafka", Record: c.Adapters.Publisher.PublishPositionMetrics})
		sim.OnOpen(c.Adapters.Publisher.PositionOpened)
		sim.OnClose(c.Adapters.Publisher.PositionClosed)
	}
	if c.Repos.PositionMetrics != nil {
		sinks = append(sinks, simulator.Sink{Name: "clickhouse", Record: c.Repos.PositionMetrics.Insert})
	}
	sim.OnClose(simulator.MetricsRecorder(c.Log, sinks...))
}

// ========================================
// Phase 6: Application Layer
// ========================================

// MustInitApplication builds the HTTP API
func (c *Container) MustInitApplication() {
	cfg := c.Config
	c.Application.HealthHandler = provideHealthHandler(c)

	deps := rest.Deps{
		Engine:        c.Services.Engine,
		Events:        c.Services.Lifecycle,
		Positions:     c.Services.Simulator,
		Modes:         c.Services.Modes,
		Confirmations: c.Services.Confirmations,
		Prices:        c.Adapters.Prices,
	}
	if c.Repos.Event != nil {
		deps.EventStore = c.Repos.Event
	}
	if c.Repos.Position != nil {
		deps.PositionStore = c.Repos.Position
	}

	c.Application.HTTPServer = api.NewServer(
		api.ServerConfig{
			Port:        cfg.HTTP.Port,
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
		},
		c.Application.HealthHandler,
		rest.NewHandler(deps, float64(cfg.HTTP.IngestRateLimit), cfg.HTTP.IngestBurst, c.Log),
		c.Log,
	)
}

// ========================================
// Phase 7: Background Processing
// ========================================

// MustInitBackground builds the Kafka consumers and the worker scheduler
func (c *Container) MustInitBackground() {
	if c.Adapters.DetectionReader != nil {
		c.Background.DetectionConsumer = consumers.NewDetectionConsumer(c.Adapters.DetectionReader, c.Services.Engine, c.Log)
	}
	if c.Adapters.ConfirmationReader != nil {
		c.Background.ConfirmationConsumer = consumers.NewConfirmationConsumer(c.Adapters.ConfirmationReader, c.Services.Confirmations, c.Log)
	}

	c.Background.WorkerScheduler = provideWorkers(c)

	// registered here because the scheduler exists only now
	c.Application.HealthHandler.Add(health.Check{Name: "workers", Probe: c.Background.WorkerScheduler.CheckStale})
}

// ========================================
// Providers
// ========================================

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

// providePrompter builds the Telegram confirmation device, optionally with
// operator-supplied templates
func providePrompter(c *Container) *telegram.Prompter {
	prompter := telegram.NewPrompter(c.Adapters.TelegramBot, c.Services.Confirmations, c.Services.Lifecycle.Get, c.Log)

	dir := c.Config.Telegram.TemplatesDir
	if dir == "" {
		return prompter
	}
	reg, err := templates.NewRegistry(dir)
	if err != nil {
		c.Log.Fatalf("failed to load telegram templates from %s: %v", dir, err)
	}
	if _, err := prompter.WithTemplates(reg); err != nil {
		c.Log.Fatalf("invalid telegram templates in %s: %v", dir, err)
	}
	c.Log.Infow("✓ Telegram templates loaded", "dir", dir, "templates", reg.List())
	return prompter
}

func provideKafkaConsumer(cfg *config.Config, topic string, log *logger.Logger) *kafka.Consumer {
	return kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   topic,
	}, log)
}

// provideDedupStore picks Redis when configured. The memory store consults the
// lifecycle so a live event's fingerprint is never evicted.
func provideDedupStore(c *Container) dedup.Store {
	retention := c.Config.Lifecycle.DedupRetention
	if c.Redis != nil {
		return dedup.NewRedisStore(c.Redis, c.Config.Redis.KeyPrefix, retention)
	}
	return dedup.NewMemoryStore(retention, c.Services.Lifecycle.IsTerminal)
}

func provideHealthHandler(c *Container) *health.Handler {
	h := health.New(c.Log, c.Config.App.Name, c.Config.App.Version)

	if c.PG != nil {
		h.Add(health.Check{Name: "postgres", Probe: c.PG.Health})
	}
	if c.CH != nil {
		h.Add(health.Check{Name: "clickhouse", Probe: c.CH.Health})
	}
	if c.Redis != nil {
		// dedup decisions depend on it
		h.Add(health.Check{Name: "redis", Critical: true, Probe: c.Redis.Health})
	}
	if feed := c.Adapters.PriceFeed; feed != nil {
		h.Add(health.Check{Name: "price_feed", Probe: func(context.Context) error {
			if !feed.Connected() {
				return errors.Wrap(errors.ErrUnavailable, "price stream disconnected")
			}
			return nil
		}})
	}
	return h
}
