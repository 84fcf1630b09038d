package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	infracontext "github.com/Siriusbar/SlopedIn/infrastructure/context"
	infragin "github.com/Siriusbar/SlopedIn/infrastructure/gin"
	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/infrastructure/metrics"
	infraredis "github.com/Siriusbar/SlopedIn/infrastructure/redis"
	"github.com/Siriusbar/SlopedIn/infrastructure/sse"
	"github.com/Siriusbar/SlopedIn/internal/api"
	"github.com/Siriusbar/SlopedIn/internal/config"
	"github.com/Siriusbar/SlopedIn/internal/database"
	"github.com/Siriusbar/SlopedIn/internal/feed"
	"github.com/Siriusbar/SlopedIn/internal/pipeline"
	"github.com/Siriusbar/SlopedIn/internal/preference"
	"github.com/Siriusbar/SlopedIn/internal/relay"
	"github.com/Siriusbar/SlopedIn/internal/render"
	"github.com/Siriusbar/SlopedIn/internal/source"
	"github.com/Siriusbar/SlopedIn/internal/telemetry"
	"github.com/Siriusbar/SlopedIn/internal/tracker"
)

// NewDocument builds the configured content source. File and HTTP sources
// come with a runner that keeps the document fresh.
func NewDocument(cfg *config.Config, logger infralogger.Logger) (source.Document, []pipeline.Runner, error) {
	opts := []source.HTMLOption{source.WithMinTextLength(cfg.Tracker.MinTextLength)}
	if len(cfg.Source.PostSelectors) > 0 || len(cfg.Source.TextSelectors) > 0 {
		opts = append(opts, source.WithSelectors(cfg.Source.PostSelectors, cfg.Source.TextSelectors))
	}

	switch cfg.Source.Kind {
	case config.SourceFile:
		watcher, err := source.NewFileWatcher(cfg.Source.Path, logger, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open feed file: %w", err)
		}
		return watcher, []pipeline.Runner{watcher}, nil
	case config.SourceHTTP:
		poller := source.NewHTTPPoller(source.PollerConfig{
			URL:      cfg.Source.URL,
			Interval: cfg.Source.Interval,
			Timeout:  cfg.Source.Timeout,
		}, logger, opts...)
		return poller, []pipeline.Runner{poller}, nil
	default:
		return source.NewMemory(), nil, nil
	}
}

// NewRelay builds the relay for the configured mode. In local mode the
// inference context is hosted in-process and created on first use.
func NewRelay(cfg *config.Config, logger infralogger.Logger, tel *telemetry.Provider, publisher sse.Publisher) *relay.Relay {
	var launcher relay.Launcher
	if cfg.Relay.Mode == config.RelayHTTP {
		launcher = relay.NewHTTPLauncher(cfg.Relay.HTTP, logger)
	} else {
		launcher = relay.NewLocalLauncher(relay.NewBus(), func(ctx context.Context) (relay.Handler, error) {
			coordinator := NewCoordinator(cfg, logger, tel, publisher)
			if !cfg.Inference.SkipPreload {
				coordinator.Preload(context.WithoutCancel(ctx))
			}
			return coordinator, nil
		}, logger)
	}
	return relay.New(launcher, logger, relay.WithRecorder(tel))
}

// OpenRedis connects when any component needs Redis; otherwise it returns nil.
func OpenRedis(ctx context.Context, cfg *config.Config, logger infralogger.Logger) (*redis.Client, error) {
	if !cfg.UsesRedis() {
		return nil, nil
	}
	client, err := infraredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("Redis connected", infralogger.String("address", cfg.Redis.Address))
	return client, nil
}

// NewPreferenceStore returns the configured store. client is required for
// the Redis store.
func NewPreferenceStore(cfg *config.Config, client *redis.Client, logger infralogger.Logger) preference.Store {
	if cfg.Preference.Store == config.PreferenceRedis && client != nil {
		return preference.NewRedisStore(client, logger)
	}
	return preference.NewMemoryStore()
}

// OpenHistory connects and migrates the history database when enabled.
func OpenHistory(ctx context.Context, cfg *config.Config, logger infralogger.Logger) (*sqlx.DB, *database.HistoryRepository, error) {
	if !cfg.Database.Enabled {
		return nil, nil, nil
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err = database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("History database ready", infralogger.String("driver", cfg.Database.Driver))
	return db, database.NewHistoryRepository(db), nil
}

// PipelineComponents holds everything the discovery host runs.
type PipelineComponents struct {
	Pipeline  *pipeline.Pipeline
	Tracker   *tracker.Tracker
	Relay     *relay.Relay
	Broker    sse.Broker
	Server    *infragin.Server
	Telemetry *telemetry.Provider

	logger  infralogger.Logger
	closers []func() error
}

// NewPipelineComponents creates the discovery pipeline and its API server.
func NewPipelineComponents(ctx context.Context, cfg *config.Config, logger infralogger.Logger) (*PipelineComponents, error) {
	c := &PipelineComponents{logger: logger}

	if err := c.build(ctx, cfg, logger); err != nil {
		_ = c.close()
		return nil, err
	}
	return c, nil
}

func (c *PipelineComponents) build(ctx context.Context, cfg *config.Config, logger infralogger.Logger) error {
	c.Telemetry = telemetry.NewProvider(cfg.Service.Name)
	c.Broker = sse.NewBroker(logger)

	doc, runners, err := NewDocument(cfg, logger)
	if err != nil {
		return err
	}

	redisClient, err := OpenRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		c.closers = append(c.closers, redisClient.Close)
	}

	db, history, err := OpenHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		c.closers = append(c.closers, db.Close)
	}

	renderers := render.Fanout{render.NewLog(logger), render.NewSSE(c.Broker)}
	if cfg.Render.PublishRedis && redisClient != nil {
		renderers = append(renderers, render.NewRedis(redisClient, cfg.Render.RedisChannel))
	}
	if history != nil {
		renderers = append(renderers, render.NewHistory(history))
	}

	c.Relay = NewRelay(cfg, logger, c.Telemetry, c.Broker)
	c.closers = append(c.closers, c.Relay.Close)

	c.Tracker = tracker.New(doc, c.Relay, cfg.Tracker, logger,
		tracker.WithRenderer(renderers),
		tracker.WithRecorder(c.Telemetry),
	)
	observer := feed.New(doc, c.Tracker, cfg.Feed, logger)

	opts := []pipeline.Option{pipeline.WithPublisher(c.Broker)}
	for _, r := range runners {
		opts = append(opts, pipeline.WithRunner(r))
	}
	prefs := NewPreferenceStore(cfg, redisClient, logger)
	c.Pipeline = pipeline.New(c.Tracker, observer, prefs, logger, opts...)

	var historyReader api.History
	if history != nil {
		historyReader = history
	}
	handler := api.NewPipelineHandler(c.Tracker, c.Pipeline, c.Relay, historyReader, logger)
	checks := healthChecks(redisClient, history)
	httpMetrics := metrics.NewHTTPMetrics(c.Telemetry.Registry(), metricsNamespace)

	c.Server = infragin.NewServer(&cfg.Server, logger, func(router *gin.Engine) {
		router.Use(httpMetrics.Middleware())
		api.RegisterOperationalRoutes(router, &cfg.Server, checks, c.Telemetry.Handler())
		api.RegisterPipelineRoutes(router, handler, c.Broker, cfg.Render.SSEHeartbeat, logger)
	})
	return nil
}

func healthChecks(client *redis.Client, history *database.HistoryRepository) map[string]infragin.HealthChecker {
	checks := make(map[string]infragin.HealthChecker)
	if client != nil {
		checks["redis"] = infragin.PingChecker(func() error {
			ctx, cancel := infracontext.WithPingTimeout(context.Background())
			defer cancel()
			return client.Ping(ctx).Err()
		}, infragin.HealthStatusDegraded)
	}
	if history != nil {
		checks["database"] = infragin.PingChecker(func() error {
			ctx, cancel := infracontext.WithPingTimeout(context.Background())
			defer cancel()
			return history.Ping(ctx)
		}, infragin.HealthStatusDegraded)
	}
	return checks
}

// Run starts the broker and API server, runs the pipeline until ctx is done,
// then shuts everything down.
func (c *PipelineComponents) Run(ctx context.Context) error {
	if err := c.Broker.Start(ctx); err != nil {
		return fmt.Errorf("start sse broker: %w", err)
	}

	serverErr := c.Server.StartAsync()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pipelineErr := make(chan error, 1)
	go func() { pipelineErr <- c.Pipeline.Run(runCtx) }()

	var runErr error
	select {
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("api server: %w", err)
		}
		cancel()
		if err = <-pipelineErr; err != nil {
			runErr = errors.Join(runErr, err)
		}
	case err := <-pipelineErr:
		if err != nil {
			runErr = fmt.Errorf("pipeline: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := infracontext.WithShutdownTimeout()
	defer shutdownCancel()
	if err := c.Server.Shutdown(shutdownCtx); err != nil {
		c.logger.Warn("API server shutdown failed", infralogger.Error(err))
	}
	if err := c.Broker.Stop(); err != nil {
		c.logger.Warn("SSE broker stop failed", infralogger.Error(err))
	}
	return errors.Join(runErr, c.close())
}

func (c *PipelineComponents) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
