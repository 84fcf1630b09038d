package bootstrap

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	infragin "github.com/Siriusbar/SlopedIn/infrastructure/gin"
	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/infrastructure/metrics"
	"github.com/Siriusbar/SlopedIn/infrastructure/sse"
	"github.com/Siriusbar/SlopedIn/internal/api"
	"github.com/Siriusbar/SlopedIn/internal/config"
	"github.com/Siriusbar/SlopedIn/internal/engine"
	"github.com/Siriusbar/SlopedIn/internal/inference"
	"github.com/Siriusbar/SlopedIn/internal/telemetry"
)

const metricsNamespace = "slopedin"

// NewEngine returns the ML sidecar client when a URL is configured and the
// offline lexicon engine otherwise.
func NewEngine(cfg *config.Config, logger infralogger.Logger) inference.Engine {
	if cfg.Inference.Engine.URL == "" {
		logger.Info("No inference engine URL configured, using lexicon engine")
		return engine.NewLexiconEngine()
	}
	logger.Info("Using inference engine sidecar",
		infralogger.String("url", cfg.Inference.Engine.URL),
		infralogger.String("model", cfg.Inference.Engine.Model),
	)
	return engine.NewHTTPEngine(cfg.Inference.Engine, logger)
}

// NewCoordinator builds a coordinator whose loader transitions are logged
// and, when publisher is set, announced as model status events.
func NewCoordinator(
	cfg *config.Config,
	logger infralogger.Logger,
	tel *telemetry.Provider,
	publisher sse.Publisher,
) *inference.Coordinator {
	return inference.NewCoordinator(
		NewEngine(cfg, logger),
		cfg.Inference.Coordinator,
		logger,
		inference.WithRecorder(tel),
		inference.WithStatusListener(modelStatusListener(logger, publisher)),
	)
}

func modelStatusListener(logger infralogger.Logger, publisher sse.Publisher) func(inference.LoaderState, error) {
	log := logger.With(infralogger.Component("model-status"))

	return func(state inference.LoaderState, err error) {
		var msg string
		switch state {
		case inference.StateLoading:
			msg = "Loading AI model"
			log.Info(msg)
		case inference.StateReady:
			msg = "Model loaded"
			log.Info(msg)
		case inference.StateFailed:
			msg = fmt.Sprintf("Model failed to load: %v", err)
			log.Error("Model failed to load", infralogger.Error(err))
		case inference.StateUnloaded:
			return
		}

		if publisher == nil {
			return
		}
		//nolint:contextcheck // status callbacks outlive the request that triggered the load
		if pubErr := publisher.Publish(context.Background(), sse.NewModelStatusEvent(state.String(), msg)); pubErr != nil {
			log.Debug("Model status event not published", infralogger.Error(pubErr))
		}
	}
}

// InferenceComponents holds the inference host.
type InferenceComponents struct {
	Coordinator *inference.Coordinator
	Server      *infragin.Server
	Telemetry   *telemetry.Provider

	cfg    *config.Config
	logger infralogger.Logger
}

// NewInferenceComponents creates the coordinator and the HTTP server that
// answers relay envelopes.
func NewInferenceComponents(cfg *config.Config, logger infralogger.Logger) *InferenceComponents {
	logger = logger.With(infralogger.String("host", "inference"))
	tel := telemetry.NewProvider(cfg.Service.Name + "-inference")
	coordinator := NewCoordinator(cfg, logger, tel, nil)
	handler := api.NewInferenceHandler(coordinator, coordinator, logger)
	httpMetrics := metrics.NewHTTPMetrics(tel.Registry(), metricsNamespace)

	serverCfg := cfg.InferenceServer()
	server := infragin.NewServer(serverCfg, logger, func(router *gin.Engine) {
		router.Use(httpMetrics.Middleware())
		api.RegisterOperationalRoutes(router, serverCfg,
			map[string]infragin.HealthChecker{"model": api.ModelChecker(coordinator)},
			tel.Handler(),
		)
		api.RegisterInferenceRoutes(router, handler)
	})

	return &InferenceComponents{
		Coordinator: coordinator,
		Server:      server,
		Telemetry:   tel,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run warms the model unless preloading is disabled, then serves until ctx
// is done.
func (c *InferenceComponents) Run(ctx context.Context) error {
	if !c.cfg.Inference.SkipPreload {
		c.Coordinator.Preload(ctx)
	}
	if err := c.Server.Run(ctx); err != nil {
		return fmt.Errorf("inference host: %w", err)
	}
	return nil
}
