package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	infragin "github.com/Siriusbar/SlopedIn/infrastructure/gin"
	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/inference"
	"github.com/Siriusbar/SlopedIn/internal/relay"
)

// ModelStatus reports the loader state. *inference.Coordinator implements it.
type ModelStatus interface {
	Status() inference.Status
}

// InferenceHandler serves the inference host: the relay endpoint and model
// diagnostics.
type InferenceHandler struct {
	handler relay.Handler
	status  ModelStatus
	logger  infralogger.Logger
}

// NewInferenceHandler creates a handler around the coordinator.
func NewInferenceHandler(handler relay.Handler, status ModelStatus, log infralogger.Logger) *InferenceHandler {
	return &InferenceHandler{
		handler: handler,
		status:  status,
		logger:  log.With(infralogger.Component("inference-api")),
	}
}

// Relay handles POST /relay. Every decodable request gets exactly one
// envelope back with 200; classification failures travel inside it.
func (h *InferenceHandler) Relay(c *gin.Context) {
	var req relay.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := relay.Handle(c.Request.Context(), h.handler, req)
	if resp.Error != "" {
		h.logger.Debug("Relay request answered with error",
			infralogger.String("request_id", req.ID),
			infralogger.String("kind", resp.Kind),
			infralogger.String("error", resp.Error),
		)
	}
	c.JSON(http.StatusOK, resp)
}

// Model handles GET /api/v1/model
func (h *InferenceHandler) Model(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.Status())
}

// ModelChecker reports a failed load as degraded: the next request retries.
func ModelChecker(status ModelStatus) infragin.HealthChecker {
	return func() infragin.CheckResult {
		s := status.Status()
		if s.State == inference.StateFailed.String() {
			return infragin.CheckResult{Status: infragin.HealthStatusDegraded, Message: s.LastError}
		}
		return infragin.CheckResult{Status: infragin.HealthStatusHealthy, Message: s.State}
	}
}

// RegisterInferenceRoutes registers the inference host API.
func RegisterInferenceRoutes(router gin.IRouter, h *InferenceHandler) {
	router.POST(relay.RelayPath, h.Relay)
	router.GET("/api/v1/model", h.Model)
}
