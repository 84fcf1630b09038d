// Package api exposes the discovery pipeline and the inference host over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/infrastructure/sse"
	"github.com/Siriusbar/SlopedIn/internal/database"
	"github.com/Siriusbar/SlopedIn/internal/domain"
	"github.com/Siriusbar/SlopedIn/internal/relay"
	"github.com/Siriusbar/SlopedIn/internal/source"
	"github.com/Siriusbar/SlopedIn/internal/tracker"
)

const maxHistoryLimit = 500

// Items is the read side of the tracker.
type Items interface {
	Snapshot() []tracker.Item
	Get(h source.Handle) (tracker.Item, bool)
	Stats() tracker.Stats
}

// Toggle reads and writes the enabled preference. *pipeline.Pipeline
// implements it.
type Toggle interface {
	Enabled() bool
	SetEnabled(ctx context.Context, enabled bool) error
}

// Classifier runs an ad-hoc classification through the relay.
type Classifier interface {
	Send(ctx context.Context, text string) (domain.ClassificationResult, error)
}

// History reads persisted classifications.
type History interface {
	ListRecent(ctx context.Context, limit int) ([]database.HistoryRecord, error)
	CountByLabel(ctx context.Context) (map[string]int, error)
}

// PipelineHandler serves the discovery pipeline API.
type PipelineHandler struct {
	items      Items
	toggle     Toggle
	classifier Classifier
	history    History
	logger     infralogger.Logger
}

// NewPipelineHandler creates a handler. history may be nil when persistence
// is disabled.
func NewPipelineHandler(items Items, toggle Toggle, classifier Classifier, history History, log infralogger.Logger) *PipelineHandler {
	return &PipelineHandler{
		items:      items,
		toggle:     toggle,
		classifier: classifier,
		history:    history,
		logger:     log.With(infralogger.Component("api")),
	}
}

// ItemsResponse lists tracked items.
type ItemsResponse struct {
	Items []tracker.Item `json:"items"`
	Total int            `json:"total"`
}

// EnabledRequest is the body of PUT /api/v1/preferences/enabled.
type EnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// EnabledResponse reports the enabled preference.
type EnabledResponse struct {
	Enabled bool `json:"enabled"`
}

// ClassifyRequest is the body of POST /api/v1/classify.
type ClassifyRequest struct {
	Text string `json:"text" binding:"required"`
}

// HistoryResponse lists recent classifications with label totals.
type HistoryResponse struct {
	Records []database.HistoryRecord `json:"records"`
	Counts  map[string]int           `json:"counts"`
}

// ListItems handles GET /api/v1/items. An optional state query filters.
func (h *PipelineHandler) ListItems(c *gin.Context) {
	items := h.items.Snapshot()

	if state := c.Query("state"); state != "" {
		filtered := items[:0]
		for _, item := range items {
			if string(item.State) == state {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	c.JSON(http.StatusOK, ItemsResponse{Items: items, Total: len(items)})
}

// GetItem handles GET /api/v1/items/:handle
func (h *PipelineHandler) GetItem(c *gin.Context) {
	item, ok := h.items.Get(source.Handle(c.Param("handle")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not tracked"})
		return
	}
	c.JSON(http.StatusOK, item)
}

// Stats handles GET /api/v1/stats
func (h *PipelineHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.items.Stats())
}

// GetEnabled handles GET /api/v1/preferences/enabled
func (h *PipelineHandler) GetEnabled(c *gin.Context) {
	c.JSON(http.StatusOK, EnabledResponse{Enabled: h.toggle.Enabled()})
}

// SetEnabled handles PUT /api/v1/preferences/enabled
func (h *PipelineHandler) SetEnabled(c *gin.Context) {
	var req EnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.toggle.SetEnabled(c.Request.Context(), *req.Enabled); err != nil {
		h.logger.Error("Failed to store preference", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, EnabledResponse{Enabled: *req.Enabled})
}

// Classify handles POST /api/v1/classify. Failures are answered with the
// relay's error envelope so callers see the failure kind.
func (h *PipelineHandler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	result, err := h.classifier.Send(c.Request.Context(), req.Text)
	if err != nil {
		h.logger.Warn("Ad-hoc classification failed",
			infralogger.Error(err),
			infralogger.Duration("duration", time.Since(start)),
		)
		c.JSON(statusForError(err), relay.ErrorResponse("", err))
		return
	}

	c.JSON(http.StatusOK, relay.ResultResponse("", result))
}

// History handles GET /api/v1/history
func (h *PipelineHandler) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}

	limit := database.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	records, err := h.history.ListRecent(ctx, limit)
	if err != nil {
		h.logger.Error("Failed to list history", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	counts, err := h.history.CountByLabel(ctx)
	if err != nil {
		h.logger.Error("Failed to count history", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if records == nil {
		records = []database.HistoryRecord{}
	}
	c.JSON(http.StatusOK, HistoryResponse{Records: records, Counts: counts})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrContextUnavailable), errors.Is(err, domain.ErrModelLoadFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTransportFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RegisterPipelineRoutes registers the discovery API. broker may be nil,
// in which case the event stream is not served.
func RegisterPipelineRoutes(router gin.IRouter, h *PipelineHandler, broker sse.Broker, heartbeat time.Duration, log infralogger.Logger) {
	v1 := router.Group("/api/v1")

	v1.GET("/items", h.ListItems)
	v1.GET("/items/:handle", h.GetItem)
	v1.GET("/stats", h.Stats)

	prefs := v1.Group("/preferences")
	prefs.GET("/enabled", h.GetEnabled)
	prefs.PUT("/enabled", h.SetEnabled)

	v1.POST("/classify", h.Classify)
	v1.GET("/history", h.History)

	if broker != nil {
		v1.GET("/events", sse.Handler(broker, log, heartbeat))
	}
}
