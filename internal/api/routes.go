package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	infragin "github.com/Siriusbar/SlopedIn/infrastructure/gin"
)

// MetricsPath serves Prometheus metrics on both hosts.
const MetricsPath = "/metrics"

// RegisterOperationalRoutes adds /health and /metrics.
func RegisterOperationalRoutes(
	router gin.IRoutes,
	cfg *infragin.Config,
	checks map[string]infragin.HealthChecker,
	metrics http.Handler,
) {
	infragin.RegisterHealthRoutes(router, cfg.ServiceName, cfg.ServiceVersion, checks)
	if metrics != nil {
		router.GET(MetricsPath, gin.WrapH(metrics))
	}
}
