package handlers

import (
	"net/http"
	"time"

	"github.com/upb/graph-profile-gateway/config"
	"github.com/upb/graph-profile-gateway/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp,omitempty"`
	Checks    map[string]interface{} `json:"checks,omitempty"`
}

// CacheReporter exposes key set cache statistics
type CacheReporter interface {
	CacheStats() map[string]interface{}
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	cfg    *config.Config
	cache  CacheReporter
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. cache is nil when token validation is off.
func NewHealthHandler(cfg *config.Config, cache CacheReporter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:    cfg,
		cache:  cache,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{Status: "ok"})
}

// HandleReadiness handles GET /readyz. Without a complete app registration every
// profile request would fail, so the instance reports not ready.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]interface{})
	ready := true

	if h.cfg.M365.IsComplete() {
		checks["configuration"] = "complete"
	} else {
		h.logger.Warn("on-behalf-of configuration incomplete")
		checks["configuration"] = "incomplete"
		ready = false
	}

	if h.cache != nil {
		checks["jwks_cache"] = h.cache.CacheStats()
	} else {
		checks["jwks_cache"] = "disabled"
	}

	response := HealthResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	status := http.StatusOK
	if !ready {
		response.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}

	_ = utils.WriteJSON(w, status, response)
}
