// -----------------------------------------------------------------------
// API Handler - Health and version endpoints
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/interfaces"
)

// APIHandler serves system endpoints
type APIHandler struct {
	llmService interfaces.LLMService
	logger     arbor.ILogger
	startTime  time.Time
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(llmService interfaces.LLMService, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		llmService: llmService,
		logger:     logger,
		startTime:  time.Now(),
	}
}

// HealthHandler reports service health.
// GET /api/health
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	llmStatus := "ok"

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := h.llmService.HealthCheck(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("LLM health check failed")
		status = "degraded"
		llmStatus = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         status,
		"llm":            llmStatus,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	})
}

// VersionHandler reports build information.
// GET /api/version
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"version": common.Version,
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}
