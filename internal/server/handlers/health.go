package handlers

import (
	"net/http"

	"github.com/agentstation/autonomy/internal/server/response"
)

// HandleHealth handles GET /health and GET /api/v1/health.
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Router /api/v1/health [get].
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "autonomy-api",
		"version": h.Version,
	})
}

// HandleReady handles GET /api/v1/ready.
// @Summary Readiness check
// @Description Reports whether the event log is reachable, plus cache and stream client counts
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Failure 503 {object} response.Response{error=response.Error}
// @Router /api/v1/ready [get].
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.EventLog.Ping(r.Context()); err != nil {
		h.log(r).Warn().Err(err).Msg("Readiness check failed")
		response.ServiceUnavailable(w, "Event log not available")
		return
	}

	response.OK(w, map[string]any{
		"status":    "ready",
		"event_log": h.EventLog.Path(),
		"cache":     h.Cache.GetStats(),
		"clients":   h.Clients(),
	})
}

// HandleHealthSnapshot handles GET /api/v1/health/snapshot, the same
// payload the stream publishes as "health".
func (h *Handlers) HandleHealthSnapshot(w http.ResponseWriter, r *http.Request) {
	h.sample(w, r, h.Health)
}
