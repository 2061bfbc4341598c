package handlers

import (
	"net/http"

	"github.com/agentstation/autonomy/internal/server/response"
	"github.com/agentstation/autonomy/internal/snapshot"
)

// HandleStats handles GET /api/v1/stats.
// @Summary Usage statistics
// @Description Current usage counters, the payload streamed as "stats"
// @Tags stats
// @Produce json
// @Success 200 {object} response.Response{data=snapshot.Snapshot}
// @Failure 503 {object} response.Response{error=response.Error}
// @Router /api/v1/stats [get].
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.sample(w, r, h.Stats)
}

// HandleSignal handles GET /api/v1/signal.
// @Summary Autonomy signal
// @Description Current open run, record streak and stored streak count
// @Tags stats
// @Produce json
// @Success 200 {object} response.Response{data=snapshot.Snapshot}
// @Router /api/v1/signal [get].
func (h *Handlers) HandleSignal(w http.ResponseWriter, r *http.Request) {
	h.sample(w, r, h.Signal)
}

// sample writes one stamped sample of s, mapping failures to error responses.
func (h *Handlers) sample(w http.ResponseWriter, r *http.Request, s snapshot.Sampler) {
	snap, err := snapshot.Take(r.Context(), s, h.Clock)
	if err != nil {
		h.log(r).Warn().Err(err).Str("source", s.Name()).Msg("Snapshot sample failed")
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, snap)
}
