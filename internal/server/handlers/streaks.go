package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/agentstation/autonomy/internal/server/response"
	"github.com/agentstation/autonomy/pkg/constants"
	pkgerrors "github.com/agentstation/autonomy/pkg/errors"
	"github.com/agentstation/autonomy/pkg/streaks"
)

const (
	defaultListLimit = 20
	maxListLimit     = 1000
)

// StreakList is the body of GET /api/v1/streaks.
type StreakList struct {
	Streaks []streaks.Streak `json:"streaks"`
	Count   int              `json:"count"`
	Cached  bool             `json:"cached"`
}

// BackfillSummary is the body of POST /api/v1/streaks/backfill.
type BackfillSummary struct {
	Status       string          `json:"status"`
	Events       int             `json:"events"`
	Streaks      int             `json:"streaks"`
	Autonomous   float64         `json:"autonomous_seconds"`
	AutonomyRate float64         `json:"autonomy_rate"`
	Record       *streaks.Streak `json:"record"`
	ElapsedMS    int64           `json:"elapsed_ms"`
}

// HandleListStreaks handles GET /api/v1/streaks.
// @Summary List stored streaks
// @Description Stored autonomy streaks, longest first
// @Tags streaks
// @Produce json
// @Param limit query int false "Maximum streaks to return (default 20, max 1000)"
// @Success 200 {object} response.Response{data=StreakList}
// @Failure 400 {object} response.Response{error=response.Error}
// @Failure 503 {object} response.Response{error=response.Error}
// @Router /api/v1/streaks [get].
func (h *Handlers) HandleListStreaks(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	if rows, ok := h.Cache.Streaks(limit); ok {
		response.OK(w, StreakList{Streaks: rows, Count: len(rows), Cached: true})
		return
	}

	rows, err := h.EventLog.Streaks(r.Context(), limit)
	if err != nil {
		h.log(r).Warn().Err(err).Int("limit", limit).Msg("Failed to read streaks")
		response.ErrorFromType(w, err)
		return
	}
	h.Cache.SetStreaks(limit, rows)

	response.OK(w, StreakList{Streaks: rows, Count: len(rows)})
}

// HandleGetStreak handles GET /api/v1/streaks/{rank}.
// @Summary Get one streak
// @Description The stored streak at a rank, 1 being the longest
// @Tags streaks
// @Produce json
// @Param rank path int true "1-based rank by duration"
// @Success 200 {object} response.Response{data=streaks.Streak}
// @Failure 400 {object} response.Response{error=response.Error}
// @Failure 404 {object} response.Response{error=response.Error}
// @Router /api/v1/streaks/{rank} [get].
func (h *Handlers) HandleGetStreak(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("rank")
	rank, err := strconv.Atoi(raw)
	if err != nil {
		response.ErrorFromType(w, pkgerrors.NewValidationError("rank", raw, "must be an integer"))
		return
	}

	st, err := h.EventLog.StreakAt(r.Context(), rank)
	if err != nil {
		if !pkgerrors.IsNotFound(err) && !pkgerrors.IsValidationError(err) {
			h.log(r).Warn().Err(err).Int("rank", rank).Msg("Failed to read streak")
		}
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, st)
}

// HandleBackfill handles POST /api/v1/streaks/backfill.
// @Summary Recompute streaks
// @Description Runs the backfill job synchronously and replaces the stored streaks
// @Tags streaks
// @Produce json
// @Success 200 {object} response.Response{data=BackfillSummary}
// @Failure 409 {object} response.Response{error=response.Error}
// @Failure 429 {object} response.Response{error=response.Error}
// @Failure 503 {object} response.Response{error=response.Error}
// @Router /api/v1/streaks/backfill [post].
func (h *Handlers) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	// A full recompute can outlast the server write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.log(r).Debug().Err(err).Msg("Failed to clear write deadline")
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.BackfillTimeout)
	defer cancel()

	result, err := h.Backfill.Run(ctx)
	if err != nil {
		if !pkgerrors.IsAlreadyRunning(err) && !pkgerrors.IsCanceled(err) {
			h.log(r).Error().Err(err).Msg("Backfill failed")
		}
		response.ErrorFromType(w, err)
		return
	}

	h.Cache.Clear()
	if h.Digests != nil {
		h.Digests.Forget(constants.EventSignal)
	}

	h.log(r).Info().
		Int("events", result.Events).
		Int("streaks", len(result.Streaks)).
		Dur("elapsed", result.Elapsed).
		Msg("Backfill completed")

	response.OK(w, BackfillSummary{
		Status:       "completed",
		Events:       result.Events,
		Streaks:      len(result.Streaks),
		Autonomous:   result.Summary.Autonomous,
		AutonomyRate: result.Summary.Rate,
		Record:       result.Summary.Record,
		ElapsedMS:    result.Elapsed.Milliseconds(),
	})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.NewValidationError("limit", raw, "must be an integer")
	}
	if limit < 1 || limit > maxListLimit {
		return 0, pkgerrors.NewValidationError("limit", limit, "must be between 1 and 1000")
	}
	return limit, nil
}
