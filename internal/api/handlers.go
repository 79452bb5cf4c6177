// Package api exposes the read-only status surface: service health, the run
// history, and the report window that would apply right now. Reports
// themselves are driven by the scheduler, not by this API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/hyperengineering/recap/internal/schedule"
	"github.com/hyperengineering/recap/internal/store"
	"github.com/hyperengineering/recap/internal/types"
)

const defaultRunsLimit = 50

// Handler implements the status API handlers.
type Handler struct {
	store    store.Store
	resolver *schedule.Resolver
	version  string
	clock    clockwork.Clock
}

// NewHandler creates a Handler backed by the local reporting database.
func NewHandler(s store.Store, resolver *schedule.Resolver, version string, clock clockwork.Clock) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{store: s, resolver: resolver, version: version, clock: clock}
}

// HealthResponse is the GET /api/v1/health payload.
type HealthResponse struct {
	Status      string     `json:"status"`
	Version     string     `json:"version"`
	ChunkCount  int64      `json:"chunk_count"`
	Checkpoints []int      `json:"checkpoints"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.ChunkCount(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	resp := HealthResponse{
		Status:      "healthy",
		Version:     h.version,
		ChunkCount:  count,
		Checkpoints: h.resolver.Checkpoints(),
	}

	runs, err := h.store.RecentRuns(r.Context(), 1)
	if err == nil && len(runs) > 0 {
		resp.LastRunAt = &runs[0].FinishedAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// Runs handles GET /api/v1/runs. The optional limit query parameter caps the
// number of runs returned, newest first.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteProblem(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.store.RecentRuns(r.Context(), limit)
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if runs == nil {
		runs = []types.ReportRun{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// LastRun handles GET /api/v1/runs/{job}/latest.
func (h *Handler) LastRun(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	if job != types.JobFeedbackReport && job != types.JobCitationGap {
		WriteProblem(w, r, http.StatusNotFound, "Unknown job")
		return
	}

	run, err := h.store.LastRun(r.Context(), job)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteProblem(w, r, http.StatusNotFound, "No recorded runs for job")
			return
		}
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// WindowResponse is the GET /api/v1/window payload.
type WindowResponse struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration string    `json:"duration"`
}

// Window handles GET /api/v1/window. It reports the window a citation gap
// run would cover if it fired at this instant.
func (h *Handler) Window(w http.ResponseWriter, r *http.Request) {
	window, err := h.resolver.Resolve(h.clock.Now())
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, WindowResponse{
		Start:    window.Start,
		End:      window.End,
		Duration: window.Duration().String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
