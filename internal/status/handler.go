// Package status serves the agent's local operator surface: liveness,
// a human-readable state snapshot, and Prometheus metrics. It binds to
// loopback only; nothing here is meant to face a network.
package status

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marquee/internal/platform/middleware"
	"marquee/internal/runtime"
)

// StateSource yields the current runtime snapshot.
type StateSource interface {
	State() runtime.Snapshot
}

// Handler serves the local status endpoints.
type Handler struct {
	source StateSource
	logger *slog.Logger
}

// New constructs a status handler over a state source.
func New(source StateSource, logger *slog.Logger) *Handler {
	return &Handler{source: source, logger: logger}
}

// Router builds the status router with its middleware stack.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))

	r.Get("/healthz", h.handleHealthz)
	r.Get("/status", h.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleStatus reports the runtime snapshot. An unprovisioned display
// reports "provision this display" here so an operator standing at the
// kiosk can tell it apart from a network outage.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.source.State()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.logger.ErrorContext(r.Context(), "encode status snapshot",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
	}
}
