package api

import (
	"log/slog"
	"net/http"
)

type healthHandler struct {
	pinger Pinger
	logger *slog.Logger
}

// health is the liveness probe. Always 200 while the process serves.
func (h *healthHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

// ready is the readiness probe. Checks storage connectivity when a
// pinger is configured.
func (h *healthHandler) ready(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "storage unavailable", h.logger)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, h.logger)
}
