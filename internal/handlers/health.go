package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthLive answers as long as the process serves requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// HealthReady pings every registered dependency. Any failure turns
// the probe red with the failing dependency named.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.ready))
	healthy := true
	for _, rc := range h.ready {
		if err := rc.Check(ctx); err != nil {
			checks[rc.Name] = err.Error()
			healthy = false
			continue
		}
		checks[rc.Name] = "ok"
	}

	sessions, rooms := h.registry.Stats()
	body := map[string]any{
		"status":      "ok",
		"checks":      checks,
		"connections": sessions,
		"local_rooms": rooms,
	}
	status := http.StatusOK
	if !healthy {
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, body)
}
