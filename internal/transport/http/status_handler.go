package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/movitel/lineops/internal/realtime"
)

// StatusHandler serves push-channel diagnostics and the health probe.
type StatusHandler struct {
	manager *realtime.Manager
	logger  *slog.Logger
}

func NewStatusHandler(manager *realtime.Manager, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{manager: manager, logger: logger}
}

func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.ConnectionStatus)
	r.Get("/healthz", h.Health)
}

func (h *StatusHandler) ConnectionStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.manager.Status())
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
