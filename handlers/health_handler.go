package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/serenova/aicore/services/providers"
	"github.com/serenova/aicore/utils"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db       *sql.DB
	registry *providers.Registry
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db *sql.DB, registry *providers.Registry) *HealthHandler {
	return &HealthHandler{
		db:       db,
		registry: registry,
	}
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// Readyz handles GET /readyz: the gateway is ready when the database
// responds and at least one backend is configured
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		utils.WriteServiceUnavailable(w, "database unreachable")
		return
	}

	available := make([]string, 0)
	for _, id := range h.registry.List() {
		if h.registry.IsAvailable(id) {
			available = append(available, id.String())
		}
	}
	if len(available) == 0 {
		utils.WriteServiceUnavailable(w, "no provider configured")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"providers": available,
	})
}
