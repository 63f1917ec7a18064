package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// Version is stamped at build time.
var Version = "dev"

// HealthHandler reports process liveness and build info.
type HealthHandler struct {
	started time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{started: time.Now()}
}

// HealthCheck handles GET /healthz.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":  "ok",
		"version": Version,
		"uptime":  time.Since(h.started).String(),
	})
}
