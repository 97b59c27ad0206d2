package api

import (
	"context"
	"net/http"
	"time"

	"github.com/crewledger/crewledger/internal/api/respond"
)

// Pinger reports datastore connectivity. Both store drivers implement it.
type Pinger interface {
	HealthPing(ctx context.Context) error
}

type HealthHandler struct {
	pinger Pinger
}

func NewHealthHandler(p Pinger) *HealthHandler { return &HealthHandler{pinger: p} }

// CheckHealth handles GET /v0/health. Always 200; the body carries the
// healthy/unhealthy verdict.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.HealthPing(ctx); err != nil {
			status = "unhealthy"
		}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
