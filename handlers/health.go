package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/akinalp/opti/pkg"
)

// Pinger, health check'in yokladığı bağımlılık (DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SessionCounter, aktif WebSocket session sayısını verir.
type SessionCounter interface {
	Count() int
}

// HealthHandler, GET /api/health.
type HealthHandler struct {
	db       Pinger
	sessions SessionCounter
}

func NewHealthHandler(db Pinger, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{db: db, sessions: sessions}
}

type healthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Sessions int    `json:"sessions"`
}

// Check, DB erişilebilirse 200, değilse 503 döner.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		pkg.ErrorWithMessage(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	pkg.JSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Service:  "opti",
		Sessions: h.sessions.Count(),
	})
}
