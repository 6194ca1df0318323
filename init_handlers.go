// Package main: Handler katmanı başlatma.
package main

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/akinalp/opti/config"
	"github.com/akinalp/opti/handlers"
	"github.com/akinalp/opti/pkg/bus"
	"github.com/akinalp/opti/pkg/metrics"
	"github.com/akinalp/opti/ws"
)

// Handlers, handler instance'larını tutan container struct.
type Handlers struct {
	Chat   *handlers.ChatHandler
	Health *handlers.HealthHandler
	WS     *ws.Handler
}

func initHandlers(
	db *sql.DB,
	svcs *Services,
	hub *ws.Hub,
	b bus.Broadcaster,
	m *metrics.Metrics,
	cfg *config.Config,
	log *zap.Logger,
) *Handlers {
	dispatcher := ws.NewDispatcher(svcs.Chat, m, log.Named("dispatcher"))

	return &Handlers{
		Chat:   handlers.NewChatHandler(svcs.Chat),
		Health: handlers.NewHealthHandler(db, hub),
		WS:     ws.NewHandler(hub, svcs.Identity, dispatcher, b, cfg.Server.CORSOrigins, log.Named("ws")),
	}
}
