// Package main: HTTP route registration.
package main

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/akinalp/opti/middleware"
	"github.com/akinalp/opti/pkg/metrics"
)

// initRoutes, endpoint'leri mux'a bağlar ve CORS ile sarılmış handler döner.
func initRoutes(h *Handlers, resolver middleware.TokenResolver, m *metrics.Metrics, corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	authMw := middleware.NewAuthMiddleware(resolver)
	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(handler)
	}

	// Altyapı
	mux.HandleFunc("GET /api/health", h.Health.Check)
	mux.Handle("GET /metrics", m.Handler())

	// Chat: WebSocket kullanmayan client'lar için salt okunur
	mux.Handle("GET /api/chats", auth(h.Chat.ListChats))
	mux.Handle("GET /api/chats/{userId}/messages", auth(h.Chat.GetMessages))

	// WebSocket: kimlik doğrulaması handler içinde, upgrade öncesinde yapılır
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)

	// Origin listesi boşsa tüm origin'lere izin verilir; cookie taşınacağı
	// için bu durumda credential'lar kapalı kalır.
	opts := cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: len(corsOrigins) > 0,
		MaxAge:           300,
	}
	return cors.New(opts).Handler(mux)
}
