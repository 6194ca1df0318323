package ws

import (
	"context"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akinalp/opti/pkg/bus"
)

// TokenCookie, kimlik token'ının taşındığı cookie adı.
const TokenCookie = "jwt"

// TokenResolver, WebSocket handler'ın kimlik doğrulaması için kullandığı interface.
// services.IdentityService bunu karşılar; ws → services import'u gerekmez.
type TokenResolver interface {
	Resolve(ctx context.Context, tokenString string) (string, error)
}

// Handler, WebSocket bağlantı isteklerini işleyen HTTP handler'ı.
type Handler struct {
	hub         *Hub
	resolver    TokenResolver
	dispatcher  *Dispatcher
	broadcaster bus.Broadcaster
	upgrader    websocket.Upgrader
	log         *zap.Logger
}

// NewHandler, yeni bir WebSocket handler oluşturur.
//
// allowedOrigins boşsa tüm origin'ler kabul edilir. Origin header'ı
// olmayan istekler (tarayıcı dışı client'lar) her zaman kabul edilir.
func NewHandler(
	hub *Hub,
	resolver TokenResolver,
	dispatcher *Dispatcher,
	broadcaster bus.Broadcaster,
	allowedOrigins []string,
	log *zap.Logger,
) *Handler {
	return &Handler{
		hub:         hub,
		resolver:    resolver,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin)
			},
		},
		log: log,
	}
}

// HandleConnection, kimliği doğrular, bağlantıyı WebSocket'e yükseltir ve
// session'ı Hub üzerinden çalıştırır.
//
// Token önce "jwt" cookie'sinden, yoksa ?token= query parametresinden okunur.
// Kimlik doğrulanamazsa upgrade yapılmadan 401 döner.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if !h.hub.Accepting() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	userID, err := h.resolver.Resolve(r.Context(), tokenFromRequest(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader client'a hata yanıtını kendisi yazar
		h.log.Warn("upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	s := newSession(userID, conn, h.dispatcher, h.broadcaster, h.log)
	_ = h.hub.Serve(r.Context(), s)
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}
