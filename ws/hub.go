package ws

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akinalp/opti/pkg/metrics"
)

// Hub, bu process'teki canlı session'ların kayıt defteri.
//
// Event dağıtımı Hub'ın işi değildir; her session bus'a kendisi abone olur.
// Hub'ın görevleri:
//   - Kullanıcı başına tek bağlantı: yeni bağlantı eskisini kapatır
//   - Aktif session gauge'u
//   - Graceful shutdown: tüm session'ları kapatıp bitmelerini beklemek
type Hub struct {
	// sessions: userID → aktif session.
	sessions map[string]*Session
	mu       sync.Mutex
	closed   bool

	// wg: Serve içinde çalışan session'lar. Shutdown bunları bekler.
	wg sync.WaitGroup

	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewHub, yeni bir Hub oluşturur.
func NewHub(m *metrics.Metrics, log *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		metrics:  m,
		log:      log,
	}
}

// Serve, session'ı kaydeder ve bağlantı kapanana kadar çalıştırır.
func (h *Hub) Serve(ctx context.Context, s *Session) error {
	if !h.register(s) {
		s.writeClose(websocket.CloseGoingAway, errShutdown.Error())
		s.conn.Close()
		return errShutdown
	}
	defer h.unregister(s)

	return s.Run(ctx)
}

// register, session'ı ekler. Aynı kullanıcının önceki session'ı varsa kapatılır.
// Shutdown sonrası false döner.
func (h *Hub) register(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.wg.Add(1)
	if old, ok := h.sessions[s.userID]; ok {
		old.kick(errReplaced)
		h.log.Info("session replaced", zap.String("user_id", s.userID))
	} else {
		h.metrics.ActiveSessions.Inc()
	}
	h.sessions[s.userID] = s

	h.log.Debug("session registered", zap.String("user_id", s.userID))
	return true
}

// unregister, session hâlâ kullanıcının aktif session'ıysa map'ten çıkarır.
// Yerine yenisi geçmişse map'e dokunulmaz.
func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	if cur, ok := h.sessions[s.userID]; ok && cur == s {
		delete(h.sessions, s.userID)
		h.metrics.ActiveSessions.Dec()
		h.log.Debug("session unregistered", zap.String("user_id", s.userID))
	}
	h.mu.Unlock()

	h.wg.Done()
}

// Accepting, Hub yeni bağlantı kabul ediyor mu.
func (h *Hub) Accepting() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed
}

// IsOnline, kullanıcının bu process'te açık bir session'ı var mı.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[userID]
	return ok
}

// Count, aktif session sayısı.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown, yeni kayıtları durdurur, tüm session'ları kapatır ve
// bitmelerini ctx süresi kadar bekler.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	for _, s := range h.sessions {
		s.kick(errShutdown)
	}
	n := len(h.sessions)
	h.mu.Unlock()

	h.log.Info("closing sessions", zap.Int("count", n))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shut down, all sessions closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
