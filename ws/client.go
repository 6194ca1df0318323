package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/akinalp/opti/pkg/bus"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir frame'i yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// pongWait: Client'tan pong (veya herhangi bir frame) beklenen süre.
	// Bu sürede bir şey gelmezse bağlantı kopmuş sayılır.
	pongWait = 60 * time.Second

	// pingPeriod: Ping aralığı. pongWait'ten kısa olmalı.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize: Tek bir inbound frame'in üst sınırı (byte).
	maxMessageSize = 64 * 1024

	// sendBufferSize: Doğrudan yanıt kuyruğunun kapasitesi.
	sendBufferSize = 64
)

var (
	errReplaced         = errors.New("session replaced by a newer connection")
	errShutdown         = errors.New("server shutting down")
	errSubscriptionGone = errors.New("bus subscription closed")
)

// Session, tek bir WebSocket bağlantısını temsil eder.
//
// Her bağlantı için iki task çalışır ve ikisi aynı context'i paylaşır:
//   - inbound (readPump): önce get_preview gönderir, sonra frame okur → Dispatcher
//   - outbound (writePump): bus aboneliğinden gelenleri ve doğrudan yanıtları yazar
//
// gorilla/websocket aynı anda tek yazıcıya izin verir; bağlantıya sadece
// writePump yazar. readPump'ın yanıtları send kuyruğu üzerinden gider.
// Biri biterse errgroup context'i iptal olur ve diğeri de sonlanır.
type Session struct {
	userID      string
	conn        *websocket.Conn
	dispatcher  *Dispatcher
	broadcaster bus.Broadcaster
	log         *zap.Logger

	send chan []byte

	// kicked: Hub bu session'ı kapatmak istediğinde kapanır.
	kicked    chan struct{}
	kickOnce  sync.Once
	kickCause error
}

func newSession(userID string, conn *websocket.Conn, dispatcher *Dispatcher, broadcaster bus.Broadcaster, log *zap.Logger) *Session {
	return &Session{
		userID:      userID,
		conn:        conn,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		log:         log.With(zap.String("user_id", userID)),
		send:        make(chan []byte, sendBufferSize),
		kicked:      make(chan struct{}),
	}
}

// UserID, bağlantı sahibinin kimliği.
func (s *Session) UserID() string {
	return s.userID
}

// Run, bağlantı kapanana kadar bloklar.
//
// Abonelik task'lar başlamadan önce kurulur: ilk get_preview ile aynı anda
// gelen bir mesaj kaçırılmaz.
func (s *Session) Run(ctx context.Context) error {
	defer s.conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := s.broadcaster.Subscribe(ctx, bus.UserChannel(s.userID), bus.ReceiptChannel(s.userID))
	if err != nil {
		s.log.Error("failed to subscribe", zap.Error(err))
		s.writeClose(websocket.CloseInternalServerErr, "subscription failed")
		return err
	}
	defer sub.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.writePump(gctx, sub) })
	g.Go(func() error { return s.readPump(gctx) })

	err = g.Wait()
	if isNormalClose(err) {
		s.log.Debug("session closed", zap.NamedError("reason", err))
		return nil
	}
	s.log.Warn("session ended with error", zap.Error(err))
	return err
}

// kick, session'ı dışarıdan kapatır. Birden fazla çağrı güvenlidir.
func (s *Session) kick(cause error) {
	s.kickOnce.Do(func() {
		s.kickCause = cause
		close(s.kicked)
	})
}

// readPump, client'tan frame okur ve dispatcher'a iletir.
//
// conn.ReadMessage context'e bakmaz; writePump çıkarken bağlantıyı
// kapattığında burası hata ile döner.
func (s *Session) readPump(ctx context.Context) error {
	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := s.reply(ctx, s.dispatcher.Preview(ctx, s.userID)); err != nil {
		return err
	}

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}

		// Her frame canlılık göstergesi; deadline pong dışında da uzar
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return err
		}

		if event := s.dispatcher.Dispatch(ctx, s.userID, raw); event != nil {
			if err := s.reply(ctx, event); err != nil {
				return err
			}
		}
	}
}

// reply, doğrudan yanıtı writePump'ın kuyruğuna koyar.
// Kuyruk doluysa bekler: yavaş bir client kendi komutlarını yavaşlatır.
func (s *Session) reply(ctx context.Context, event any) error {
	data, err := Encode(event)
	if err != nil {
		s.log.Error("failed to encode reply", zap.Error(err))
		return nil
	}

	select {
	case s.send <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writePump, bağlantının tek yazıcısı.
func (s *Session) writePump(ctx context.Context, sub bus.Subscription) error {
	defer s.conn.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.writeClose(websocket.CloseNormalClosure, "")
			return nil

		case <-s.kicked:
			s.writeClose(websocket.CloseGoingAway, s.kickCause.Error())
			return s.kickCause

		case data := <-s.send:
			if err := s.write(websocket.TextMessage, data); err != nil {
				return err
			}

		case payload, ok := <-sub.Messages():
			if !ok {
				// ctx iptali de aboneliği kapatır; o durumda bu normal bir çıkış
				if ctx.Err() != nil {
					return nil
				}
				return errSubscriptionGone
			}
			// Bus'tan gelen payload olduğu gibi iletilir
			if err := s.write(websocket.TextMessage, payload); err != nil {
				return err
			}

		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (s *Session) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// writeClose, close frame göndermeyi dener; hata önemsizdir.
func (s *Session) writeClose(code int, text string) {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}

// isNormalClose, bağlantının beklenen bir şekilde kapandığını söyler.
// Bunlar hata olarak loglanmaz.
//
// Close frame göndermeden kopan client (ağ kaybı, kapatılan sekme) 1006 veya
// unexpected EOF olarak görünür; pong gelmemesi ise deadline timeout'udur.
// İkisi de kopmadır, hata değil.
func isNormalClose(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, errReplaced) ||
		errors.Is(err, errShutdown) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
