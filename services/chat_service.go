package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akinalp/opti/database"
	"github.com/akinalp/opti/models"
	"github.com/akinalp/opti/pkg"
	"github.com/akinalp/opti/pkg/bus"
	"github.com/akinalp/opti/pkg/metrics"
	"github.com/akinalp/opti/pkg/ratelimit"
	"github.com/akinalp/opti/repository"
	"github.com/akinalp/opti/ws"
)

// publishTimeout, commit sonrası bus publish'i için üst süre.
// Session kapanmış olsa bile publish bu süre boyunca denenir.
const publishTimeout = 5 * time.Second

// ChatService, direkt mesajlaşma iş mantığı.
//
// Mesaj:
//   - SendMessage: doğrula → rate limit → alıcı kontrolü → tx içinde yaz →
//     commit sonrası alıcının kanalına publish
//   - GetChat: iki kullanıcı arasındaki tüm geçmiş, (created_at, id) artan
//   - GetPreview: konuşma başına son mesaj + okunmamış sayısı
//
// Okundu bildirimi:
//   - ReadMessages: id'leri bekleyen tabloya ekler, karşı tarafın
//     read_receipts kanalına publish eder. DB'ye yazma reconciler'ın işidir.
//
// Silme:
//   - DeleteChat: çiftin tüm mesajlarını siler, iki tarafa delete_chat gönderir
type ChatService interface {
	SendMessage(ctx context.Context, senderID string, req models.SendMessageRequest) (*models.Message, error)
	GetChat(ctx context.Context, userID, otherUserID string) ([]models.Message, error)
	GetPreview(ctx context.Context, userID string) ([]models.ChatPreview, error)
	ReadMessages(ctx context.Context, readerID string, req models.ReadMessagesRequest) ([]string, error)
	DeleteChat(ctx context.Context, userID, otherUserID string) (int64, error)
}

type chatService struct {
	db          *sql.DB
	messageRepo repository.MessageRepository
	identity    IdentityService
	broadcaster bus.Broadcaster
	receipts    bus.ReceiptBuffer
	limiter     *ratelimit.MessageRateLimiter
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

// NewChatService, constructor.
//
// db, mesaj yazımının transaction'ı için gerekir; messageRepo tx'e
// WithTx ile bağlanır. limiter nil olabilir (limit yok).
func NewChatService(
	db *sql.DB,
	messageRepo repository.MessageRepository,
	identity IdentityService,
	b bus.Bus,
	limiter *ratelimit.MessageRateLimiter,
	m *metrics.Metrics,
	log *zap.Logger,
) ChatService {
	return &chatService{
		db:          db,
		messageRepo: messageRepo,
		identity:    identity,
		broadcaster: b,
		receipts:    b,
		limiter:     limiter,
		metrics:     m,
		log:         log,
		now:         time.Now,
	}
}

func (s *chatService) SendMessage(ctx context.Context, senderID string, req models.SendMessageRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}
	if req.RecipientID == senderID {
		return nil, fmt.Errorf("%w: cannot message yourself", pkg.ErrInvalidCounterparty)
	}

	if s.limiter != nil && !s.limiter.Allow(senderID) {
		return nil, &pkg.RateLimitError{RetryAfter: s.limiter.CooldownSeconds(senderID)}
	}

	if err := s.requireCounterparty(ctx, req.RecipientID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	msg := &models.Message{
		ID:          id.String(),
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Text:        req.Message,
		CreatedAt:   s.now().UTC().Truncate(time.Microsecond),
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.messageRepo.WithTx(tx).Create(ctx, msg)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.MessagesSent.Inc()

	// Publish commit'ten sonra: alıcı DB'de olmayan bir mesajı asla görmez.
	s.publish(ctx, bus.UserChannel(msg.RecipientID),
		ws.NewReceiveMessages(senderID, []models.Message{*msg}))

	return msg, nil
}

func (s *chatService) GetChat(ctx context.Context, userID, otherUserID string) ([]models.Message, error) {
	if err := models.ValidateUserID(otherUserID); err != nil {
		return nil, fmt.Errorf("%w: user_id %v", pkg.ErrBadRequest, err)
	}
	if otherUserID == userID {
		return nil, fmt.Errorf("%w: cannot open a chat with yourself", pkg.ErrInvalidCounterparty)
	}
	if err := s.requireCounterparty(ctx, otherUserID); err != nil {
		return nil, err
	}

	return s.messageRepo.GetConversation(ctx, userID, otherUserID)
}

func (s *chatService) GetPreview(ctx context.Context, userID string) ([]models.ChatPreview, error) {
	return s.messageRepo.GetPreview(ctx, userID)
}

// ReadMessages, okundu bildirimlerini hızlı yola yazar.
// Döndürülen liste tekrarları atılmış id'lerdir; echo için kullanılır.
func (s *chatService) ReadMessages(ctx context.Context, readerID string, req models.ReadMessagesRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}
	if req.OtherUserID == readerID {
		return nil, fmt.Errorf("%w: cannot read your own messages", pkg.ErrInvalidCounterparty)
	}

	if err := s.receipts.AppendReadReceipts(ctx, readerID, req.ListMessagesID); err != nil {
		return nil, fmt.Errorf("failed to buffer read receipts: %w", err)
	}

	s.publish(ctx, bus.ReceiptChannel(req.OtherUserID),
		ws.NewReadMessages(readerID, req.OtherUserID, req.ListMessagesID))

	return req.ListMessagesID, nil
}

// DeleteChat, konuşmayı iki taraf için de siler.
// Çağıranın kendi bağlantısı da delete_chat'i kendi kanalından alır.
func (s *chatService) DeleteChat(ctx context.Context, userID, otherUserID string) (int64, error) {
	if err := models.ValidateUserID(otherUserID); err != nil {
		return 0, fmt.Errorf("%w: user_id %v", pkg.ErrBadRequest, err)
	}
	if otherUserID == userID {
		return 0, fmt.Errorf("%w: cannot delete a chat with yourself", pkg.ErrInvalidCounterparty)
	}

	deleted, err := s.messageRepo.DeleteConversation(ctx, userID, otherUserID)
	if err != nil {
		return 0, err
	}

	s.publish(ctx, bus.UserChannel(userID), ws.NewDeleteChat(otherUserID))
	s.publish(ctx, bus.UserChannel(otherUserID), ws.NewDeleteChat(userID))

	s.log.Debug("chat deleted",
		zap.String("user_id", userID),
		zap.String("other_user_id", otherUserID),
		zap.Int64("messages", deleted),
	)
	return deleted, nil
}

// requireCounterparty, hedef kullanıcı geçerli değilse ErrInvalidCounterparty döner.
func (s *chatService) requireCounterparty(ctx context.Context, userID string) error {
	ok, err := s.identity.IsValidCounterparty(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", pkg.ErrInvalidCounterparty, userID)
	}
	return nil
}

// publish, event'i kanala gönderir. Hata çağırana dönmez: veri zaten
// commit edilmiştir, alıcı bir sonraki get_chat/get_preview'da görür.
func (s *chatService) publish(ctx context.Context, channel string, event any) {
	payload, err := ws.Encode(event)
	if err != nil {
		s.log.Error("failed to encode event", zap.String("channel", channel), zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.broadcaster.Publish(pubCtx, channel, payload); err != nil {
		s.metrics.BusPublishErrors.Inc()
		s.log.Error("bus publish failed", zap.String("channel", channel), zap.Error(err))
	}
}
