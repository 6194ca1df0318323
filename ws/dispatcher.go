package ws

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/akinalp/opti/models"
	"github.com/akinalp/opti/pkg"
	"github.com/akinalp/opti/pkg/metrics"
)

// ChatActions, dispatcher'ın ihtiyaç duyduğu chat işlemleri.
//
// services paketi ws'in event tiplerini kullandığı için ws services'i
// import edemez; bu küçük interface'i services.ChatService otomatik karşılar.
type ChatActions interface {
	SendMessage(ctx context.Context, senderID string, req models.SendMessageRequest) (*models.Message, error)
	GetChat(ctx context.Context, userID, otherUserID string) ([]models.Message, error)
	GetPreview(ctx context.Context, userID string) ([]models.ChatPreview, error)
	ReadMessages(ctx context.Context, readerID string, req models.ReadMessagesRequest) ([]string, error)
	DeleteChat(ctx context.Context, userID, otherUserID string) (int64, error)
}

// userTarget, get_chat ve delete_chat payload'ı.
type userTarget struct {
	UserID string `json:"user_id"`
}

// Dispatcher, gelen komutu decode eder ve ChatActions'a yönlendirir.
// Durum tutmaz; tüm session'lar aynı örneği paylaşır.
type Dispatcher struct {
	chat    ChatActions
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewDispatcher, constructor.
func NewDispatcher(chat ChatActions, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	return &Dispatcher{chat: chat, metrics: m, log: log}
}

// Dispatch, tek bir ham frame'i işler ve çağırana doğrudan gönderilecek
// event'i döner. nil dönerse doğrudan yanıt yoktur (örn. delete_chat,
// bildirim iki tarafa da bus üzerinden gider).
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, raw []byte) any {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.metrics.ObserveCommand("unknown", metrics.ResultProtocol)
		return ErrorEvent{Error: ErrTextInvalidJSON}
	}

	switch cmd.ActionType {
	case ActionSendMessage:
		var req models.SendMessageRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return d.protocolError(cmd.ActionType)
		}
		msg, err := d.chat.SendMessage(ctx, userID, req)
		if err != nil {
			return d.failure(cmd.ActionType, userID, err)
		}
		d.metrics.ObserveCommand(cmd.ActionType, metrics.ResultOK)
		return NewReceiveMessages(msg.RecipientID, []models.Message{*msg})

	case ActionGetChat:
		var req userTarget
		if err := json.Unmarshal(raw, &req); err != nil {
			return d.protocolError(cmd.ActionType)
		}
		msgs, err := d.chat.GetChat(ctx, userID, req.UserID)
		if err != nil {
			return d.failure(cmd.ActionType, userID, err)
		}
		d.metrics.ObserveCommand(cmd.ActionType, metrics.ResultOK)
		return NewReceiveMessages(req.UserID, msgs)

	case ActionGetPreview:
		return d.Preview(ctx, userID)

	case ActionReadMessages:
		var req models.ReadMessagesRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return d.protocolError(cmd.ActionType)
		}
		ids, err := d.chat.ReadMessages(ctx, userID, req)
		if err != nil {
			return d.failure(cmd.ActionType, userID, err)
		}
		d.metrics.ObserveCommand(cmd.ActionType, metrics.ResultOK)
		return NewReadMessages(userID, req.OtherUserID, ids)

	case ActionDeleteChat:
		var req userTarget
		if err := json.Unmarshal(raw, &req); err != nil {
			return d.protocolError(cmd.ActionType)
		}
		if _, err := d.chat.DeleteChat(ctx, userID, req.UserID); err != nil {
			return d.failure(cmd.ActionType, userID, err)
		}
		d.metrics.ObserveCommand(cmd.ActionType, metrics.ResultOK)
		return nil

	default:
		d.metrics.ObserveCommand("unknown", metrics.ResultProtocol)
		return ErrorEvent{Error: ErrTextInvalidJSON}
	}
}

// Preview, get_preview yanıtını üretir. Session bağlantı açılır açılmaz da çağırır.
func (d *Dispatcher) Preview(ctx context.Context, userID string) any {
	chats, err := d.chat.GetPreview(ctx, userID)
	if err != nil {
		return d.failure(ActionGetPreview, userID, err)
	}
	d.metrics.ObserveCommand(ActionGetPreview, metrics.ResultOK)
	return NewPreview(chats)
}

func (d *Dispatcher) protocolError(action string) ErrorEvent {
	d.metrics.ObserveCommand(action, metrics.ResultProtocol)
	return ErrorEvent{Error: ErrTextInvalidJSON, ActionType: action}
}

// failure, domain error'ını client'a gidecek hata zarfına çevirir.
// Beklenmeyen hatalar loglanır; detayları client'a sızdırılmaz.
func (d *Dispatcher) failure(action, userID string, err error) ErrorEvent {
	var rl *pkg.RateLimitError

	switch {
	case errors.As(err, &rl):
		d.metrics.ObserveCommand(action, metrics.ResultLimited)
		return ErrorEvent{Error: ErrTextRateLimited, ActionType: action, RetryAfter: rl.RetryAfter}
	case errors.Is(err, pkg.ErrInvalidCounterparty):
		d.metrics.ObserveCommand(action, metrics.ResultInvalid)
		return ErrorEvent{Error: ErrTextInvalidRecipient, ActionType: action}
	case errors.Is(err, pkg.ErrBadRequest):
		d.metrics.ObserveCommand(action, metrics.ResultInvalid)
		return ErrorEvent{Error: ErrTextInvalidJSON, ActionType: action}
	default:
		d.metrics.ObserveCommand(action, metrics.ResultError)
		d.log.Error("command failed",
			zap.String("action", action),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return ErrorEvent{Error: ErrTextInternal, ActionType: action}
	}
}
