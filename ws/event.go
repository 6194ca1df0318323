// Package ws, WebSocket bağlantı yönetimi ve chat protokolünü sağlar.
//
// Mimari:
//   - Hub: Kullanıcı başına tek aktif Session'ı tutan kayıt defteri
//   - Session: Her bağlantı için inbound + outbound task çifti
//   - Dispatcher: Gelen komutu action_type'a göre ChatActions'a yönlendirir
//   - Event: Client-server arası iletilen mesaj formatı
//
// Event akışı:
//  1. Client {"action_type":"send_message",...} gönderir → Session inbound task
//  2. Dispatcher komutu decode + validate eder → ChatActions (services)
//  3. Service DB'ye yazar, commit sonrası bus'a publish eder
//  4. Alıcının Session outbound task'ı bus'tan aldığı payload'ı olduğu gibi yazar
package ws

import (
	"encoding/json"

	"github.com/akinalp/opti/models"
)

// Client → Server komutları
const (
	ActionSendMessage  = "send_message"
	ActionGetChat      = "get_chat"
	ActionGetPreview   = "get_preview"
	ActionReadMessages = "read_messages"
	ActionDeleteChat   = "delete_chat"
)

// Server → Client event'leri. read_messages, get_preview ve delete_chat
// komutla aynı isimle döner.
const (
	ActionReceiveMessages = "receive_messages"
)

// Client'a gönderilen sabit hata metinleri.
const (
	ErrTextInvalidJSON      = "invalid json"
	ErrTextInvalidRecipient = "invalid recipient"
	ErrTextRateLimited      = "rate limited"
	ErrTextInternal         = "internal error"
)

// Command, client'tan gelen ham komut zarfı.
// Alanlar action'a göre değişir; ilk aşamada sadece action_type okunur,
// payload ikinci aşamada hedef struct'a decode edilir.
type Command struct {
	ActionType string `json:"action_type"`
}

// ReceiveMessagesEvent, bir veya daha fazla mesajı taşır.
// UserID, alıcının bakış açısından konuşmanın karşı tarafıdır.
type ReceiveMessagesEvent struct {
	ActionType string           `json:"action_type"`
	UserID     string           `json:"user_id,omitempty"`
	Messages   []models.Message `json:"messages"`
}

// PreviewEvent, kullanıcının konuşma listesi.
type PreviewEvent struct {
	ActionType string               `json:"action_type"`
	ChatList   []models.ChatPreview `json:"chat_list"`
}

// ReadMessagesEvent, okundu bildirimi. Hem okuyana (echo) hem karşı
// tarafın read_receipts kanalına gider.
type ReadMessagesEvent struct {
	ActionType     string   `json:"action_type"`
	ReaderID       string   `json:"reader_id"`
	OtherUserID    string   `json:"other_user_id"`
	ListMessagesID []string `json:"list_messages_id"`
}

// DeleteChatEvent, UserID ile olan konuşmanın silindiğini bildirir.
type DeleteChatEvent struct {
	ActionType string `json:"action_type"`
	UserID     string `json:"user_id"`
}

// ErrorEvent, client'a dönen hata zarfı.
type ErrorEvent struct {
	Error      string `json:"error"`
	ActionType string `json:"action_type,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// NewReceiveMessages, receive_messages event'i oluşturur.
// messages nil ise JSON'da boş liste olarak gider.
func NewReceiveMessages(userID string, messages []models.Message) ReceiveMessagesEvent {
	if messages == nil {
		messages = []models.Message{}
	}
	return ReceiveMessagesEvent{
		ActionType: ActionReceiveMessages,
		UserID:     userID,
		Messages:   messages,
	}
}

func NewPreview(chats []models.ChatPreview) PreviewEvent {
	if chats == nil {
		chats = []models.ChatPreview{}
	}
	return PreviewEvent{ActionType: ActionGetPreview, ChatList: chats}
}

func NewReadMessages(readerID, otherUserID string, ids []string) ReadMessagesEvent {
	return ReadMessagesEvent{
		ActionType:     ActionReadMessages,
		ReaderID:       readerID,
		OtherUserID:    otherUserID,
		ListMessagesID: ids,
	}
}

func NewDeleteChat(userID string) DeleteChatEvent {
	return DeleteChatEvent{ActionType: ActionDeleteChat, UserID: userID}
}

// Encode, event'i wire formatına çevirir.
// Event tipleri sadece serileştirilebilir alanlar içerdiği için hata
// pratikte oluşmaz; yine de çağırana iletilir.
func Encode(event any) ([]byte, error) {
	return json.Marshal(event)
}
