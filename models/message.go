package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageLength, bir mesaj gövdesinin rune cinsinden üst sınırı.
const MaxMessageLength = 4000

// MaxReadBatch, tek bir read_messages komutunda kabul edilen id sayısı.
const MaxReadBatch = 500

// Message, iki kullanıcı arasındaki tek bir direkt mesaj.
//
// Oluşturulduktan sonra SenderID, RecipientID, Text ve CreatedAt değişmez.
// Sadece IsViewed false → true yönünde değişir, asla geri dönmez.
//
// ID UUIDv7'dir: zaman sıralı olduğu için aynı mikrosaniyede oluşan
// iki mesaj arasında deterministik bir sıralama anahtarı da sağlar.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"time"`
	IsViewed    bool      `json:"is_viewed"`
}

// SendMessageRequest, send_message komutunun payload'ı.
type SendMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message"`
}

// Validate, mesaj isteğini doğrular ve gövdeyi kırpar.
// Hiçbir yazma/publish işleminden ÖNCE çağrılmalıdır.
func (r *SendMessageRequest) Validate() error {
	if err := ValidateUserID(r.RecipientID); err != nil {
		return fmt.Errorf("recipient_id: %w", err)
	}

	r.Message = strings.TrimSpace(r.Message)
	if r.Message == "" {
		return fmt.Errorf("message is required")
	}
	if utf8.RuneCountInString(r.Message) > MaxMessageLength {
		return fmt.Errorf("message must be at most %d characters", MaxMessageLength)
	}
	return nil
}

// ReadMessagesRequest, read_messages komutunun payload'ı.
type ReadMessagesRequest struct {
	OtherUserID    string   `json:"other_user_id"`
	ListMessagesID []string `json:"list_messages_id"`
}

// Validate, okundu bildirimi isteğini doğrular.
// ID listesindeki tekrarlar atılır; sıra korunur.
func (r *ReadMessagesRequest) Validate() error {
	if err := ValidateUserID(r.OtherUserID); err != nil {
		return fmt.Errorf("other_user_id: %w", err)
	}
	if len(r.ListMessagesID) == 0 {
		return fmt.Errorf("list_messages_id must not be empty")
	}
	if len(r.ListMessagesID) > MaxReadBatch {
		return fmt.Errorf("list_messages_id must contain at most %d ids", MaxReadBatch)
	}

	seen := make(map[string]struct{}, len(r.ListMessagesID))
	ids := make([]string, 0, len(r.ListMessagesID))
	for _, id := range r.ListMessagesID {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("list_messages_id: invalid id %q", id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	r.ListMessagesID = ids
	return nil
}

// ValidateUserID, bir kullanıcı kimliğinin UUID formatında olduğunu kontrol eder.
func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid id")
	}
	return nil
}
