package repository

import (
	"context"

	"github.com/akinalp/opti/database"
	"github.com/akinalp/opti/models"
)

// MessageRepository, direkt mesaj veritabanı işlemleri için interface.
//
// Konuşma işlemleri sırasız çift (models.CanonicalPair) üzerinden çalışır:
// GetConversation(a, b) ve GetConversation(b, a) aynı sonucu döner.
type MessageRepository interface {
	// WithTx, aynı repository'yi verilen transaction üzerinde çalıştırır.
	WithTx(tx database.TxQuerier) MessageRepository

	// Create, mesajı kaydeder. ID ve CreatedAt çağıran tarafından atanmış olmalıdır.
	Create(ctx context.Context, msg *models.Message) error

	// GetConversation, iki kullanıcı arasındaki tüm mesajları
	// (created_at, id) artan sırada döner.
	GetConversation(ctx context.Context, userA, userB string) ([]models.Message, error)

	// GetPreview, kullanıcının katıldığı her konuşma için son mesajı ve
	// okunmamış sayısını döner; en yeni konuşma en üstte.
	GetPreview(ctx context.Context, userID string) ([]models.ChatPreview, error)

	// MarkViewed, recipientID'ye gönderilmiş ve id'si listede olan mesajları
	// görüldü yapar. Başkasına ait id'ler etkilenmez. Etkilenen satır sayısını döner.
	MarkViewed(ctx context.Context, recipientID string, messageIDs []string) (int64, error)

	// DeleteConversation, çiftin tüm mesajlarını siler ve silinen sayıyı döner.
	DeleteConversation(ctx context.Context, userA, userB string) (int64, error)
}
