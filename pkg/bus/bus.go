// Package bus, kullanıcılar arası gerçek zamanlı event dağıtımını sağlar.
//
// İki yetenek sunar:
//   - Broadcaster: kanal adına göre publish/subscribe. Her kullanıcının kendi
//     kimliğiyle adlandırılmış bir kanalı ve "read_receipts:<id>" adlı bir
//     okundu bildirimi kanalı vardır.
//   - ReceiptBuffer: henüz DB'ye yazılmamış okundu bildirimlerini tutan küçük
//     bir hash tablosu. Reconciler bu tabloyu atomik olarak okuyup boşaltır.
//
// İki implementasyon vardır: RedisBus (production, birden fazla process
// arasında paylaşılır) ve MemoryBus (tek process, testler ve geliştirme).
// Bus process-wide bir singleton değildir; her bileşene dependency olarak geçilir.
package bus

import (
	"context"
	"strings"
)

// ReceiptsKey, bekleyen okundu bildirimlerinin tutulduğu hash'in adı.
// Field = okuyan kullanıcı (mesajların alıcısı), value = "id;id;...;".
const ReceiptsKey = "unsync_read_message"

const receiptChannelPrefix = "read_receipts:"

// UserChannel, kullanıcının mesaj/silme event'lerini aldığı kanal.
func UserChannel(userID string) string {
	return userID
}

// ReceiptChannel, kullanıcının karşı taraftan gelen okundu bildirimlerini aldığı kanal.
func ReceiptChannel(userID string) string {
	return receiptChannelPrefix + userID
}

// Subscription, bir veya daha fazla kanala açık abonelik.
// Messages kanalı abonelik kapandığında kapanır.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Broadcaster, kanal bazlı publish/subscribe.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe, dönmeden önce aboneliğin aktif olmasını bekler; dönüşten
	// sonra yapılan publish'ler kaçırılmaz. ctx iptal edilince abonelik kapanır.
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}

// ReceiptBuffer, okundu bildirimlerinin hızlı yolu.
type ReceiptBuffer interface {
	// AppendReadReceipts, okuyanın bekleyen listesine id'leri ekler.
	AppendReadReceipts(ctx context.Context, readerID string, messageIDs []string) error
	// DrainReadReceipts, tüm tabloyu tek atomik işlemde okur ve siler.
	// Eşzamanlı bir Append ya bu drain'e ya da bir sonrakine düşer; kaybolmaz.
	DrainReadReceipts(ctx context.Context) (map[string][]string, error)
}

// Bus, Broadcaster ve ReceiptBuffer'ı birleştirir.
type Bus interface {
	Broadcaster
	ReceiptBuffer
	Close() error
}

// encodeReceipts, id listesini side-table formatına çevirir: "a;b;".
func encodeReceipts(ids []string) string {
	var b strings.Builder
	for _, id := range ids {
		if id == "" {
			continue
		}
		b.WriteString(id)
		b.WriteByte(';')
	}
	return b.String()
}

// decodeReceipts, "a;b;" formatını listeye çevirir; boş parçalar atılır.
func decodeReceipts(raw string) []string {
	parts := strings.Split(raw, ";")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
