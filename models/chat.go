package models

// ChatPreview, chat listesindeki tek bir konuşma satırı.
//
// LastMessage konuşmadaki en güncel mesajdır (created_at, sonra id ile).
// UnreadCount, karşı tarafın çağırana gönderdiği ve henüz görülmemiş
// mesaj sayısıdır; sıfır da açıkça raporlanır.
type ChatPreview struct {
	User        UserInfo `json:"user"`
	LastMessage Message  `json:"last_message"`
	UnreadCount int      `json:"unread_count"`
}

// CanonicalPair, iki kullanıcı kimliğini sırasız bir çifte indirger.
//
// (A,B) ve (B,A) aynı konuşmadır; her iki taraf da aynı (least, greatest)
// anahtarını üretir. Preview gruplaması ve konuşma silme bu fonksiyonu
// ve SQL tarafındaki min()/max() karşılığını kullanır.
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
