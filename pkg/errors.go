// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// errors.New() ile sabit error değişkenleri tanımlarız; karşılaştırma
// string yerine referans ile yapılır:
//
//	if errors.Is(err, pkg.ErrNotFound) { ... }
package pkg

import "errors"

// Domain-level error'lar.
// HTTP handler'ları bunları status code'lara, WebSocket dispatcher'ı
// ise client'a gönderilen error mesajlarına map'ler.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrInternal      = errors.New("internal error")

	// ErrInvalidCounterparty: hedef kullanıcı yok, engelli veya çağıranın kendisi.
	ErrInvalidCounterparty = errors.New("invalid recipient")

	// ErrRateLimited: kullanıcı mesaj gönderme limitini aştı.
	ErrRateLimited = errors.New("rate limited")
)

// RateLimitError, ErrRateLimited'ın bekleme süresi taşıyan hali.
//
//	var rl *pkg.RateLimitError
//	if errors.As(err, &rl) { retry := rl.RetryAfter }
type RateLimitError struct {
	RetryAfter int // saniye
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

// Is, errors.Is(err, ErrRateLimited) kontrolünün de tutmasını sağlar.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
