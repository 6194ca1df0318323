// Package handlers, HTTP endpoint'lerini barındırır.
//
// Handler'lar "thin"dir: request parse + service çağrısı + response yazımı.
// Gerçek zamanlı chat WebSocket üzerinden akar (ws paketi); buradaki REST
// endpoint'leri WebSocket kullanmayan client'lar için salt okunur bir aynadır.
package handlers

import "context"

// contextKey, context'te değer taşımak için kullanılan key tipi.
// string yerine özel tip: başka paketlerin key'leriyle çakışmaz.
type contextKey string

// UserIDContextKey, auth middleware'ın doğruladığı kullanıcı kimliği.
const UserIDContextKey contextKey = "user_id"

// WithUserID, kullanıcı kimliğini context'e ekler.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// UserIDFromContext, middleware'ın eklediği kimliği döner.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDContextKey).(string)
	return id, ok && id != ""
}
