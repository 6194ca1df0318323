// Package middleware, HTTP request pipeline'ına eklenen ara katmanları barındırır.
//
// Go'da middleware bir fonksiyondur:
//
//	func(next http.Handler) http.Handler
//
// Middleware kendi işini yapar (ör: token doğrula), sonra next'i çağırır.
// Hata varsa next çağrılmaz ve request burada durur.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/akinalp/opti/handlers"
	"github.com/akinalp/opti/pkg"
	"github.com/akinalp/opti/ws"
)

// TokenResolver, token'ı kullanıcı kimliğine çevirir.
// services.IdentityService bunu karşılar.
type TokenResolver interface {
	Resolve(ctx context.Context, tokenString string) (string, error)
}

// AuthMiddleware, JWT doğrulama middleware'ı.
type AuthMiddleware struct {
	resolver TokenResolver
}

// NewAuthMiddleware, constructor.
func NewAuthMiddleware(resolver TokenResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Require, geçerli bir token zorunlu kılar. Yoksa veya geçersizse 401.
//
// Token kaynakları (sırayla):
//  1. Authorization: Bearer <token>
//  2. "jwt" cookie'si (WebSocket ile aynı oturum)
//
// Resolve kullanıcının var olduğunu ve engelli olmadığını da kontrol eder.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := tokenFromRequest(r)
		if !ok {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "authorization required")
			return
		}

		userID, err := m.resolver.Resolve(r.Context(), token)
		if err != nil {
			pkg.Error(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(handlers.WithUserID(r.Context(), userID)))
	})
}

func tokenFromRequest(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		return token, found && token != ""
	}
	if c, err := r.Cookie(ws.TokenCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}
