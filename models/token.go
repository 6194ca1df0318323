package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, oturum JWT'sinin payload'ı.
//
// Token OAuth akışının sonunda dış sistem tarafından "jwt" cookie'si olarak
// verilir. Kullanıcı kimliği standart "sub" claim'inde taşınır.
//
// Bu struct models paketinde tanımlanır çünkü services, ws ve middleware
// katmanlarının hepsi tarafından kullanılır.
type TokenClaims struct {
	jwt.RegisteredClaims
}

// UserID, token sahibinin kimliğini döner.
func (c *TokenClaims) UserID() string {
	return c.Subject
}
