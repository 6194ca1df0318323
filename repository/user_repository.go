// Package repository, veritabanı erişim katmanını tanımlar.
//
// Service katmanı doğrudan SQL yazmaz: repository interface'i üzerinden çalışır.
// Interface sayesinde service testleri gerçek SQLite yerine farklı bir
// implementasyonla da çalışabilir; SQLite implementasyonları sqlite_*.go
// dosyalarındadır.
package repository

import (
	"context"

	"github.com/akinalp/opti/models"
)

// UserRepository, kullanıcı kayıtlarına erişim.
//
// Kullanıcı profili dış sisteme aittir; burada sadece chat çekirdeğinin
// ihtiyaç duyduğu okuma ile seed/yönetim için gereken yazma işlemleri var.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	SetBlocked(ctx context.Context, id string, blocked bool) error
}
