// Package main: Service katmanı başlatma.
//
// initServices, service implementasyonlarını oluşturur. Her service ihtiyaç
// duyduğu repository interface'lerini ve dependency'leri constructor ile alır.
package main

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/akinalp/opti/config"
	"github.com/akinalp/opti/pkg/bus"
	"github.com/akinalp/opti/pkg/metrics"
	"github.com/akinalp/opti/pkg/ratelimit"
	"github.com/akinalp/opti/services"
)

// Services, service instance'larını tutan container struct.
type Services struct {
	Identity   services.IdentityService
	Chat       services.ChatService
	Reconciler services.ReceiptReconciler
}

// RateLimiters, rate limiter instance'larını tutan container.
type RateLimiters struct {
	Message *ratelimit.MessageRateLimiter
}

func initServices(
	db *sql.DB,
	repos *Repositories,
	b bus.Bus,
	m *metrics.Metrics,
	cfg *config.Config,
	log *zap.Logger,
) (*Services, *RateLimiters) {
	limiters := &RateLimiters{
		Message: ratelimit.NewMessageRateLimiter(
			cfg.Chat.SendRateLimit,
			cfg.Chat.SendRateWindow,
			cfg.Chat.SendRateCooldown,
		),
	}

	identity := services.NewIdentityService(
		repos.User,
		cfg.JWT.Secret,
		cfg.JWT.Expiry,
		cfg.Chat.CounterpartyCacheTTL,
		log.Named("identity"),
	)

	svcs := &Services{
		Identity: identity,
		Chat: services.NewChatService(
			db,
			repos.Message,
			identity,
			b,
			limiters.Message,
			m,
			log.Named("chat"),
		),
		Reconciler: services.NewReceiptReconciler(
			db,
			repos.Message,
			b,
			cfg.Chat.ReceiptFlushInterval,
			m,
			log.Named("reconciler"),
		),
	}

	return svcs, limiters
}

// Close, arka plan goroutine'i olan bileşenleri durdurur.
func (l *RateLimiters) Close() {
	l.Message.Close()
}
