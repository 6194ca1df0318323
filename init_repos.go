// Package main: Repository ve altyapı başlatma.
//
// initRepositories, repository implementasyonlarını oluşturur.
// initBus, BUS_DRIVER'a göre Redis veya in-process bus döner.
package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/akinalp/opti/config"
	"github.com/akinalp/opti/pkg/bus"
	"github.com/akinalp/opti/repository"
)

// Repositories, repository instance'larını tutan container struct.
type Repositories struct {
	User    repository.UserRepository
	Message repository.MessageRepository
}

func initRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		User:    repository.NewSQLiteUserRepo(db),
		Message: repository.NewSQLiteMessageRepo(db),
	}
}

// initBus, yapılandırılmış bus'ı açar.
//
// memory driver tek process içindir: birden fazla instance çalışıyorsa
// kullanıcılar birbirinin mesajını göremez ve flush komutu boş tablo görür.
func initBus(ctx context.Context, cfg config.BusConfig, log *zap.Logger) (bus.Bus, error) {
	switch cfg.Driver {
	case config.BusDriverMemory:
		log.Warn("using in-process bus; events are not shared between instances")
		return bus.NewMemory(log), nil
	case config.BusDriverRedis:
		b, err := bus.DialRedis(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
}
