// Package config, uygulamanın tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
//
// Config struct'ı tüm ayarları tek bir yerde toplar, böylece
// her yerde ayrı ayrı os.Getenv() çağırmak yerine tek bir Config nesnesi taşırız.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Bus driver değerleri.
const (
	BusDriverRedis  = "redis"
	BusDriverMemory = "memory"
)

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Bus      BusConfig
	Chat     ChatConfig
	Log      LogConfig
}

// ServerConfig, HTTP server ayarları.
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string // Boşsa tüm origin'lere izin verilir
}

// DatabaseConfig, SQLite database ayarları.
type DatabaseConfig struct {
	Path string // SQLite dosya yolu (ör: ./data/opti.db)
}

// JWTConfig, oturum token ayarları.
type JWTConfig struct {
	Secret string // Token imzalama anahtarı: GİZLİ TUTULMALI
	Expiry time.Duration
}

// BusConfig, broadcast bus ayarları.
type BusConfig struct {
	Driver   string // "redis" veya "memory"
	RedisURL string // ör: redis://localhost:6379/0
}

// ChatConfig, chat çekirdeğinin zamanlama ayarları.
type ChatConfig struct {
	ReceiptFlushInterval time.Duration // Okundu bildirimlerinin DB'ye yazılma aralığı
	CounterpartyCacheTTL time.Duration // Alıcı geçerlilik kontrolünün cache süresi
	SendRateLimit        int           // Pencere başına mesaj
	SendRateWindow       time.Duration
	SendRateCooldown     time.Duration
}

// LogConfig, zap logger ayarları.
type LogConfig struct {
	Level  string
	Format string
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler (development kolaylığı için).
func Load() (*Config, error) {
	// .env dosyası yoksa hata vermez, sessizce devam eder.
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8000"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	expiryMinutes, err := strconv.Atoi(getEnv("JWT_EXPIRY_MINUTES", "43200")) // 30 gün
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY_MINUTES: %w", err)
	}

	flushInterval, err := time.ParseDuration(getEnv("RECEIPT_FLUSH_INTERVAL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECEIPT_FLUSH_INTERVAL: %w", err)
	}
	if flushInterval <= 0 {
		return nil, fmt.Errorf("RECEIPT_FLUSH_INTERVAL must be positive")
	}

	cacheTTL, err := time.ParseDuration(getEnv("COUNTERPARTY_CACHE_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid COUNTERPARTY_CACHE_TTL: %w", err)
	}
	if cacheTTL <= 0 {
		return nil, fmt.Errorf("COUNTERPARTY_CACHE_TTL must be positive")
	}

	rateLimit, err := strconv.Atoi(getEnv("SEND_RATE_LIMIT", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEND_RATE_LIMIT: %w", err)
	}
	if rateLimit < 0 {
		return nil, fmt.Errorf("SEND_RATE_LIMIT must not be negative (0 disables the limit)")
	}

	rateWindow, err := time.ParseDuration(getEnv("SEND_RATE_WINDOW", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEND_RATE_WINDOW: %w", err)
	}
	if rateWindow <= 0 {
		return nil, fmt.Errorf("SEND_RATE_WINDOW must be positive")
	}

	rateCooldown, err := time.ParseDuration(getEnv("SEND_RATE_COOLDOWN", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEND_RATE_COOLDOWN: %w", err)
	}
	if rateCooldown < 0 {
		return nil, fmt.Errorf("SEND_RATE_COOLDOWN must not be negative")
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	driver := strings.ToLower(getEnv("BUS_DRIVER", BusDriverRedis))
	if driver != BusDriverRedis && driver != BusDriverMemory {
		return nil, fmt.Errorf("invalid BUS_DRIVER %q (want %s or %s)", driver, BusDriverRedis, BusDriverMemory)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        port,
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "")),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/opti.db"),
		},
		JWT: JWTConfig{
			Secret: jwtSecret,
			Expiry: time.Duration(expiryMinutes) * time.Minute,
		},
		Bus: BusConfig{
			Driver:   driver,
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Chat: ChatConfig{
			ReceiptFlushInterval: flushInterval,
			CounterpartyCacheTTL: cacheTTL,
			SendRateLimit:        rateLimit,
			SendRateWindow:       rateWindow,
			SendRateCooldown:     rateCooldown,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Addr, HTTP server'ın dinleyeceği adresi döner (ör: "0.0.0.0:8000").
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// splitList, virgülle ayrılmış değerleri boşlukları temizleyerek böler.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
