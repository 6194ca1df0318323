// Package logger, uygulama genelinde kullanılan zap logger'ını kurar.
//
// Her bileşen kök logger'dan Named() ile kendi alt logger'ını alır:
//
//	log := logger.New("info", "json")
//	wsLog := log.Named("ws") // {"logger":"ws", ...}
//
// Böylece log satırları bileşene göre filtrelenebilir.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New, verilen seviye ve formatta bir zap logger oluşturur.
//
// level: "debug", "info", "warn", "error"
// format: "json" (production) veya "console" (development)
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json", "":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// Nop, çıktı üretmeyen logger. Testlerde ve opsiyonel bağımlılıklarda kullanılır.
func Nop() *zap.Logger {
	return zap.NewNop()
}
