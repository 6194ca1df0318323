// Package main, opti backend uygulamasının giriş noktasıdır.
//
// Komutlar:
//
//	opti serve                  HTTP + WebSocket sunucusu
//	opti migrate                Migration'ları uygulayıp çıkar
//	opti flush                  Bekleyen okundu bildirimlerini tek seferde DB'ye yazar
//	opti token <user-id>        Kullanıcı için oturum token'ı üretir
//	opti user create <nickname> Kullanıcı oluşturur
//	opti user block <user-id>   Kullanıcıyı engeller (--unblock ile kaldırır)
//
// serve komutunun wire-up sırası:
//  1. Config + logger
//  2. Database (embedded migration'lar ile)
//  3. Broadcast bus (redis veya memory)
//  4. Repository → Service → Handler katmanları
//  5. WebSocket Hub + okundu bildirimi reconciler'ı
//  6. HTTP server ve graceful shutdown
//
// Global değişken YOK: her şey komut içinde oluşturulup birbirine bağlanıyor.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akinalp/opti/config"
	"github.com/akinalp/opti/database"
	"github.com/akinalp/opti/pkg/logger"
	"github.com/akinalp/opti/pkg/metrics"
	"github.com/akinalp/opti/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "opti",
		Short:         "opti - real-time direct messaging backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newFlushCommand())
	cmd.AddCommand(newTokenCommand())
	cmd.AddCommand(newUserCommand())

	return cmd
}

// app, her komutun ihtiyaç duyduğu ortak parçalar.
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *database.DB
}

// openApp, config'i yükler, logger'ı kurar ve veritabanını açar.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	db, err := database.New(cfg.Database.Path, database.Migrations(), log.Named("database"))
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close database", zap.Error(err))
	}
	_ = a.log.Sync()
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	cfg, log := a.cfg, a.log.Named("main")

	b, err := initBus(ctx, cfg.Bus, a.log.Named("bus"))
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("failed to close bus", zap.Error(err))
		}
	}()

	m := metrics.New()
	repos := initRepositories(a.db.Conn)
	svcs, limiters := initServices(a.db.Conn, repos, b, m, cfg, a.log)
	defer limiters.Close()
	defer svcs.Identity.Close()

	hub := ws.NewHub(m, a.log.Named("ws"))
	h := initHandlers(a.db.Conn, svcs, hub, b, m, cfg, a.log)

	svcs.Reconciler.Start()

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           initRoutes(h, svcs.Identity, m, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("bus", cfg.Bus.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Önce WebSocket session'ları kapatılır: hijack edilmiş bağlantıları
	// http.Server.Shutdown beklemez.
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Warn("hub shutdown incomplete", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced http shutdown", zap.Error(err))
	}

	// Son flush, session'lar kapandıktan sonra kalan okundu bildirimlerini yazar.
	svcs.Reconciler.Stop()

	log.Info("server stopped gracefully")
	return runErr
}
