// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/battles/internal/auth"
	"github.com/jason-s-yu/battles/internal/battle"
	"github.com/jason-s-yu/battles/internal/cache"
	"github.com/jason-s-yu/battles/internal/config"
	"github.com/jason-s-yu/battles/internal/database"
	"github.com/jason-s-yu/battles/internal/events"
	"github.com/jason-s-yu/battles/internal/handlers"
	"github.com/jason-s-yu/battles/internal/middleware"
	"github.com/jason-s-yu/battles/internal/store"
	"github.com/jason-s-yu/battles/internal/store/memory"
	"github.com/jason-s-yu/battles/internal/sweeper"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)

	ephemeral, err := auth.Configure(cfg.AuthPrivateKeyPath, cfg.AuthPublicKeyPath)
	if err != nil {
		logger.Fatalf("auth init: %v", err)
	}
	if ephemeral {
		logger.Warn("AUTH_PUBLIC_KEY_PATH is not set; using an ephemeral key, externally issued tokens will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		st     store.Store
		wallet store.Wallet
	)
	switch cfg.Store {
	case "memory":
		mem := memory.New()
		st, wallet = mem, mem
		logger.Warn("using in-memory store; state is lost on restart")
	default:
		connStr := cfg.DatabaseURL
		if connStr == "" {
			connStr = database.ConnString()
		}
		if err := database.Migrate(connStr); err != nil {
			logger.Fatalf("migrate: %v", err)
		}
		pool, err := database.ConnectDB(ctx, connStr)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer pool.Close()
		pg := database.New(pool)
		st, wallet = pg, pg
	}

	var (
		publisher events.Publisher
		notify    handlers.Notifications
	)
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable; notifications and audit history are disabled")
	} else {
		defer rdb.Close()
		pub := cache.NewPublisher(rdb, cfg.AuditQueue)
		publisher, notify = pub, pub
	}

	svc := battle.NewService(st, wallet, publisher, logger, cfg.Battle)

	sw, err := sweeper.New(svc, cfg.SweepInterval, logger)
	if err != nil {
		logger.Fatalf("sweeper: %v", err)
	}
	sw.Start()

	mux := http.NewServeMux()
	handlers.NewAPI(svc, notify, logger).Routes(mux)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: middleware.LogMiddleware(logger)(mux),
	}
	go func() {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown")
	}
	if err := sw.Shutdown(); err != nil {
		logger.WithError(err).Error("sweeper shutdown")
	}
}
