// cmd/historian/main.go is an asynchronous historian that pops battle audit records from a
// Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/battles/internal/cache"
	"github.com/jason-s-yu/battles/internal/config"
	"github.com/jason-s-yu/battles/internal/database"
	"github.com/jason-s-yu/battles/internal/historian"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	hs := historian.New(
		cache.NewAuditQueue(rdb, cfg.AuditQueue),
		database.New(pool),
		cfg.HistorianBatchSize,
		cfg.HistorianFlush,
		logger,
	)
	hs.Run(ctx)
}
