package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jordangarrison/vitals/internal/config"
	"github.com/jordangarrison/vitals/internal/outbox"
	httptransport "github.com/jordangarrison/vitals/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stderr, "[dlqmanager] ", log.LstdFlags|log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	httptransport.ListenInBackground(metricsSrv, logger, "dlq manager metrics")

	logger.Printf("DLQ manager started (interval=%s, maxRetries=%d)", cfg.DLQPollInterval, cfg.DLQMaxRetries)
	outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay).Run(ctx, cfg.DLQPollInterval, cfg.DLQBatchSize)
	logger.Println("dlq manager received shutdown signal")

	if err := httptransport.Shutdown(metricsSrv, 10*time.Second); err != nil {
		logger.Printf("metrics server shutdown error: %v", err)
	}
}
