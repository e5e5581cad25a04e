package main

import (
	"context"
	"flag"

	"chatwallet/internal/common"
	"chatwallet/internal/config"

	"go.uber.org/zap"
)

// sweep runs one maintenance pass and exits, for cron-style deployments.
func main() {
	batch := flag.Int("batch", 0, "Pending transactions to reconcile (default: RECONCILE_BATCH)")
	flag.Parse()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if *batch > 0 {
		cfg.Listener.ReconcileBatch = *batch
	}

	ctx := context.Background()
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	swept, settled, err := services.Maintainer.RunOnce(ctx)
	if err != nil {
		logger.Error("Maintenance pass incomplete", zap.Error(err))
	}
	logger.Info("Maintenance pass completed",
		zap.Int64("sessions_swept", swept),
		zap.Int("transactions_settled", settled))
}
