/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"chatwallet/internal/common"
	"chatwallet/internal/config"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting chat wallet server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if err := services.Maintainer.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start maintenance listener", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return services.Api.Run(gctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
	})

	zap.L().Info("Press Ctrl+C to stop")
	<-gctx.Done()
	zap.L().Info("Shutdown signal received, stopping...")

	done := make(chan error, 1)
	go func() {
		services.Maintainer.Stop()
		done <- g.Wait()
	}()

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	select {
	case err := <-done:
		if err != nil {
			zap.L().Error("Server stopped with error", zap.Error(err))
			return
		}
		zap.L().Info("Server stopped gracefully")
	case <-time.After(shutdownTimeout):
		zap.L().Warn("Forced shutdown after timeout")
	}
}
