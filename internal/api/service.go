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

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chatwallet/internal/store"
	"chatwallet/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	DefaultReplyTimeout = 15 * time.Second

	requestTimeout = 90 * time.Second
)

// MessageHandler turns one inbound chat message into one reply.
type MessageHandler interface {
	HandleMessage(ctx context.Context, handle, text, displayName string) string
}

type Config struct {
	Handler MessageHandler
	Store   store.RecordStore
	Sender  transport.Sender

	// Webhook signatures are verified when both are set
	SignatureToken string
	WebhookURL     string

	ReplyTimeout time.Duration
}

// Service is the HTTP surface of the wallet: the chat webhook plus
// operational endpoints.
type Service struct {
	handler        MessageHandler
	db             store.RecordStore
	sender         transport.Sender
	signatureToken string
	webhookURL     string
	replyTimeout   time.Duration
	now            func() time.Time
}

func NewService(cfg Config) *Service {
	sender := cfg.Sender
	if sender == nil {
		sender = transport.LogSender{}
	}
	replyTimeout := cfg.ReplyTimeout
	if replyTimeout <= 0 {
		replyTimeout = DefaultReplyTimeout
	}
	return &Service{
		handler:        cfg.Handler,
		db:             cfg.Store,
		sender:         sender,
		signatureToken: cfg.SignatureToken,
		webhookURL:     cfg.WebhookURL,
		replyTimeout:   replyTimeout,
		now:            time.Now,
	}
}

func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Router builds the chi mux serving the webhook, health and metrics routes.
func (s *Service) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RealIP)

	mux.Post("/webhook/inbound", s.inbound)
	mux.Get("/healthz", s.healthz)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Run serves until ctx is cancelled, then shuts down within shutdownTimeout.
func (s *Service) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	zap.L().Info("HTTP server stopped")
	return nil
}

func (s *Service) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.HealthCheck(r.Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
