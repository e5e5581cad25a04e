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

package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSweepInterval     = time.Minute
	DefaultReconcileInterval = 30 * time.Second
	DefaultReconcileBatch    = 50
	DefaultTickTimeout       = 2 * time.Minute
)

// Jobs are the periodic maintenance operations of the orchestrator
type Jobs interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
	ReconcilePending(ctx context.Context, limit int) (int, error)
}

// MaintainerConfig contains configuration for Maintainer
type MaintainerConfig struct {
	Jobs              Jobs
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
	ReconcileBatch    int
	TickTimeout       time.Duration
}

// Maintainer sweeps expired sessions and reconciles pending transactions on
// independent tickers
type Maintainer struct {
	jobs              Jobs
	sweepInterval     time.Duration
	reconcileInterval time.Duration
	reconcileBatch    int
	tickTimeout       time.Duration

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func NewMaintainer(cfg MaintainerConfig) *Maintainer {
	m := &Maintainer{
		jobs:              cfg.Jobs,
		sweepInterval:     cfg.SweepInterval,
		reconcileInterval: cfg.ReconcileInterval,
		reconcileBatch:    cfg.ReconcileBatch,
		tickTimeout:       cfg.TickTimeout,
		stopChan:          make(chan struct{}),
		doneChan:          make(chan struct{}),
	}
	if m.sweepInterval <= 0 {
		m.sweepInterval = DefaultSweepInterval
	}
	if m.reconcileInterval <= 0 {
		m.reconcileInterval = DefaultReconcileInterval
	}
	if m.reconcileBatch <= 0 {
		m.reconcileBatch = DefaultReconcileBatch
	}
	if m.tickTimeout <= 0 {
		m.tickTimeout = DefaultTickTimeout
	}
	return m
}

// Start launches both loops. Each runs once immediately.
func (m *Maintainer) Start(ctx context.Context) error {
	if m.jobs == nil {
		return errors.New("maintainer has no jobs")
	}
	zap.L().Info("Starting maintenance listener")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.loop(ctx, m.sweepInterval, m.sweep)
	}()
	go func() {
		defer wg.Done()
		m.loop(ctx, m.reconcileInterval, m.reconcile)
	}()
	go func() {
		wg.Wait()
		close(m.doneChan)
	}()

	zap.L().Info("Maintenance listener started",
		zap.Duration("sweep_interval", m.sweepInterval),
		zap.Duration("reconcile_interval", m.reconcileInterval),
		zap.Int("reconcile_batch", m.reconcileBatch))
	return nil
}

// Stop signals both loops and waits for the in-flight tick to finish
func (m *Maintainer) Stop() {
	zap.L().Info("Stopping maintenance listener")
	m.stopOnce.Do(func() { close(m.stopChan) })
	<-m.doneChan
	zap.L().Info("Maintenance listener stopped")
}

// RunOnce performs one sweep and one reconciliation pass
func (m *Maintainer) RunOnce(ctx context.Context) (int64, int, error) {
	swept, sweepErr := m.jobs.SweepExpiredSessions(ctx)
	settled, reconcileErr := m.jobs.ReconcilePending(ctx, m.reconcileBatch)
	if err := errors.Join(sweepErr, reconcileErr); err != nil {
		return swept, settled, fmt.Errorf("maintenance failed: %w", err)
	}
	return swept, settled, nil
}

func (m *Maintainer) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.runTick(ctx, tick)

	for {
		select {
		case <-ticker.C:
			m.runTick(ctx, tick)
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Maintainer) runTick(ctx context.Context, tick func(context.Context)) {
	tickCtx, cancel := context.WithTimeout(ctx, m.tickTimeout)
	defer cancel()
	tick(tickCtx)
}

func (m *Maintainer) sweep(ctx context.Context) {
	count, err := m.jobs.SweepExpiredSessions(ctx)
	if err != nil {
		zap.L().Error("Session sweep failed", zap.Error(err))
		return
	}
	zap.L().Debug("Session sweep completed", zap.Int64("swept", count))
}

func (m *Maintainer) reconcile(ctx context.Context) {
	settled, err := m.jobs.ReconcilePending(ctx, m.reconcileBatch)
	if err != nil {
		zap.L().Error("Pending reconciliation failed",
			zap.Int("settled", settled),
			zap.Error(err))
		return
	}
	zap.L().Debug("Pending reconciliation completed", zap.Int("settled", settled))
}
