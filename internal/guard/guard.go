package guard

import (
	"context"
	"fmt"
	"time"

	"chatwallet/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultThreshold = 3
	DefaultDuration  = 5 * time.Minute
)

// AttemptStore is the subset of the record store the guard writes to.
type AttemptStore interface {
	IncrementFailedAttempts(ctx context.Context, accountId string) (int, error)
	SetLockedUntil(ctx context.Context, accountId string, until time.Time) error
	ResetFailedAttempts(ctx context.Context, accountId string) error
}

// Guard tracks PIN verification outcomes per account. It never verifies a
// PIN itself; callers report outcomes after asking the vault.
type Guard struct {
	store     AttemptStore
	threshold int
	duration  time.Duration
	now       func() time.Time
}

func New(st AttemptStore, cfg models.GuardConfig) *Guard {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	duration := cfg.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Guard{
		store:     st,
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Threshold is the number of consecutive failures that locks an account.
func (g *Guard) Threshold() int { return g.threshold }

// RecordFailure increments the failure counter and locks the account once it
// reaches the threshold. An existing later lock is never shortened.
func (g *Guard) RecordFailure(ctx context.Context, account *models.Account) (int, error) {
	attempts, err := g.store.IncrementFailedAttempts(ctx, account.Id)
	if err != nil {
		return 0, fmt.Errorf("unable to record failed attempt: %w", err)
	}
	account.FailedAttempts = attempts

	if attempts >= g.threshold {
		until := g.now().Add(g.duration).UTC()
		if err := g.store.SetLockedUntil(ctx, account.Id, until); err != nil {
			return attempts, fmt.Errorf("unable to lock account: %w", err)
		}
		if account.LockedUntil == nil || account.LockedUntil.Before(until) {
			account.LockedUntil = &until
		}
		zap.L().Warn("Account locked after failed PIN attempts",
			zap.String("account_id", account.Id),
			zap.Int("attempts", attempts),
			zap.Time("locked_until", *account.LockedUntil))
	}
	return attempts, nil
}

// RecordSuccess clears the failure counter and any lock.
func (g *Guard) RecordSuccess(ctx context.Context, account *models.Account) error {
	if err := g.store.ResetFailedAttempts(ctx, account.Id); err != nil {
		return fmt.Errorf("unable to reset failed attempts: %w", err)
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	return nil
}

// IsLocked reports whether the account is locked and for how much longer.
// A lock in the past is cleared as a side effect.
func (g *Guard) IsLocked(ctx context.Context, account *models.Account) (bool, time.Duration, error) {
	if account.LockedUntil == nil {
		return false, 0, nil
	}
	remaining := account.LockedUntil.Sub(g.now())
	if remaining > 0 {
		return true, remaining, nil
	}
	if err := g.RecordSuccess(ctx, account); err != nil {
		return false, 0, err
	}
	zap.L().Info("Account lock expired", zap.String("account_id", account.Id))
	return false, 0, nil
}
