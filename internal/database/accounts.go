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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatwallet/internal/models"
	"chatwallet/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var lockedUntil sql.NullInt64
	var step string
	err := row.Scan(
		&a.Id, &a.Handle, &a.DisplayName, &a.PinHash, &a.PinEnabled, &a.FailedAttempts, &lockedUntil,
		&a.OnboardingStatus, &step, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.LockedUntil = fromNanos(lockedUntil)
	a.OnboardingStep, err = models.ParseOnboardingStep(step)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	now := s.now()
	row := s.db.QueryRowContext(ctx, queryInsertAccount,
		uuid.New().String(), params.Handle, params.DisplayName,
		models.OnboardingPending, models.StepAwaitingPinChoice, now, now)

	account, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateAccount
		}
		return nil, fmt.Errorf("unable to create account: %w", err)
	}

	zap.L().Info("Account created", zap.String("account_id", account.Id))
	return account, nil
}

func (s *Service) GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountByHandle, handle))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("unable to get account by handle: %w", err)
	}
	return account, nil
}

func (s *Service) GetAccountById(ctx context.Context, id string) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountById, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("unable to get account by id: %w", err)
	}
	return account, nil
}

func (s *Service) UpdateOnboarding(ctx context.Context, accountId string, update store.OnboardingUpdate) error {
	return s.execAccountUpdate(ctx, "onboarding", queryUpdateOnboarding,
		update.Status, update.Step, s.now(), accountId)
}

func (s *Service) UpdatePin(ctx context.Context, accountId string, update store.PinUpdate) error {
	return s.execAccountUpdate(ctx, "pin", queryUpdatePin,
		update.PinHash, update.PinEnabled, s.now(), accountId)
}

func (s *Service) IncrementFailedAttempts(ctx context.Context, accountId string) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx, queryIncrementFailedAttempts, s.now(), accountId).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, fmt.Errorf("unable to increment failed attempts: %w", err)
	}
	return attempts, nil
}

func (s *Service) SetLockedUntil(ctx context.Context, accountId string, until time.Time) error {
	lock := toNanos(&until)
	_, err := s.db.ExecContext(ctx, querySetLockedUntil, lock, s.now(), accountId, lock)
	if err != nil {
		return fmt.Errorf("unable to set lock: %w", err)
	}
	return nil
}

func (s *Service) ResetFailedAttempts(ctx context.Context, accountId string) error {
	return s.execAccountUpdate(ctx, "failed attempts", queryResetFailedAttempts, s.now(), accountId)
}

func (s *Service) execAccountUpdate(ctx context.Context, what, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("unable to update account %s: %w", what, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to read affected rows: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}
