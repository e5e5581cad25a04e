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

func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var step, rawContext string
	var expiresAt int64
	err := row.Scan(&sess.Id, &sess.Handle, &sess.AccountId, &step, &rawContext, &expiresAt, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sess.Step, err = models.ParseStep(step); err != nil {
		return nil, err
	}
	if sess.Context, err = models.DecodeFlowContext(rawContext); err != nil {
		return nil, err
	}
	sess.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return &sess, nil
}

// ReplaceSession deletes any session for the handle and inserts the new one
// inside one transaction, so the handle never has two rows.
func (s *Service) ReplaceSession(ctx context.Context, params store.SessionParams) (*models.Session, error) {
	rawContext, err := params.Context.Encode()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Warn("Failed to rollback session transaction", zap.Error(err))
		}
	}()

	if _, err := tx.ExecContext(ctx, queryDeleteSession, params.Handle); err != nil {
		return nil, fmt.Errorf("unable to delete previous session: %w", err)
	}

	now := s.now()
	row := tx.QueryRowContext(ctx, queryInsertSession,
		uuid.New().String(), params.Handle, params.AccountId, params.Step.String(), rawContext,
		params.ExpiresAt.UTC().UnixNano(), now, now)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("unable to insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("unable to commit session: %w", err)
	}
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, handle string) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, queryGetSession, handle))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("unable to get session: %w", err)
	}
	return sess, nil
}

func (s *Service) UpdateSession(ctx context.Context, handle string, update store.SessionUpdate) (*models.Session, error) {
	rawContext, err := update.Context.Encode()
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, queryUpdateSession,
		update.Step.String(), rawContext, update.ExpiresAt.UTC().UnixNano(), s.now(), handle)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("unable to update session: %w", err)
	}
	return sess, nil
}

func (s *Service) CompareAndSwapSessionStep(ctx context.Context, handle string, expected, next models.ConversationStep) error {
	result, err := s.db.ExecContext(ctx, queryCompareAndSwapStep, next.String(), s.now(), handle, expected.String())
	if err != nil {
		return fmt.Errorf("unable to swap session step: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to read affected rows: %w", err)
	}
	if rows == 0 {
		return store.ErrStepMismatch
	}
	return nil
}

func (s *Service) DeleteSession(ctx context.Context, handle string) error {
	if _, err := s.db.ExecContext(ctx, queryDeleteSession, handle); err != nil {
		return fmt.Errorf("unable to delete session: %w", err)
	}
	return nil
}

func (s *Service) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryDeleteExpiredSessions, now.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("unable to delete expired sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("unable to read affected rows: %w", err)
	}
	return count, nil
}
