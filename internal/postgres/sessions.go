package postgres

import (
	"context"
	"fmt"
	"time"

	"chatwallet/internal/models"
	"chatwallet/internal/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReplaceSession deletes any session for the handle and inserts the new one
// inside one transaction, so the handle never has two rows.
func (s *Service) ReplaceSession(ctx context.Context, params store.SessionParams) (*models.Session, error) {
	rawContext, err := params.Context.Encode()
	if err != nil {
		return nil, err
	}

	now := s.now()
	row := sessionRow{
		Id:        uuid.New().String(),
		Handle:    params.Handle,
		AccountId: params.AccountId,
		Step:      params.Step.String(),
		Context:   rawContext,
		ExpiresAt: params.ExpiresAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("handle = ?", params.Handle).Delete(&sessionRow{}).Error; err != nil {
			return fmt.Errorf("unable to delete previous session: %w", err)
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("unable to insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

func (s *Service) GetSession(ctx context.Context, handle string) (*models.Session, error) {
	var row sessionRow
	if err := s.db.WithContext(ctx).Where("handle = ?", handle).First(&row).Error; err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("unable to get session: %w", err)
	}
	return row.toModel()
}

func (s *Service) UpdateSession(ctx context.Context, handle string, update store.SessionUpdate) (*models.Session, error) {
	rawContext, err := update.Context.Encode()
	if err != nil {
		return nil, err
	}

	var rows []sessionRow
	result := s.db.WithContext(ctx).Model(&rows).
		Clauses(clause.Returning{}).
		Where("handle = ?", handle).
		Updates(map[string]any{
			"step":       update.Step.String(),
			"context":    rawContext,
			"expires_at": update.ExpiresAt.UTC(),
			"updated_at": s.now(),
		})
	if err := affected(result, "session"); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].toModel()
}

// CompareAndSwapSessionStep is a single conditional UPDATE, so concurrent
// instances agree on exactly one winner.
func (s *Service) CompareAndSwapSessionStep(ctx context.Context, handle string, expected, next models.ConversationStep) error {
	result := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("handle = ? AND step = ?", handle, expected.String()).
		Updates(map[string]any{"step": next.String(), "updated_at": s.now()})
	if result.Error != nil {
		return fmt.Errorf("unable to swap session step: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrStepMismatch
	}
	return nil
}

func (s *Service) DeleteSession(ctx context.Context, handle string) error {
	if err := s.db.WithContext(ctx).Where("handle = ?", handle).Delete(&sessionRow{}).Error; err != nil {
		return fmt.Errorf("unable to delete session: %w", err)
	}
	return nil
}

func (s *Service) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", now.UTC()).Delete(&sessionRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("unable to delete expired sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
