package postgres

import (
	"context"
	"fmt"
	"time"

	"chatwallet/internal/models"
	"chatwallet/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Service) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	now := s.now()
	row := accountRow{
		Id:               uuid.New().String(),
		Handle:           params.Handle,
		DisplayName:      params.DisplayName,
		OnboardingStatus: string(models.OnboardingPending),
		OnboardingStep:   models.StepAwaitingPinChoice.String(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateAccount
		}
		return nil, fmt.Errorf("unable to create account: %w", err)
	}

	zap.L().Info("Account created", zap.String("account_id", row.Id))
	return row.toModel()
}

func (s *Service) GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error) {
	return s.getAccount(ctx, "handle = ?", handle)
}

func (s *Service) GetAccountById(ctx context.Context, id string) (*models.Account, error) {
	return s.getAccount(ctx, "id = ?", id)
}

func (s *Service) getAccount(ctx context.Context, query string, arg any) (*models.Account, error) {
	var row accountRow
	if err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error; err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("unable to get account: %w", err)
	}
	return row.toModel()
}

func (s *Service) UpdateOnboarding(ctx context.Context, accountId string, update store.OnboardingUpdate) error {
	return s.updateAccount(ctx, accountId, "account onboarding", map[string]any{
		"onboarding_status": string(update.Status),
		"onboarding_step":   update.Step.String(),
	})
}

func (s *Service) UpdatePin(ctx context.Context, accountId string, update store.PinUpdate) error {
	return s.updateAccount(ctx, accountId, "account pin", map[string]any{
		"pin_hash":    update.PinHash,
		"pin_enabled": update.PinEnabled,
	})
}

func (s *Service) IncrementFailedAttempts(ctx context.Context, accountId string) (int, error) {
	var row accountRow
	result := s.db.WithContext(ctx).Model(&row).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "failed_attempts"}}}).
		Where("id = ?", accountId).
		Updates(map[string]any{
			"failed_attempts": gorm.Expr("failed_attempts + 1"),
			"updated_at":      s.now(),
		})
	if err := affected(result, "failed attempts"); err != nil {
		return 0, err
	}
	return row.FailedAttempts, nil
}

// SetLockedUntil only extends the lock, never shortens an existing one
func (s *Service) SetLockedUntil(ctx context.Context, accountId string, until time.Time) error {
	err := s.db.WithContext(ctx).Model(&accountRow{}).
		Where("id = ? AND (locked_until IS NULL OR locked_until < ?)", accountId, until).
		Updates(map[string]any{"locked_until": until, "updated_at": s.now()}).Error
	if err != nil {
		return fmt.Errorf("unable to set lock: %w", err)
	}
	return nil
}

func (s *Service) ResetFailedAttempts(ctx context.Context, accountId string) error {
	return s.updateAccount(ctx, accountId, "failed attempts", map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
	})
}

func (s *Service) updateAccount(ctx context.Context, accountId, what string, values map[string]any) error {
	values["updated_at"] = s.now()
	result := s.db.WithContext(ctx).Model(&accountRow{}).Where("id = ?", accountId).Updates(values)
	return affected(result, what)
}

// CreateWallets inserts every wallet of the account and sets its PIN in a
// single transaction
func (s *Service) CreateWallets(ctx context.Context, accountId string, params store.ProvisionParams) ([]models.Wallet, error) {
	now := s.now()
	rows := make([]walletRow, len(params.Wallets))
	for i, w := range params.Wallets {
		rows[i] = walletRow{
			Id:              uuid.New().String(),
			AccountId:       accountId,
			Family:          string(w.Family),
			Address:         w.Address,
			DerivationIndex: w.DerivationIndex,
			DerivationPath:  w.DerivationPath,
			EncryptedSeed:   w.EncryptedSeed,
			Salt:            w.Salt,
			IsDefault:       w.IsDefault,
			CreatedAt:       now,
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if params.Replace {
			if err := tx.Where("account_id = ?", accountId).Delete(&walletRow{}).Error; err != nil {
				return fmt.Errorf("unable to drop previous wallets: %w", err)
			}
		}
		for i := range rows {
			if err := tx.Create(&rows[i]).Error; err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("wallet for %s already exists: %w", rows[i].Family, store.ErrDuplicateAccount)
				}
				return fmt.Errorf("unable to insert %s wallet: %w", rows[i].Family, err)
			}
		}
		result := tx.Model(&accountRow{}).Where("id = ?", accountId).Updates(map[string]any{
			"pin_hash":    params.Pin.PinHash,
			"pin_enabled": params.Pin.PinEnabled,
			"updated_at":  now,
		})
		return affected(result, "account pin")
	})
	if err != nil {
		return nil, err
	}

	created := make([]models.Wallet, len(rows))
	for i := range rows {
		created[i] = rows[i].toModel()
	}
	zap.L().Info("Wallets created",
		zap.String("account_id", accountId),
		zap.Int("count", len(created)))
	return created, nil
}

func (s *Service) GetWallets(ctx context.Context, accountId string) ([]models.Wallet, error) {
	var rows []walletRow
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountId).
		Order("is_default DESC").Order("family").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("unable to query wallets: %w", err)
	}

	var wallets []models.Wallet
	for i := range rows {
		wallets = append(wallets, rows[i].toModel())
	}
	return wallets, nil
}

func (s *Service) GetWallet(ctx context.Context, accountId string, family models.ChainFamily) (*models.Wallet, error) {
	var row walletRow
	err := s.db.WithContext(ctx).Where("account_id = ? AND family = ?", accountId, string(family)).First(&row).Error
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("unable to get wallet: %w", err)
	}
	w := row.toModel()
	return &w, nil
}
