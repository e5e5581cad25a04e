package postgres

import (
	"context"
	"fmt"

	"chatwallet/internal/models"
	"chatwallet/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecordTransaction persists a chain submission. A second record for the same
// hash returns store.ErrDuplicateTransaction and leaves the first untouched.
func (s *Service) RecordTransaction(ctx context.Context, params store.RecordTransactionParams) (*models.TransactionRecord, error) {
	if params.Hash == "" {
		return nil, fmt.Errorf("transaction hash cannot be empty")
	}
	amount, err := decimal.NewFromString(params.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", params.Amount, err)
	}

	status := params.Status
	if status == "" {
		status = models.StatusPending
	}

	now := s.now()
	row := transactionRow{
		Id:            uuid.New().String(),
		AccountId:     params.AccountId,
		Family:        string(params.Family),
		Type:          string(params.Type),
		FromAddress:   params.FromAddress,
		ToAddress:     params.ToAddress,
		Amount:        amount,
		TokenSymbol:   params.TokenSymbol,
		TokenAddress:  params.TokenAddress,
		TokenDecimals: params.TokenDecimals,
		ToTokenSymbol: params.ToTokenSymbol,
		Hash:          params.Hash,
		Status:        string(status),
		ErrorMessage:  params.ErrorMessage,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&transactionRow{}).Where("hash = ?", params.Hash).Count(&count).Error; err != nil {
			return fmt.Errorf("unable to check duplicate transaction: %w", err)
		}
		if count > 0 {
			zap.L().Info("Duplicate transaction detected, skipping", zap.String("hash", params.Hash))
			return store.ErrDuplicateTransaction
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicateTransaction
			}
			return fmt.Errorf("unable to insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	record := row.toModel()
	zap.L().Info("Transaction recorded",
		zap.String("account_id", record.AccountId),
		zap.String("family", string(record.Family)),
		zap.String("type", string(record.Type)),
		zap.String("hash", record.Hash),
		zap.String("amount", record.Amount.String()))
	return &record, nil
}

// UpdateTransactionStatus only transitions PENDING records
func (s *Service) UpdateTransactionStatus(ctx context.Context, update store.StatusUpdate) (bool, error) {
	if update.Status == models.StatusPending {
		return false, fmt.Errorf("cannot transition transaction back to %s", models.StatusPending)
	}
	result := s.db.WithContext(ctx).Model(&transactionRow{}).
		Where("hash = ? AND status = ?", update.Hash, string(models.StatusPending)).
		Updates(map[string]any{
			"status":        string(update.Status),
			"block_number":  update.BlockNumber,
			"gas_used":      update.GasUsed,
			"error_message": update.ErrorMessage,
			"updated_at":    s.now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("unable to update transaction status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) GetTransactionByHash(ctx context.Context, hash string) (*models.TransactionRecord, error) {
	var row transactionRow
	if err := s.db.WithContext(ctx).Where("hash = ?", hash).First(&row).Error; err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("unable to get transaction: %w", err)
	}
	record := row.toModel()
	return &record, nil
}

func (s *Service) GetTransactionHistory(ctx context.Context, accountId string, limit, offset int) ([]models.TransactionRecord, error) {
	return s.findTransactions(s.db.WithContext(ctx).
		Where("account_id = ?", accountId).
		Order("created_at DESC").Order("seq DESC").
		Limit(limit).Offset(offset))
}

func (s *Service) GetPendingTransactions(ctx context.Context, limit int) ([]models.TransactionRecord, error) {
	return s.findTransactions(s.db.WithContext(ctx).
		Where("status = ?", string(models.StatusPending)).
		Order("created_at").
		Limit(limit))
}

func (s *Service) findTransactions(query *gorm.DB) ([]models.TransactionRecord, error) {
	var rows []transactionRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("unable to query transactions: %w", err)
	}
	var records []models.TransactionRecord
	for i := range rows {
		records = append(records, rows[i].toModel())
	}
	return records, nil
}
