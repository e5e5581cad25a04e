package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatwallet/internal/models"
	"chatwallet/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanTransaction(row rowScanner) (*models.TransactionRecord, error) {
	var t models.TransactionRecord
	var amount string
	err := row.Scan(
		&t.Id, &t.AccountId, &t.Family, &t.Type, &t.FromAddress, &t.ToAddress, &amount,
		&t.TokenSymbol, &t.TokenAddress, &t.TokenDecimals, &t.ToTokenSymbol, &t.Hash, &t.Status,
		&t.BlockNumber, &t.GasUsed, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	return &t, nil
}

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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Warn("Failed to rollback transaction record", zap.Error(err))
		}
	}()

	var existingId string
	err = tx.QueryRowContext(ctx, queryCheckDuplicateTransaction, params.Hash).Scan(&existingId)
	if err == nil {
		zap.L().Info("Duplicate transaction detected, skipping",
			zap.String("hash", params.Hash),
			zap.String("existing_id", existingId))
		return nil, store.ErrDuplicateTransaction
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unable to check duplicate transaction: %w", err)
	}

	status := params.Status
	if status == "" {
		status = models.StatusPending
	}

	now := s.now()
	row := tx.QueryRowContext(ctx, queryInsertTransaction,
		uuid.New().String(), params.AccountId, params.Family, params.Type, params.FromAddress, params.ToAddress,
		amount.String(), params.TokenSymbol, params.TokenAddress, params.TokenDecimals, params.ToTokenSymbol,
		params.Hash, status, params.ErrorMessage, now, now)
	record, err := scanTransaction(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateTransaction
		}
		return nil, fmt.Errorf("unable to insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("unable to commit transaction record: %w", err)
	}

	zap.L().Info("Transaction recorded",
		zap.String("account_id", record.AccountId),
		zap.String("family", string(record.Family)),
		zap.String("type", string(record.Type)),
		zap.String("hash", record.Hash),
		zap.String("amount", record.Amount.String()))
	return record, nil
}

func (s *Service) UpdateTransactionStatus(ctx context.Context, update store.StatusUpdate) (bool, error) {
	if update.Status == models.StatusPending {
		return false, fmt.Errorf("cannot transition transaction back to %s", models.StatusPending)
	}
	result, err := s.db.ExecContext(ctx, queryUpdateTransactionStatus,
		update.Status, update.BlockNumber, update.GasUsed, update.ErrorMessage, s.now(), update.Hash)
	if err != nil {
		return false, fmt.Errorf("unable to update transaction status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to read affected rows: %w", err)
	}
	return rows > 0, nil
}

func (s *Service) GetTransactionByHash(ctx context.Context, hash string) (*models.TransactionRecord, error) {
	record, err := scanTransaction(s.db.QueryRowContext(ctx, queryGetTransactionByHash, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("unable to get transaction: %w", err)
	}
	return record, nil
}

func (s *Service) GetTransactionHistory(ctx context.Context, accountId string, limit, offset int) ([]models.TransactionRecord, error) {
	return s.queryTransactions(ctx, queryGetTransactionHistory, accountId, limit, offset)
}

func (s *Service) GetPendingTransactions(ctx context.Context, limit int) ([]models.TransactionRecord, error) {
	return s.queryTransactions(ctx, queryGetPendingTransactions, limit)
}

func (s *Service) queryTransactions(ctx context.Context, query string, args ...any) ([]models.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query transactions: %w", err)
	}
	defer closeRows(rows)

	var records []models.TransactionRecord
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan transaction: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return records, nil
}
