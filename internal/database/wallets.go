package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatwallet/internal/models"
	"chatwallet/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(
		&w.Id, &w.AccountId, &w.Family, &w.Address, &w.DerivationIndex, &w.DerivationPath,
		&w.EncryptedSeed, &w.Salt, &w.IsDefault, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWallets inserts every wallet of the account and sets its PIN in a
// single transaction so custody material is never half-written.
func (s *Service) CreateWallets(ctx context.Context, accountId string, params store.ProvisionParams) ([]models.Wallet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Warn("Failed to rollback wallet transaction", zap.Error(err))
		}
	}()

	now := s.now()
	if params.Replace {
		if _, err := tx.ExecContext(ctx, queryDeleteWallets, accountId); err != nil {
			return nil, fmt.Errorf("unable to drop previous wallets: %w", err)
		}
	}

	created := make([]models.Wallet, 0, len(params.Wallets))
	for _, w := range params.Wallets {
		row := tx.QueryRowContext(ctx, queryInsertWallet,
			uuid.New().String(), accountId, w.Family, w.Address, w.DerivationIndex, w.DerivationPath,
			w.EncryptedSeed, w.Salt, w.IsDefault, now)
		wallet, err := scanWallet(row)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("wallet for %s already exists: %w", w.Family, store.ErrDuplicateAccount)
			}
			return nil, fmt.Errorf("unable to insert %s wallet: %w", w.Family, err)
		}
		created = append(created, *wallet)
	}

	result, err := tx.ExecContext(ctx, queryUpdatePin, params.Pin.PinHash, params.Pin.PinEnabled, now, accountId)
	if err != nil {
		return nil, fmt.Errorf("unable to update account pin: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("unable to read affected rows: %w", err)
	} else if n == 0 {
		return nil, store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("unable to commit wallets: %w", err)
	}

	zap.L().Info("Wallets created",
		zap.String("account_id", accountId),
		zap.Int("count", len(created)))
	return created, nil
}

func (s *Service) GetWallets(ctx context.Context, accountId string) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, queryGetWallets, accountId)
	if err != nil {
		return nil, fmt.Errorf("unable to query wallets: %w", err)
	}
	defer closeRows(rows)

	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan wallet: %w", err)
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallets: %w", err)
	}
	return wallets, nil
}

func (s *Service) GetWallet(ctx context.Context, accountId string, family models.ChainFamily) (*models.Wallet, error) {
	w, err := scanWallet(s.db.QueryRowContext(ctx, queryGetWallet, accountId, family))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("unable to get wallet: %w", err)
	}
	return w, nil
}
