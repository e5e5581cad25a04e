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

	"chatwallet/internal/models"
	"chatwallet/internal/store"

	"go.uber.org/zap"
)

var ErrAccountNotFound = errors.New("account not found")

// AccountSummary is the operator view of one account
type AccountSummary struct {
	Account      *models.Account
	Wallets      []models.Wallet
	Transactions []models.TransactionRecord
}

// GetAccountSummary returns the wallets and paginated transaction history of
// the account registered for handle
func (s *Service) GetAccountSummary(ctx context.Context, handle string, limit, offset int) (*AccountSummary, error) {
	if handle == "" {
		return nil, fmt.Errorf("handle is required")
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	account, err := s.db.GetAccountByHandle(ctx, handle)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		zap.L().Error("Failed to get account",
			zap.String("handle", models.MaskHandle(handle)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve account")
	}

	wallets, err := s.db.GetWallets(ctx, account.Id)
	if err != nil {
		zap.L().Error("Failed to get wallets", zap.String("account_id", account.Id), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve wallets")
	}

	transactions, err := s.db.GetTransactionHistory(ctx, account.Id, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("account_id", account.Id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve transaction history")
	}

	return &AccountSummary{
		Account:      account,
		Wallets:      wallets,
		Transactions: transactions,
	}, nil
}
