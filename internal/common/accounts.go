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

package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatwallet/internal/models"
	"chatwallet/internal/store"

	"go.uber.org/zap"
)

// AccountInfo represents simplified account information for command-line utilities
type AccountInfo struct {
	Id          string
	Handle      string
	DisplayName string
	Status      models.OnboardingStatus
}

// InitializeAccounts looks up the accounts of a comma separated handle list.
// Unknown handles are logged and skipped.
func InitializeAccounts(ctx context.Context, st store.RecordStore, handles string, logger *zap.Logger) ([]AccountInfo, error) {
	var accounts []AccountInfo

	for _, handle := range strings.Split(handles, ",") {
		handle = strings.TrimSpace(handle)
		if handle == "" {
			continue
		}
		account, err := st.GetAccountByHandle(ctx, handle)
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("No account for handle", zap.String("handle", models.MaskHandle(handle)))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get account: %w", err)
		}
		accounts = append(accounts, AccountInfo{
			Id:          account.Id,
			Handle:      account.Handle,
			DisplayName: account.DisplayName,
			Status:      account.OnboardingStatus,
		})
	}

	logger.Info("Retrieved accounts", zap.Int("count", len(accounts)))
	return accounts, nil
}
