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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"chatwallet/internal/api"
	"chatwallet/internal/common"
	"chatwallet/internal/config"

	"go.uber.org/zap"
)

type historyStats struct {
	totalAccounts        int
	totalTransactions    int
	accountsWithActivity int
}

func processAccount(ctx context.Context, report *common.HistoryReport, account common.AccountInfo, apiService *api.Service, limit int) (int, error) {
	summary, err := apiService.GetAccountSummary(ctx, account.Handle, limit, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to get account summary: %w", err)
	}

	report.Account(account, summary.Wallets, len(summary.Transactions))
	for i, tx := range summary.Transactions {
		report.Transaction(tx, i == len(summary.Transactions)-1)
	}

	return len(summary.Transactions), nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	handlesFlag := flag.String("handle", "", "Comma separated chat handles to report on (required)")
	limitFlag := flag.Int("limit", 20, "Transactions per account (max 100)")
	flag.Parse()

	if *handlesFlag == "" {
		logger.Fatal("Missing -handle flag")
	}

	logger.Info("Starting history query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Read-only: no chain or custody services needed
	st, err := common.InitializeStoreOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize record store", zap.Error(err))
	}
	defer st.Close()

	accounts, err := common.InitializeAccounts(ctx, st, *handlesFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize accounts", zap.Error(err))
	}

	apiService := api.NewService(api.Config{Store: st})

	report := common.NewHistoryReport(os.Stdout)
	report.Header("ACCOUNT HISTORY REPORT")

	stats := historyStats{}
	for _, account := range accounts {
		stats.totalAccounts++
		count, err := processAccount(ctx, report, account, apiService, *limitFlag)
		if err != nil {
			logger.Error("Failed to process account",
				zap.String("account_id", account.Id),
				zap.Error(err))
			continue
		}
		if count > 0 {
			stats.accountsWithActivity++
			stats.totalTransactions += count
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts with activity (%d transactions across %d accounts queried)",
		stats.accountsWithActivity, stats.totalTransactions, stats.totalAccounts)
	report.Footer(summary)

	logger.Info("History query completed",
		zap.Int("accounts_queried", stats.totalAccounts),
		zap.Int("accounts_with_activity", stats.accountsWithActivity),
		zap.Int("total_transactions", stats.totalTransactions))
}
