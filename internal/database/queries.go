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

const (
	accountColumns = `id, handle, display_name, pin_hash, pin_enabled, failed_attempts, locked_until,
		onboarding_status, onboarding_step, created_at, updated_at`

	walletColumns = `id, account_id, family, address, derivation_index, derivation_path,
		encrypted_seed, salt, is_default, created_at`

	sessionColumns = `id, handle, account_id, step, context, expires_at, created_at, updated_at`

	transactionColumns = `id, account_id, family, type, from_address, to_address, amount,
		token_symbol, token_address, token_decimals, to_token_symbol, hash, status,
		block_number, gas_used, error_message, created_at, updated_at`

	// Account queries
	queryInsertAccount = `
		INSERT INTO accounts (id, handle, display_name, onboarding_status, onboarding_step, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + accountColumns

	queryGetAccountByHandle = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE handle = ?`

	queryGetAccountById = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = ?`

	queryUpdateOnboarding = `
		UPDATE accounts
		SET onboarding_status = ?, onboarding_step = ?, updated_at = ?
		WHERE id = ?`

	queryUpdatePin = `
		UPDATE accounts
		SET pin_hash = ?, pin_enabled = ?, updated_at = ?
		WHERE id = ?`

	queryIncrementFailedAttempts = `
		UPDATE accounts
		SET failed_attempts = failed_attempts + 1, updated_at = ?
		WHERE id = ?
		RETURNING failed_attempts`

	// Only extends the lock, never shortens an existing one
	querySetLockedUntil = `
		UPDATE accounts
		SET locked_until = ?, updated_at = ?
		WHERE id = ? AND (locked_until IS NULL OR locked_until < ?)`

	queryResetFailedAttempts = `
		UPDATE accounts
		SET failed_attempts = 0, locked_until = NULL, updated_at = ?
		WHERE id = ?`

	// Wallet queries
	queryInsertWallet = `
		INSERT INTO wallets (id, account_id, family, address, derivation_index, derivation_path,
			encrypted_seed, salt, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + walletColumns

	queryDeleteWallets = `
		DELETE FROM wallets
		WHERE account_id = ?`

	queryGetWallets = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE account_id = ?
		ORDER BY is_default DESC, family`

	queryGetWallet = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE account_id = ? AND family = ?`

	// Session queries
	queryDeleteSession = `
		DELETE FROM sessions WHERE handle = ?`

	queryInsertSession = `
		INSERT INTO sessions (id, handle, account_id, step, context, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + sessionColumns

	queryGetSession = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE handle = ?`

	queryUpdateSession = `
		UPDATE sessions
		SET step = ?, context = ?, expires_at = ?, updated_at = ?
		WHERE handle = ?
		RETURNING ` + sessionColumns

	queryCompareAndSwapStep = `
		UPDATE sessions
		SET step = ?, updated_at = ?
		WHERE handle = ? AND step = ?`

	queryDeleteExpiredSessions = `
		DELETE FROM sessions WHERE expires_at < ?`

	// Transaction queries
	queryCheckDuplicateTransaction = `
		SELECT id FROM transactions WHERE hash = ?`

	queryInsertTransaction = `
		INSERT INTO transactions (id, account_id, family, type, from_address, to_address, amount,
			token_symbol, token_address, token_decimals, to_token_symbol, hash, status,
			error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + transactionColumns

	// PENDING is the only non-terminal status
	queryUpdateTransactionStatus = `
		UPDATE transactions
		SET status = ?, block_number = ?, gas_used = ?, error_message = ?, updated_at = ?
		WHERE hash = ? AND status = 'PENDING'`

	queryGetTransactionByHash = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE hash = ?`

	queryGetTransactionHistory = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	queryGetPendingTransactions = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'PENDING'
		ORDER BY created_at
		LIMIT ?`
)
