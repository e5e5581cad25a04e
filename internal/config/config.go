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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"chatwallet/internal/models"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Load reads the configuration from the environment. Unset values fall back
// to defaults; only MASTER_ENCRYPTION_KEY is mandatory.
func Load() (*models.Config, error) {
	d := durationReader{}
	connMaxLifetime := d.read("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	connMaxIdleTime := d.read("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	pingTimeout := d.read("DB_PING_TIMEOUT", 5*time.Second)
	sessionTTL := d.read("SESSION_TTL", 10*time.Minute)
	lockoutDuration := d.read("LOCKOUT_DURATION", 5*time.Minute)
	chainTimeout := d.read("CHAIN_CALL_TIMEOUT", 30*time.Second)
	oracleTimeout := d.read("ORACLE_TIMEOUT", 10*time.Second)
	sweepInterval := d.read("SWEEP_INTERVAL", time.Minute)
	reconcileInterval := d.read("RECONCILE_INTERVAL", 30*time.Second)
	shutdownWait := d.read("SHUTDOWN_TIMEOUT", 30*time.Second)
	if d.err != nil {
		return nil, d.err
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Backend:         getEnvString("DATABASE_BACKEND", BackendSQLite),
			Path:            getEnvString("DATABASE_PATH", "chatwallet.db"),
			PostgresDSN:     os.Getenv("POSTGRES_DSN"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Vault: models.VaultConfig{
			MasterKey:        os.Getenv("MASTER_ENCRYPTION_KEY"),
			Pbkdf2Iterations: getEnvInt("PBKDF2_ITERATIONS", 10000),
			BcryptCost:       getEnvInt("BCRYPT_COST", 10),
		},
		Session: models.SessionConfig{
			TTL: sessionTTL,
		},
		Guard: models.GuardConfig{
			Threshold: getEnvInt("LOCKOUT_THRESHOLD", 3),
			Duration:  lockoutDuration,
		},
		Chains: models.ChainsConfig{
			EvmRpcUrl:       os.Getenv("EVM_RPC_URL"),
			EvmChainId:      int64(getEnvInt("EVM_CHAIN_ID", 1)),
			SolanaRpcUrl:    os.Getenv("SOLANA_RPC_URL"),
			LifiApiUrl:      getEnvString("LIFI_API_URL", "https://li.quest/v1"),
			JupiterApiUrl:   getEnvString("JUPITER_API_URL", "https://quote-api.jup.ag/v6"),
			SwapSlippageBps: getEnvInt("SWAP_SLIPPAGE_BPS", 50),
			CallTimeout:     chainTimeout,
			TokensFile:      getEnvString("TOKENS_FILE", "tokens.yaml"),
		},
		Oracle: models.OracleConfig{
			ApiUrl:        os.Getenv("ORACLE_API_URL"),
			ApiKey:        os.Getenv("ORACLE_API_KEY"),
			Model:         getEnvString("ORACLE_MODEL", "gpt-4o-mini"),
			Timeout:       oracleTimeout,
			RatePerSecond: getEnvInt("ORACLE_RATE_PER_SECOND", 5),
		},
		Transport: models.TransportConfig{
			AccountSid: os.Getenv("TRANSPORT_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TRANSPORT_AUTH_TOKEN"),
			From:       os.Getenv("TRANSPORT_FROM"),
			WebhookURL: os.Getenv("TRANSPORT_WEBHOOK_URL"),
		},
		Formance: models.FormanceConfig{
			StackURL:     os.Getenv("FORMANCE_STACK_URL"),
			ClientID:     os.Getenv("FORMANCE_CLIENT_ID"),
			ClientSecret: os.Getenv("FORMANCE_CLIENT_SECRET"),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "chatwallet"),
		},
		Listener: models.ListenerConfig{
			SweepInterval:     sweepInterval,
			ReconcileInterval: reconcileInterval,
			ReconcileBatch:    getEnvInt("RECONCILE_BATCH", 50),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("HTTP_ADDR", ":8080"),
			ShutdownTimeout: shutdownWait,
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	switch cfg.Database.Backend {
	case BackendSQLite:
	case BackendPostgres:
		if cfg.Database.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when DATABASE_BACKEND=%s", BackendPostgres)
		}
	default:
		return fmt.Errorf("invalid DATABASE_BACKEND %q: expected %s or %s", cfg.Database.Backend, BackendSQLite, BackendPostgres)
	}
	if cfg.Vault.MasterKey == "" {
		return fmt.Errorf("MASTER_ENCRYPTION_KEY is required")
	}
	if cfg.Guard.Threshold <= 0 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be positive, got %d", cfg.Guard.Threshold)
	}
	if cfg.Chains.SwapSlippageBps < 0 || cfg.Chains.SwapSlippageBps > 10000 {
		return fmt.Errorf("SWAP_SLIPPAGE_BPS must be between 0 and 10000, got %d", cfg.Chains.SwapSlippageBps)
	}
	return nil
}

// durationReader keeps the first parse error so Load can check once.
type durationReader struct {
	err error
}

func (r *durationReader) read(key string, defaultValue time.Duration) time.Duration {
	v, err := getEnvDuration(key, defaultValue)
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
