package models

import "time"

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	Vault     VaultConfig
	Session   SessionConfig
	Guard     GuardConfig
	Chains    ChainsConfig
	Oracle    OracleConfig
	Transport TransportConfig
	Formance  FormanceConfig
	Listener  ListenerConfig
	Server    ServerConfig
}

// DatabaseConfig holds record store connection settings
type DatabaseConfig struct {
	Backend         string // sqlite or postgres
	Path            string
	PostgresDSN     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// VaultConfig holds custody settings. MasterKey is never logged.
type VaultConfig struct {
	MasterKey        string
	Pbkdf2Iterations int
	BcryptCost       int
}

type SessionConfig struct {
	TTL time.Duration
}

type GuardConfig struct {
	Threshold int
	Duration  time.Duration
}

// ChainsConfig holds RPC and swap aggregator endpoints per chain family
type ChainsConfig struct {
	EvmRpcUrl       string
	EvmChainId      int64
	SolanaRpcUrl    string
	LifiApiUrl      string
	JupiterApiUrl   string
	SwapSlippageBps int
	CallTimeout     time.Duration
	TokensFile      string
}

// OracleConfig holds the NLP intent oracle endpoint settings
type OracleConfig struct {
	ApiUrl        string
	ApiKey        string
	Model         string
	Timeout       time.Duration
	RatePerSecond int
}

// TransportConfig holds the outbound chat messaging credentials.
// Inbound webhook signatures are verified when WebhookURL is set.
type TransportConfig struct {
	AccountSid string
	AuthToken  string
	From       string
	WebhookURL string
}

// FormanceConfig holds the optional ledger mirror settings.
// The mirror is disabled when StackURL is empty.
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// ListenerConfig holds background maintenance settings
type ListenerConfig struct {
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
	ReconcileBatch    int
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}
