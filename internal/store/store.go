package store

import (
	"context"
	"errors"
	"time"

	"chatwallet/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound             = errors.New("record not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrDuplicateAccount     = errors.New("account already exists for handle")
	// ErrStepMismatch is returned when a conditional session update finds a
	// different step than expected, i.e. another message already claimed it.
	ErrStepMismatch = errors.New("session step changed concurrently")
)

// CreateAccountParams contains the parameters for registering a new handle.
type CreateAccountParams struct {
	Handle      string
	DisplayName string
}

// OnboardingUpdate mirrors onboarding progress onto the account record.
type OnboardingUpdate struct {
	Status models.OnboardingStatus
	Step   models.OnboardingStep
}

// PinUpdate sets the PIN capability of an account.
type PinUpdate struct {
	PinHash    string
	PinEnabled bool
}

// CreateWalletParams describes one chain family wallet of an account.
type CreateWalletParams struct {
	Family          models.ChainFamily
	Address         string
	DerivationIndex uint32
	DerivationPath  string
	EncryptedSeed   string
	Salt            string
	IsDefault       bool
}

// ProvisionParams is the custody material written when onboarding creates
// wallets. The PIN capability is written in the same transaction.
type ProvisionParams struct {
	Pin     PinUpdate
	Wallets []CreateWalletParams
	// Replace drops wallets left by an unfinished onboarding first
	Replace bool
}

// SessionParams contains a full session row written by ReplaceSession.
type SessionParams struct {
	Handle    string
	AccountId string
	Step      models.ConversationStep
	Context   models.FlowContext
	ExpiresAt time.Time
}

// SessionUpdate contains the new values written by UpdateSession.
type SessionUpdate struct {
	Step      models.ConversationStep
	Context   models.FlowContext
	ExpiresAt time.Time
}

// RecordTransactionParams describes the outcome of one chain submission.
type RecordTransactionParams struct {
	AccountId     string
	Family        models.ChainFamily
	Type          models.TransactionType
	FromAddress   string
	ToAddress     string
	Amount        string
	TokenSymbol   string
	TokenAddress  string
	TokenDecimals int32
	ToTokenSymbol string
	Hash          string
	Status        models.TransactionStatus
	ErrorMessage  string
}

// StatusUpdate moves a PENDING record to a terminal status.
type StatusUpdate struct {
	Hash         string
	Status       models.TransactionStatus
	BlockNumber  uint64
	GasUsed      uint64
	ErrorMessage string
}

// RecordStore is the persistence contract of the orchestrator. Implemented by
// the SQLite backend (database.Service) and the Postgres backend (postgres.Service).
type RecordStore interface {
	// Account operations
	CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error)
	GetAccountById(ctx context.Context, id string) (*models.Account, error)
	UpdateOnboarding(ctx context.Context, accountId string, update OnboardingUpdate) error
	UpdatePin(ctx context.Context, accountId string, update PinUpdate) error
	// IncrementFailedAttempts atomically increments the counter and returns the new value.
	IncrementFailedAttempts(ctx context.Context, accountId string) (int, error)
	// SetLockedUntil sets the lock only when no later lock already exists.
	SetLockedUntil(ctx context.Context, accountId string, until time.Time) error
	ResetFailedAttempts(ctx context.Context, accountId string) error

	// Wallet operations
	// CreateWallets inserts all wallets of an account and its PIN capability
	// in one transaction.
	CreateWallets(ctx context.Context, accountId string, params ProvisionParams) ([]models.Wallet, error)
	GetWallets(ctx context.Context, accountId string) ([]models.Wallet, error)
	GetWallet(ctx context.Context, accountId string, family models.ChainFamily) (*models.Wallet, error)

	// Session operations
	// ReplaceSession deletes any session for the handle and inserts a new one atomically.
	ReplaceSession(ctx context.Context, params SessionParams) (*models.Session, error)
	GetSession(ctx context.Context, handle string) (*models.Session, error)
	UpdateSession(ctx context.Context, handle string, update SessionUpdate) (*models.Session, error)
	// CompareAndSwapSessionStep moves the session from expected to next in a
	// single conditional update, returning ErrStepMismatch if the step differs.
	CompareAndSwapSessionStep(ctx context.Context, handle string, expected, next models.ConversationStep) error
	DeleteSession(ctx context.Context, handle string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Transaction operations
	RecordTransaction(ctx context.Context, params RecordTransactionParams) (*models.TransactionRecord, error)
	// UpdateTransactionStatus only transitions PENDING records; it reports whether a row changed.
	UpdateTransactionStatus(ctx context.Context, update StatusUpdate) (bool, error)
	GetTransactionByHash(ctx context.Context, hash string) (*models.TransactionRecord, error)
	GetTransactionHistory(ctx context.Context, accountId string, limit, offset int) ([]models.TransactionRecord, error)
	GetPendingTransactions(ctx context.Context, limit int) ([]models.TransactionRecord, error)

	Ping(ctx context.Context) error
	Close()
}
