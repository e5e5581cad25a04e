package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OnboardingStatus string

const (
	OnboardingPending    OnboardingStatus = "PENDING"
	OnboardingInProgress OnboardingStatus = "IN_PROGRESS"
	OnboardingCompleted  OnboardingStatus = "COMPLETED"
)

// ChainFamily is the account model a wallet belongs to.
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "EVM"
	FamilySolana ChainFamily = "SOLANA"
)

// Families lists every supported chain family in display order.
var Families = []ChainFamily{FamilyEVM, FamilySolana}

type TransactionType string

const (
	TransactionSend    TransactionType = "SEND"
	TransactionReceive TransactionType = "RECEIVE"
	TransactionSwap    TransactionType = "SWAP"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusConfirmed TransactionStatus = "CONFIRMED"
	StatusFailed    TransactionStatus = "FAILED"
)

// Account is a chat user identified by their external handle
type Account struct {
	Id          string `db:"id"`
	Handle      string `db:"handle"`
	DisplayName string `db:"display_name"`
	PinHash     string `db:"pin_hash"`
	// PinEnabled false means the account opted out of a PIN and its handle
	// is used as the key derivation secret. This is a low-security mode.
	PinEnabled       bool             `db:"pin_enabled"`
	FailedAttempts   int              `db:"failed_attempts"`
	LockedUntil      *time.Time       `db:"locked_until"`
	OnboardingStatus OnboardingStatus `db:"onboarding_status"`
	OnboardingStep   OnboardingStep   `db:"onboarding_step"`
	CreatedAt        time.Time        `db:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at"`
}

// Onboarded reports whether the account finished onboarding
func (a *Account) Onboarded() bool {
	return a.OnboardingStatus == OnboardingCompleted
}

// Wallet is the per chain family custody record of an account.
// All wallets of an account encrypt the same mnemonic.
type Wallet struct {
	Id              string      `db:"id"`
	AccountId       string      `db:"account_id"`
	Family          ChainFamily `db:"family"`
	Address         string      `db:"address"`
	DerivationIndex uint32      `db:"derivation_index"`
	DerivationPath  string      `db:"derivation_path"`
	EncryptedSeed   string      `db:"encrypted_seed"`
	Salt            string      `db:"salt"`
	IsDefault       bool        `db:"is_default"`
	CreatedAt       time.Time   `db:"created_at"`
}

// TransactionRecord is the append-only result of a chain submission
type TransactionRecord struct {
	Id            string            `db:"id"`
	AccountId     string            `db:"account_id"`
	Family        ChainFamily       `db:"family"`
	Type          TransactionType   `db:"type"`
	FromAddress   string            `db:"from_address"`
	ToAddress     string            `db:"to_address"`
	Amount        decimal.Decimal   `db:"amount"`
	TokenSymbol   string            `db:"token_symbol"`
	TokenAddress  string            `db:"token_address"`
	TokenDecimals int32             `db:"token_decimals"`
	ToTokenSymbol string            `db:"to_token_symbol"`
	Hash          string            `db:"hash"`
	Status        TransactionStatus `db:"status"`
	BlockNumber   uint64            `db:"block_number"`
	GasUsed       uint64            `db:"gas_used"`
	ErrorMessage  string            `db:"error_message"`
	CreatedAt     time.Time         `db:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at"`
}

// Session is the live conversation state of a handle
type Session struct {
	Id        string           `db:"id"`
	Handle    string           `db:"handle"`
	AccountId string           `db:"account_id"`
	Step      ConversationStep `db:"step"`
	Context   FlowContext      `db:"context"`
	ExpiresAt time.Time        `db:"expires_at"`
	CreatedAt time.Time        `db:"created_at"`
	UpdatedAt time.Time        `db:"updated_at"`
}

// Expired reports whether the session is past its expiry at now
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
