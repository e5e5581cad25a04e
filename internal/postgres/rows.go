package postgres

import (
	"time"

	"chatwallet/internal/models"

	"github.com/shopspring/decimal"
)

type accountRow struct {
	Id               string `gorm:"primaryKey;size:36"`
	Handle           string `gorm:"uniqueIndex;size:64;not null"`
	DisplayName      string `gorm:"size:255;not null;default:''"`
	PinHash          string `gorm:"size:255;not null;default:''"`
	PinEnabled       bool   `gorm:"not null;default:false"`
	FailedAttempts   int    `gorm:"not null;default:0"`
	LockedUntil      *time.Time
	OnboardingStatus string `gorm:"size:16;not null"`
	OnboardingStep   string `gorm:"size:32;not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (accountRow) TableName() string { return "accounts" }

func (r *accountRow) toModel() (*models.Account, error) {
	step, err := models.ParseOnboardingStep(r.OnboardingStep)
	if err != nil {
		return nil, err
	}
	return &models.Account{
		Id:               r.Id,
		Handle:           r.Handle,
		DisplayName:      r.DisplayName,
		PinHash:          r.PinHash,
		PinEnabled:       r.PinEnabled,
		FailedAttempts:   r.FailedAttempts,
		LockedUntil:      utcPtr(r.LockedUntil),
		OnboardingStatus: models.OnboardingStatus(r.OnboardingStatus),
		OnboardingStep:   step,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}, nil
}

type walletRow struct {
	Id              string `gorm:"primaryKey;size:36"`
	AccountId       string `gorm:"size:36;not null;uniqueIndex:idx_wallets_account_family,priority:1"`
	Family          string `gorm:"size:16;not null;uniqueIndex:idx_wallets_account_family,priority:2"`
	Address         string `gorm:"size:128;not null;index"`
	DerivationIndex uint32 `gorm:"not null"`
	DerivationPath  string `gorm:"size:64;not null"`
	EncryptedSeed   string `gorm:"type:text;not null"`
	Salt            string `gorm:"size:64;not null"`
	IsDefault       bool   `gorm:"not null;default:false"`
	CreatedAt       time.Time
}

func (walletRow) TableName() string { return "wallets" }

func (r *walletRow) toModel() models.Wallet {
	return models.Wallet{
		Id:              r.Id,
		AccountId:       r.AccountId,
		Family:          models.ChainFamily(r.Family),
		Address:         r.Address,
		DerivationIndex: r.DerivationIndex,
		DerivationPath:  r.DerivationPath,
		EncryptedSeed:   r.EncryptedSeed,
		Salt:            r.Salt,
		IsDefault:       r.IsDefault,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type sessionRow struct {
	Id        string    `gorm:"primaryKey;size:36"`
	Handle    string    `gorm:"uniqueIndex;size:64;not null"`
	AccountId string    `gorm:"size:36;not null"`
	Step      string    `gorm:"size:32;not null"`
	Context   string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "sessions" }

func (r *sessionRow) toModel() (*models.Session, error) {
	step, err := models.ParseStep(r.Step)
	if err != nil {
		return nil, err
	}
	fc, err := models.DecodeFlowContext(r.Context)
	if err != nil {
		return nil, err
	}
	return &models.Session{
		Id:        r.Id,
		Handle:    r.Handle,
		AccountId: r.AccountId,
		Step:      step,
		Context:   fc,
		ExpiresAt: r.ExpiresAt.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

type transactionRow struct {
	Seq           int64           `gorm:"autoIncrement;not null"`
	Id            string          `gorm:"primaryKey;size:36"`
	AccountId     string          `gorm:"size:36;not null;index:idx_transactions_account_created,priority:1"`
	Family        string          `gorm:"size:16;not null"`
	Type          string          `gorm:"size:16;not null"`
	FromAddress   string          `gorm:"size:128;not null"`
	ToAddress     string          `gorm:"size:128;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric;not null"`
	TokenSymbol   string          `gorm:"size:16;not null"`
	TokenAddress  string          `gorm:"size:128;not null;default:''"`
	TokenDecimals int32           `gorm:"not null;default:0"`
	ToTokenSymbol string          `gorm:"size:16;not null;default:''"`
	Hash          string          `gorm:"uniqueIndex;size:128;not null"`
	Status        string          `gorm:"size:16;not null;index"`
	BlockNumber   uint64          `gorm:"not null;default:0"`
	GasUsed       uint64          `gorm:"not null;default:0"`
	ErrorMessage  string          `gorm:"type:text;not null;default:''"`
	CreatedAt     time.Time       `gorm:"index:idx_transactions_account_created,priority:2"`
	UpdatedAt     time.Time
}

func (transactionRow) TableName() string { return "transactions" }

func (r *transactionRow) toModel() models.TransactionRecord {
	return models.TransactionRecord{
		Id:            r.Id,
		AccountId:     r.AccountId,
		Family:        models.ChainFamily(r.Family),
		Type:          models.TransactionType(r.Type),
		FromAddress:   r.FromAddress,
		ToAddress:     r.ToAddress,
		Amount:        r.Amount,
		TokenSymbol:   r.TokenSymbol,
		TokenAddress:  r.TokenAddress,
		TokenDecimals: r.TokenDecimals,
		ToTokenSymbol: r.ToTokenSymbol,
		Hash:          r.Hash,
		Status:        models.TransactionStatus(r.Status),
		BlockNumber:   r.BlockNumber,
		GasUsed:       r.GasUsed,
		ErrorMessage:  r.ErrorMessage,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
