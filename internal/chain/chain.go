package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"chatwallet/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedFamily = errors.New("unsupported chain family")
	ErrInvalidAddress    = errors.New("invalid address for chain family")
	ErrUnknownToken      = errors.New("unknown token")
	// ErrBroadcast wraps failures after the transaction was signed; the
	// TxResult hash is set and the transaction may still land.
	ErrBroadcast = errors.New("broadcast failed")
)

// Token is a fungible asset on one chain family. Native tokens have no address.
type Token struct {
	Symbol   string
	Address  string
	Decimals int32
}

func (t Token) IsNative() bool { return t.Address == "" }

// Balance is an on-chain balance in display units and base units.
type Balance struct {
	Formatted decimal.Decimal
	Raw       *big.Int
}

// TxResult is the outcome of a submission. Hash may be set together with an
// error when signing succeeded but broadcast did not complete.
type TxResult struct {
	Hash string
}

// Keypair is the signing material of one wallet, derived from the seed.
type Keypair struct {
	Family     models.ChainFamily
	Address    string
	Path       string
	Index      uint32
	PrivateKey []byte
}

// TxStatus is the on-chain status reported to the reconciler.
type TxStatus struct {
	Status      models.TransactionStatus
	BlockNumber uint64
	GasUsed     uint64
	Error       string
	// Unknown is set when the node has no record of the hash at all
	Unknown bool
}

// WalletSDK is the per chain family wallet capability consumed by the orchestrator.
type WalletSDK interface {
	Family() models.ChainFamily
	NativeToken() Token
	ValidateAddress(address string) bool
	DeriveKeypair(seed []byte, index uint32) (*Keypair, error)
	NativeBalance(ctx context.Context, address string) (Balance, error)
	TokenBalance(ctx context.Context, address string, token Token) (Balance, error)
	TransferNative(ctx context.Context, from *Keypair, to string, amount decimal.Decimal) (TxResult, error)
	TransferToken(ctx context.Context, from *Keypair, to string, token Token, amount decimal.Decimal) (TxResult, error)
	Swap(ctx context.Context, from *Keypair, fromToken, toToken Token, amount decimal.Decimal, slippageBps int) (TxResult, error)
	TransactionStatus(ctx context.Context, hash string) (TxStatus, error)
}

// Registry resolves SDKs by family.
type Registry struct {
	sdks map[models.ChainFamily]WalletSDK
}

func NewRegistry(sdks ...WalletSDK) *Registry {
	r := &Registry{sdks: make(map[models.ChainFamily]WalletSDK)}
	for _, sdk := range sdks {
		r.sdks[sdk.Family()] = sdk
	}
	return r
}

func (r *Registry) Get(family models.ChainFamily) (WalletSDK, error) {
	sdk, ok := r.sdks[family]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFamily, family)
	}
	return sdk, nil
}

// Families returns the registered families in display order.
func (r *Registry) Families() []models.ChainFamily {
	var out []models.ChainFamily
	for _, f := range models.Families {
		if _, ok := r.sdks[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

var familyAliases = map[string]models.ChainFamily{
	"evm":      models.FamilyEVM,
	"eth":      models.FamilyEVM,
	"ethereum": models.FamilyEVM,
	"base":     models.FamilyEVM,
	"polygon":  models.FamilyEVM,
	"sol":      models.FamilySolana,
	"solana":   models.FamilySolana,
}

// ParseFamily maps user text such as "solana" or "ETH" to a family.
func ParseFamily(text string) (models.ChainFamily, bool) {
	f, ok := familyAliases[strings.ToLower(strings.TrimSpace(text))]
	return f, ok
}

// FindFamily returns the first family alias mentioned as a word in text.
func FindFamily(text string) (models.ChainFamily, bool) {
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:")
		if f, ok := familyAliases[word]; ok {
			return f, true
		}
	}
	return "", false
}

// ToBaseUnits converts a display amount to integer base units.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts integer base units to a display amount.
func FromBaseUnits(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals)
}
