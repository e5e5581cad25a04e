package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"chatwallet/internal/models"

	"github.com/blocto/solana-go-sdk/client"
	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/associated_token_account"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/blocto/solana-go-sdk/rpc"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// SolanaBackend is the subset of the blocto RPC client the Solana wallet uses.
type SolanaBackend interface {
	GetBalance(ctx context.Context, base58Addr string) (uint64, error)
	GetAccountInfo(ctx context.Context, base58Addr string) (client.AccountInfo, error)
	GetTokenAccountBalance(ctx context.Context, base58Addr string) (client.TokenAmount, error)
	GetLatestBlockhash(ctx context.Context) (rpc.GetLatestBlockhashValue, error)
	SendTransaction(ctx context.Context, tx types.Transaction) (string, error)
	GetSignatureStatus(ctx context.Context, signature string) (*rpc.SignatureStatus, error)
}

// Solana implements WalletSDK for Solana. Swaps are routed through Jupiter.
type Solana struct {
	backend SolanaBackend
	swapper *JupiterClient
}

func DialSolana(rpcURL string, swapper *JupiterClient) *Solana {
	return NewSolana(client.NewClient(rpcURL), swapper)
}

func NewSolana(backend SolanaBackend, swapper *JupiterClient) *Solana {
	return &Solana{backend: backend, swapper: swapper}
}

func (s *Solana) Family() models.ChainFamily { return models.FamilySolana }

func (s *Solana) NativeToken() Token { return SolToken }

func (s *Solana) ValidateAddress(address string) bool { return IsSolanaAddress(address) }

func (s *Solana) DeriveKeypair(seed []byte, index uint32) (*Keypair, error) {
	return DeriveSolanaKeypair(seed, index)
}

func (s *Solana) NativeBalance(ctx context.Context, address string) (Balance, error) {
	if !IsSolanaAddress(address) {
		return Balance{}, ErrInvalidAddress
	}
	lamports, err := s.backend.GetBalance(ctx, address)
	if err != nil {
		return Balance{}, fmt.Errorf("unable to get balance: %w", err)
	}
	raw := new(big.Int).SetUint64(lamports)
	return Balance{Formatted: FromBaseUnits(raw, SolToken.Decimals), Raw: raw}, nil
}

// TokenBalance reads the owner's associated token account; a missing account
// is a zero balance.
func (s *Solana) TokenBalance(ctx context.Context, address string, tok Token) (Balance, error) {
	if tok.IsNative() {
		return s.NativeBalance(ctx, address)
	}
	if !IsSolanaAddress(address) {
		return Balance{}, ErrInvalidAddress
	}
	ata, _, err := solcommon.FindAssociatedTokenAddress(
		solcommon.PublicKeyFromString(address),
		solcommon.PublicKeyFromString(tok.Address))
	if err != nil {
		return Balance{}, fmt.Errorf("unable to find token account: %w", err)
	}

	info, err := s.backend.GetAccountInfo(ctx, ata.ToBase58())
	if err != nil {
		return Balance{}, fmt.Errorf("unable to get token account: %w", err)
	}
	zero := Balance{Formatted: decimal.Zero, Raw: big.NewInt(0)}
	if info.Owner == (solcommon.PublicKey{}) {
		return zero, nil
	}

	amount, err := s.backend.GetTokenAccountBalance(ctx, ata.ToBase58())
	if err != nil {
		return Balance{}, fmt.Errorf("unable to get token balance: %w", err)
	}
	raw := new(big.Int).SetUint64(amount.Amount)
	return Balance{Formatted: FromBaseUnits(raw, tok.Decimals), Raw: raw}, nil
}

func (s *Solana) TransferNative(ctx context.Context, from *Keypair, to string, amount decimal.Decimal) (TxResult, error) {
	if !IsSolanaAddress(to) {
		return TxResult{}, ErrInvalidAddress
	}
	account, err := types.AccountFromBytes(from.PrivateKey)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid private key: %w", err)
	}
	ix := system.Transfer(system.TransferParam{
		From:   account.PublicKey,
		To:     solcommon.PublicKeyFromString(to),
		Amount: ToBaseUnits(amount, SolToken.Decimals).Uint64(),
	})
	return s.submit(ctx, account, ix)
}

// TransferToken sends an SPL token, creating the recipient's associated
// token account when it does not exist yet.
func (s *Solana) TransferToken(ctx context.Context, from *Keypair, to string, tok Token, amount decimal.Decimal) (TxResult, error) {
	if tok.IsNative() {
		return s.TransferNative(ctx, from, to, amount)
	}
	if !IsSolanaAddress(to) {
		return TxResult{}, ErrInvalidAddress
	}
	account, err := types.AccountFromBytes(from.PrivateKey)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid private key: %w", err)
	}

	mint := solcommon.PublicKeyFromString(tok.Address)
	recipient := solcommon.PublicKeyFromString(to)
	fromATA, _, err := solcommon.FindAssociatedTokenAddress(account.PublicKey, mint)
	if err != nil {
		return TxResult{}, fmt.Errorf("unable to find token account: %w", err)
	}
	toATA, _, err := solcommon.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return TxResult{}, fmt.Errorf("unable to find token account: %w", err)
	}

	return s.submit(ctx, account,
		associated_token_account.CreateIdempotent(associated_token_account.CreateIdempotentParam{
			Funder:                 account.PublicKey,
			Owner:                  recipient,
			Mint:                   mint,
			AssociatedTokenAccount: toATA,
		}),
		token.TransferChecked(token.TransferCheckedParam{
			From:     fromATA,
			To:       toATA,
			Mint:     mint,
			Auth:     account.PublicKey,
			Signers:  []solcommon.PublicKey{},
			Amount:   ToBaseUnits(amount, tok.Decimals).Uint64(),
			Decimals: uint8(tok.Decimals),
		}),
	)
}

func (s *Solana) Swap(ctx context.Context, from *Keypair, fromToken, toToken Token, amount decimal.Decimal, slippageBps int) (TxResult, error) {
	if s.swapper == nil {
		return TxResult{}, errors.New("swaps are not configured")
	}
	account, err := types.AccountFromBytes(from.PrivateKey)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid private key: %w", err)
	}

	quote, err := s.swapper.Quote(ctx, jupiterMint(fromToken), jupiterMint(toToken),
		ToBaseUnits(amount, fromToken.Decimals).Uint64(), slippageBps)
	if err != nil {
		return TxResult{}, err
	}
	tx, err := s.swapper.SwapTransaction(ctx, quote, account.PublicKey.ToBase58())
	if err != nil {
		return TxResult{}, err
	}

	msg, err := tx.Message.Serialize()
	if err != nil {
		return TxResult{}, fmt.Errorf("unable to serialize swap message: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return TxResult{}, errors.New("swap transaction has no signature slot")
	}
	tx.Signatures[0] = account.Sign(msg)

	return s.broadcast(ctx, tx)
}

func (s *Solana) TransactionStatus(ctx context.Context, hash string) (TxStatus, error) {
	status, err := s.backend.GetSignatureStatus(ctx, hash)
	if err != nil {
		return TxStatus{}, fmt.Errorf("unable to get signature status: %w", err)
	}
	if status == nil {
		return TxStatus{Status: models.StatusPending, Unknown: true}, nil
	}
	if status.Err != nil {
		return TxStatus{
			Status:      models.StatusFailed,
			BlockNumber: status.Slot,
			Error:       fmt.Sprintf("%v", status.Err),
		}, nil
	}
	if status.ConfirmationStatus != nil &&
		(*status.ConfirmationStatus == rpc.CommitmentConfirmed || *status.ConfirmationStatus == rpc.CommitmentFinalized) {
		return TxStatus{Status: models.StatusConfirmed, BlockNumber: status.Slot}, nil
	}
	return TxStatus{Status: models.StatusPending, BlockNumber: status.Slot}, nil
}

func (s *Solana) submit(ctx context.Context, signer types.Account, instructions ...types.Instruction) (TxResult, error) {
	recent, err := s.backend.GetLatestBlockhash(ctx)
	if err != nil {
		return TxResult{}, fmt.Errorf("unable to get recent blockhash: %w", err)
	}
	tx, err := types.NewTransaction(types.NewTransactionParam{
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        signer.PublicKey,
			RecentBlockhash: recent.Blockhash,
			Instructions:    instructions,
		}),
		Signers: []types.Account{signer},
	})
	if err != nil {
		return TxResult{}, fmt.Errorf("unable to build transaction: %w", err)
	}
	return s.broadcast(ctx, tx)
}

// broadcast sends a signed transaction. The first signature is the
// transaction id, so it is known before the node answers.
func (s *Solana) broadcast(ctx context.Context, tx types.Transaction) (TxResult, error) {
	result := TxResult{Hash: base58.Encode(tx.Signatures[0])}
	if _, err := s.backend.SendTransaction(ctx, tx); err != nil {
		return result, fmt.Errorf("%w: %v", ErrBroadcast, err)
	}
	return result, nil
}
