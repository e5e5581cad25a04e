package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"chatwallet/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	selectorBalanceOf = common.FromHex("0x70a08231")
	selectorTransfer  = common.FromHex("0xa9059cbb")
	selectorApprove   = common.FromHex("0x095ea7b3")
	selectorAllowance = common.FromHex("0xdd62ed3e")
)

const (
	gasBufferPercent  = 120
	defaultSwapGas    = 300000
	receiptPollPeriod = 2 * time.Second
)

// EVMBackend is the subset of ethclient.Client the EVM wallet uses.
type EVMBackend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// EVM implements WalletSDK for EIP-155 chains. Swaps are routed through LI.FI.
type EVM struct {
	backend EVMBackend
	chainID *big.Int
	swapper *LifiClient
}

// DialEVM connects to rpcURL and returns an EVM wallet for chainID.
func DialEVM(ctx context.Context, rpcURL string, chainID int64, swapper *LifiClient) (*EVM, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to evm rpc: %w", err)
	}
	return NewEVM(client, chainID, swapper), nil
}

func NewEVM(backend EVMBackend, chainID int64, swapper *LifiClient) *EVM {
	return &EVM{backend: backend, chainID: big.NewInt(chainID), swapper: swapper}
}

func (e *EVM) Family() models.ChainFamily { return models.FamilyEVM }

func (e *EVM) NativeToken() Token { return EtherToken }

func (e *EVM) ValidateAddress(address string) bool { return IsEVMAddress(address) }

func (e *EVM) DeriveKeypair(seed []byte, index uint32) (*Keypair, error) {
	return DeriveEVMKeypair(seed, index)
}

func (e *EVM) NativeBalance(ctx context.Context, address string) (Balance, error) {
	if !IsEVMAddress(address) {
		return Balance{}, ErrInvalidAddress
	}
	wei, err := e.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return Balance{}, fmt.Errorf("unable to get balance: %w", err)
	}
	return Balance{Formatted: FromBaseUnits(wei, EtherToken.Decimals), Raw: wei}, nil
}

func (e *EVM) TokenBalance(ctx context.Context, address string, token Token) (Balance, error) {
	if token.IsNative() {
		return e.NativeBalance(ctx, address)
	}
	if !IsEVMAddress(address) {
		return Balance{}, ErrInvalidAddress
	}
	contract := common.HexToAddress(token.Address)
	data := append(append([]byte{}, selectorBalanceOf...), common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)...)
	out, err := e.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return Balance{}, fmt.Errorf("unable to call balanceOf: %w", err)
	}
	raw := new(big.Int).SetBytes(out)
	return Balance{Formatted: FromBaseUnits(raw, token.Decimals), Raw: raw}, nil
}

func (e *EVM) TransferNative(ctx context.Context, from *Keypair, to string, amount decimal.Decimal) (TxResult, error) {
	if !IsEVMAddress(to) {
		return TxResult{}, ErrInvalidAddress
	}
	toAddr := common.HexToAddress(to)
	return e.send(ctx, from, toAddr, ToBaseUnits(amount, EtherToken.Decimals), nil, 0)
}

func (e *EVM) TransferToken(ctx context.Context, from *Keypair, to string, token Token, amount decimal.Decimal) (TxResult, error) {
	if token.IsNative() {
		return e.TransferNative(ctx, from, to, amount)
	}
	if !IsEVMAddress(to) {
		return TxResult{}, ErrInvalidAddress
	}
	data := erc20Call(selectorTransfer, common.HexToAddress(to), ToBaseUnits(amount, token.Decimals))
	return e.send(ctx, from, common.HexToAddress(token.Address), big.NewInt(0), data, 0)
}

func (e *EVM) Swap(ctx context.Context, from *Keypair, fromToken, toToken Token, amount decimal.Decimal, slippageBps int) (TxResult, error) {
	if e.swapper == nil {
		return TxResult{}, errors.New("swaps are not configured")
	}
	fromAmount := ToBaseUnits(amount, fromToken.Decimals)
	quote, err := e.swapper.Quote(ctx, LifiQuoteParams{
		ChainID:     e.chainID.Int64(),
		FromToken:   lifiTokenAddress(fromToken),
		ToToken:     lifiTokenAddress(toToken),
		FromAmount:  fromAmount.String(),
		FromAddress: from.Address,
		SlippageBps: slippageBps,
	})
	if err != nil {
		return TxResult{}, err
	}

	if !fromToken.IsNative() && quote.Estimate.ApprovalAddress != "" {
		if err := e.ensureAllowance(ctx, from, fromToken, common.HexToAddress(quote.Estimate.ApprovalAddress), fromAmount); err != nil {
			return TxResult{}, err
		}
	}

	req := quote.TransactionRequest
	value, _ := parseBigInt(req.Value)
	gasLimit := uint64(defaultSwapGas)
	if gl, ok := parseBigInt(req.GasLimit); ok {
		gasLimit = gl.Uint64()
	}
	return e.send(ctx, from, common.HexToAddress(req.To), value, common.FromHex(req.Data), gasLimit)
}

func (e *EVM) TransactionStatus(ctx context.Context, hash string) (TxStatus, error) {
	h := common.HexToHash(hash)
	receipt, err := e.backend.TransactionReceipt(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		_, _, err := e.backend.TransactionByHash(ctx, h)
		if errors.Is(err, ethereum.NotFound) {
			return TxStatus{Status: models.StatusPending, Unknown: true}, nil
		}
		if err != nil {
			return TxStatus{}, fmt.Errorf("unable to get transaction: %w", err)
		}
		return TxStatus{Status: models.StatusPending}, nil
	}
	if err != nil {
		return TxStatus{}, fmt.Errorf("unable to get receipt: %w", err)
	}

	status := TxStatus{GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		status.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		status.Status = models.StatusConfirmed
	} else {
		status.Status = models.StatusFailed
		status.Error = "execution reverted"
	}
	return status, nil
}

func (e *EVM) ensureAllowance(ctx context.Context, from *Keypair, token Token, spender common.Address, amount *big.Int) error {
	owner := common.HexToAddress(from.Address)
	contract := common.HexToAddress(token.Address)

	data := append(append([]byte{}, selectorAllowance...), common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	out, err := e.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("unable to check allowance: %w", err)
	}
	if new(big.Int).SetBytes(out).Cmp(amount) >= 0 {
		return nil
	}

	zap.L().Info("Approving swap spender",
		zap.String("token", token.Symbol),
		zap.String("spender", spender.Hex()))

	res, err := e.send(ctx, from, contract, big.NewInt(0), erc20Call(selectorApprove, spender, amount), 0)
	if err != nil {
		return fmt.Errorf("approve failed: %w", err)
	}
	return e.waitMined(ctx, common.HexToHash(res.Hash))
}

// waitMined polls for a receipt until ctx is done.
func (e *EVM) waitMined(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(receiptPollPeriod)
	defer ticker.Stop()
	for {
		receipt, err := e.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted", hash.Hex())
			}
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("unable to get receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// send signs a legacy transaction and broadcasts it. The hash is returned
// alongside ErrBroadcast when the node rejects or never acknowledges it.
func (e *EVM) send(ctx context.Context, from *Keypair, to common.Address, value *big.Int, data []byte, gasLimit uint64) (TxResult, error) {
	privateKey, err := ethcrypto.ToECDSA(from.PrivateKey)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid private key: %w", err)
	}
	fromAddr := ethcrypto.PubkeyToAddress(privateKey.PublicKey)

	nonce, err := e.backend.PendingNonceAt(ctx, fromAddr)
	if err != nil {
		return TxResult{}, fmt.Errorf("unable to get nonce: %w", err)
	}
	gasPrice, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		return TxResult{}, fmt.Errorf("unable to get gas price: %w", err)
	}
	if gasLimit == 0 {
		estimated, err := e.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  fromAddr,
			To:    &to,
			Value: value,
			Data:  data,
		})
		if err != nil {
			return TxResult{}, fmt.Errorf("gas estimation failed: %w", err)
		}
		gasLimit = estimated * gasBufferPercent / 100
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(e.chainID), privateKey)
	if err != nil {
		return TxResult{}, fmt.Errorf("unable to sign transaction: %w", err)
	}

	result := TxResult{Hash: signedTx.Hash().Hex()}
	if err := e.backend.SendTransaction(ctx, signedTx); err != nil {
		return result, fmt.Errorf("%w: %v", ErrBroadcast, err)
	}
	return result, nil
}

func erc20Call(selector []byte, addr common.Address, amount *big.Int) []byte {
	data := append([]byte{}, selector...)
	data = append(data, common.LeftPadBytes(addr.Bytes(), 32)...)
	return append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
}

func parseBigInt(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), false
	}
	if v, ok := new(big.Int).SetString(s, 10); ok {
		return v, true
	}
	if v, ok := new(big.Int).SetString(s, 0); ok {
		return v, true
	}
	return big.NewInt(0), false
}
