package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chatwallet/internal/httpclient"

	"github.com/blocto/solana-go-sdk/types"
)

// WrappedSolMint is the mint Jupiter uses for native SOL
const WrappedSolMint = "So11111111111111111111111111111111111111112"

// JupiterClient builds swap transactions through the Jupiter aggregator.
type JupiterClient struct {
	baseURL string
	http    *http.Client
}

func NewJupiterClient(baseURL string, client *http.Client) *JupiterClient {
	return &JupiterClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

// Quote returns the raw quote document; it is passed back verbatim to /swap.
func (c *JupiterClient) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create quote request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote failed: %w", err)
	}
	defer resp.Body.Close()

	var quote json.RawMessage
	if err := httpclient.DecodeJSON(resp, &quote); err != nil {
		return nil, fmt.Errorf("jupiter quote failed: %w", err)
	}
	return quote, nil
}

type jupiterSwapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

type jupiterSwapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// SwapTransaction asks Jupiter for the unsigned swap transaction.
func (c *JupiterClient) SwapTransaction(ctx context.Context, quote json.RawMessage, userPublicKey string) (types.Transaction, error) {
	body, err := json.Marshal(jupiterSwapRequest{
		QuoteResponse:    quote,
		UserPublicKey:    userPublicKey,
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return types.Transaction{}, fmt.Errorf("unable to encode swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return types.Transaction{}, fmt.Errorf("unable to create swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("jupiter swap failed: %w", err)
	}
	defer resp.Body.Close()

	var out jupiterSwapResponse
	if err := httpclient.DecodeJSON(resp, &out); err != nil {
		return types.Transaction{}, fmt.Errorf("jupiter swap failed: %w", err)
	}
	if out.SwapTransaction == "" {
		return types.Transaction{}, errors.New("jupiter swap returned no transaction")
	}

	raw, err := base64.StdEncoding.DecodeString(out.SwapTransaction)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("unable to decode swap transaction: %w", err)
	}
	tx, err := types.TransactionDeserialize(raw)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("unable to parse swap transaction: %w", err)
	}
	return tx, nil
}

func jupiterMint(t Token) string {
	if t.IsNative() {
		return WrappedSolMint
	}
	return t.Address
}
