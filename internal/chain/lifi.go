package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chatwallet/internal/httpclient"
)

// LifiNativeToken is the placeholder address LI.FI uses for native gas tokens
const LifiNativeToken = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

const lifiIntegrator = "chatwallet"

type LifiQuoteParams struct {
	ChainID     int64
	FromToken   string
	ToToken     string
	FromAmount  string
	FromAddress string
	SlippageBps int
}

type LifiQuote struct {
	Id       string `json:"id"`
	Tool     string `json:"tool"`
	Estimate struct {
		FromAmount      string `json:"fromAmount"`
		ToAmount        string `json:"toAmount"`
		ToAmountMin     string `json:"toAmountMin"`
		ApprovalAddress string `json:"approvalAddress"`
	} `json:"estimate"`
	TransactionRequest struct {
		Data     string `json:"data"`
		To       string `json:"to"`
		Value    string `json:"value"`
		GasLimit string `json:"gasLimit"`
		GasPrice string `json:"gasPrice"`
	} `json:"transactionRequest"`
}

// LifiClient requests same-chain swap quotes from the LI.FI API.
type LifiClient struct {
	baseURL string
	http    *http.Client
}

func NewLifiClient(baseURL string, client *http.Client) *LifiClient {
	return &LifiClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (c *LifiClient) Quote(ctx context.Context, p LifiQuoteParams) (*LifiQuote, error) {
	params := url.Values{}
	chainID := strconv.FormatInt(p.ChainID, 10)
	params.Set("fromChain", chainID)
	params.Set("toChain", chainID)
	params.Set("fromToken", p.FromToken)
	params.Set("toToken", p.ToToken)
	params.Set("fromAmount", p.FromAmount)
	params.Set("fromAddress", p.FromAddress)
	params.Set("integrator", lifiIntegrator)
	params.Set("order", "CHEAPEST")
	params.Set("slippage", strconv.FormatFloat(float64(p.SlippageBps)/10000, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create quote request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lifi quote failed: %w", err)
	}
	defer resp.Body.Close()

	var quote LifiQuote
	if err := httpclient.DecodeJSON(resp, &quote); err != nil {
		return nil, fmt.Errorf("lifi quote failed: %w", err)
	}
	if quote.TransactionRequest.To == "" {
		return nil, errors.New("invalid lifi quote: missing transaction request")
	}
	return &quote, nil
}

func lifiTokenAddress(t Token) string {
	if t.IsNative() {
		return LifiNativeToken
	}
	return t.Address
}
