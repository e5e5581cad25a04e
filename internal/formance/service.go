package formance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatwallet/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

const DefaultLedgerName = "chatwallet"

// assetPrecision maps native asset symbols to their decimal precision. Used
// when a record carries no token decimals.
var assetPrecision = map[string]int{
	"USDC": 6,
	"USDT": 6,
	"ETH":  18,
	"SOL":  9,
}

// Service mirrors wallets and chain submissions into a Formance Stack ledger.
type Service struct {
	client *v3.Formance
	ledger string
}

// NewService connects to the stack and creates the ledger if it doesn't
// already exist.
func NewService(ctx context.Context, cfg models.FormanceConfig) (*Service, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = DefaultLedgerName
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	svc := &Service{client: client, ledger: cfg.LedgerName}

	if err := svc.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance service initialized", zap.String("ledger", cfg.LedgerName))
	return svc, nil
}

// ensureLedger creates the ledger if it does not already exist.
func (s *Service) ensureLedger(ctx context.Context) error {
	_, err := s.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: s.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "chatwallet",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", s.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", s.ledger))
	return nil
}

// Close is a no-op for the Formance backend (HTTP client needs no teardown).
func (s *Service) Close() {}

// ---------- helpers ----------

// formanceAsset returns the Formance UMN notation, e.g. "USDC/6".
func formanceAsset(symbol string, decimals int32) string {
	return fmt.Sprintf("%s/%d", symbol, precisionFor(symbol, decimals))
}

func precisionFor(symbol string, decimals int32) int {
	if decimals > 0 {
		return int(decimals)
	}
	if p, ok := assetPrecision[symbol]; ok {
		return p
	}
	return 6
}

// segment makes s usable as one segment of a ledger account address.
func segment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, s)
}

func walletAccount(accountId string, family models.ChainFamily) string {
	return "wallets:" + segment(accountId) + ":" + strings.ToLower(string(family))
}

func externalAccount(family models.ChainFamily, address string) string {
	return "external:" + strings.ToLower(string(family)) + ":" + segment(address)
}

func swapAccount(family models.ChainFamily) string {
	return "swaps:" + strings.ToLower(string(family)) + ":outgoing"
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

// isAlreadyRevertedError checks whether a Formance SDK error is ALREADY_REVERT.
func isAlreadyRevertedError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumAlreadyRevert
}

func strPtr(s string) *string { return &s }
func ptrBool(v bool) *bool    { return &v }
