package formance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatwallet/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// All metadata is set inside the script so the ledger transaction is fully
// self-describing. Wallet accounts may overdraft: the chain, not the mirror,
// holds the real balance.
const numscriptTransfer = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $event_type
  string $hash
  string $family
  string $account_id
  string $amount_human
  string $token_symbol
  string $to_token_symbol
  string $status
  string $message_id
  string $channel
}

send [$asset $amount] (
  source = $source allowing unbounded overdraft
  destination = $destination
)

set_tx_meta("event_type", $event_type)
set_tx_meta("hash", $hash)
set_tx_meta("family", $family)
set_tx_meta("account_id", $account_id)
set_tx_meta("amount_human", $amount_human)
set_tx_meta("token_symbol", $token_symbol)
set_tx_meta("to_token_symbol", $to_token_symbol)
set_tx_meta("status", $status)
set_tx_meta("message_id", $message_id)
set_tx_meta("channel", $channel)
`

// RegisterWallets stores the wallet addresses as metadata of each wallet account.
func (s *Service) RegisterWallets(ctx context.Context, account *models.Account, wallets []models.Wallet) error {
	for _, w := range wallets {
		_, err := s.client.Ledger.V2.AddMetadataToAccount(ctx, operations.V2AddMetadataToAccountRequest{
			Ledger:  s.ledger,
			Address: walletAccount(account.Id, w.Family),
			RequestBody: map[string]string{
				"account_id":      account.Id,
				"address":         w.Address,
				"derivation_path": w.DerivationPath,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to register %s wallet: %w", w.Family, err)
		}
	}

	zap.L().Info("Wallets registered in Formance",
		zap.String("account_id", account.Id),
		zap.Int("count", len(wallets)))
	return nil
}

// RecordTransfer posts one submitted transaction, referenced by its hash so a
// replay is a no-op.
func (s *Service) RecordTransfer(ctx context.Context, account *models.Account, record *models.TransactionRecord) error {
	postTx, err := transferPosting(account, record, models.GetInboundMessageContext(ctx))
	if err != nil {
		return err
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Transaction already mirrored", zap.String("hash", record.Hash))
			return nil
		}
		return fmt.Errorf("error recording transfer: %w", err)
	}

	zap.L().Info("Transfer recorded in Formance",
		zap.String("account_id", account.Id),
		zap.String("type", string(record.Type)),
		zap.String("hash", record.Hash),
		zap.String("amount", record.Amount.String()))
	return nil
}

// RecordSettlement reverts the mirrored posting of a failed transaction and
// tags confirmed ones.
func (s *Service) RecordSettlement(ctx context.Context, record *models.TransactionRecord, status models.TransactionStatus) error {
	pageSize := int64(1)
	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$match": map[string]any{
				"metadata[hash]": record.Hash,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to find transaction by hash %s: %w", record.Hash, err)
	}
	if len(resp.V2TransactionsCursorResponse.Cursor.Data) == 0 {
		zap.L().Warn("Settled transaction was never mirrored", zap.String("hash", record.Hash))
		return nil
	}
	tx := resp.V2TransactionsCursorResponse.Cursor.Data[0]

	if status != models.StatusFailed {
		_, err := s.client.Ledger.V2.AddMetadataOnTransaction(ctx, operations.V2AddMetadataOnTransactionRequest{
			Ledger:      s.ledger,
			ID:          tx.ID,
			RequestBody: map[string]string{"status": string(status)},
		})
		if err != nil {
			return fmt.Errorf("failed to tag transaction %s: %w", record.Hash, err)
		}
		return nil
	}

	if tx.Reverted {
		zap.L().Info("Transaction already reverted", zap.String("hash", record.Hash))
		return nil
	}
	_, err = s.client.Ledger.V2.RevertTransaction(ctx, operations.V2RevertTransactionRequest{
		Ledger:          s.ledger,
		ID:              tx.ID,
		AtEffectiveDate: ptrBool(true),
	})
	if err != nil {
		if isConflictError(err) || isAlreadyRevertedError(err) {
			zap.L().Info("Transaction already reverted (race)", zap.String("hash", record.Hash))
			return nil
		}
		return fmt.Errorf("failed to revert transaction %s: %w", record.Hash, err)
	}

	zap.L().Info("Failed transaction reverted in Formance",
		zap.String("hash", record.Hash),
		zap.String("tx_id", tx.ID.String()))
	return nil
}

// transferPosting builds the ledger transaction of a record.
func transferPosting(account *models.Account, record *models.TransactionRecord, imc *models.InboundMessageContext) (shared.V2PostTransaction, error) {
	if record.Hash == "" {
		return shared.V2PostTransaction{}, fmt.Errorf("transaction hash cannot be empty")
	}

	var eventType, destination string
	switch record.Type {
	case models.TransactionSend:
		eventType = "chat_send"
		destination = externalAccount(record.Family, record.ToAddress)
	case models.TransactionSwap:
		eventType = "chat_swap"
		destination = swapAccount(record.Family)
	default:
		return shared.V2PostTransaction{}, fmt.Errorf("unsupported transaction type %q", record.Type)
	}

	precision := precisionFor(record.TokenSymbol, record.TokenDecimals)
	vars := map[string]string{
		"asset":           formanceAsset(strings.ToUpper(record.TokenSymbol), record.TokenDecimals),
		"amount":          record.Amount.Shift(int32(precision)).BigInt().String(),
		"source":          walletAccount(account.Id, record.Family),
		"destination":     destination,
		"event_type":      eventType,
		"hash":            record.Hash,
		"family":          string(record.Family),
		"account_id":      account.Id,
		"amount_human":    record.Amount.String(),
		"token_symbol":    record.TokenSymbol,
		"to_token_symbol": record.ToTokenSymbol,
		"status":          string(record.Status),
		"message_id":      "",
		"channel":         "",
	}
	postTx := shared.V2PostTransaction{
		Reference: strPtr(record.Hash),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptTransfer,
			Vars:  vars,
		},
	}

	if imc != nil {
		vars["message_id"] = imc.MessageId
		vars["channel"] = imc.Channel
	}
	if !record.CreatedAt.IsZero() {
		ts := record.CreatedAt.UTC().Truncate(time.Microsecond)
		postTx.Timestamp = &ts
	}
	return postTx, nil
}
