package flow

import (
	"context"

	"chatwallet/internal/metrics"
	"chatwallet/internal/models"
	"chatwallet/internal/store"

	"go.uber.org/zap"
)

// SweepExpiredSessions deletes every expired session. Safe to call on a timer.
func (o *Orchestrator) SweepExpiredSessions(ctx context.Context) (int64, error) {
	count, err := o.sessions.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	metrics.Maintenance("sweep", int(count))
	if count > 0 {
		zap.L().Info("Expired sessions swept", zap.Int64("count", count))
	}
	return count, nil
}

// ReconcilePending asks the chain for the status of up to limit PENDING
// records and settles the ones that reached a terminal status. Records the
// node has never seen are failed once they are older than the stale window.
// It returns how many records changed.
func (o *Orchestrator) ReconcilePending(ctx context.Context, limit int) (int, error) {
	records, err := o.store.GetPendingTransactions(ctx, limit)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return settled, err
		}

		sdk, err := o.chains.Get(record.Family)
		if err != nil {
			zap.L().Warn("No wallet SDK for pending transaction",
				zap.String("hash", record.Hash),
				zap.String("family", string(record.Family)))
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, o.chainTimeout)
		status, err := sdk.TransactionStatus(callCtx, record.Hash)
		cancel()
		if err != nil {
			zap.L().Warn("Unable to get transaction status",
				zap.String("hash", record.Hash),
				zap.Error(err))
			continue
		}

		update := store.StatusUpdate{
			Hash:         record.Hash,
			Status:       status.Status,
			BlockNumber:  status.BlockNumber,
			GasUsed:      status.GasUsed,
			ErrorMessage: status.Error,
		}
		if status.Status == models.StatusPending {
			if !status.Unknown || o.now().Sub(record.CreatedAt) < o.staleAfter {
				continue
			}
			update.Status = models.StatusFailed
			update.ErrorMessage = "transaction never reached the network"
		}

		changed, err := o.store.UpdateTransactionStatus(ctx, update)
		if err != nil {
			zap.L().Error("Unable to update transaction status",
				zap.String("hash", record.Hash),
				zap.Error(err))
			continue
		}
		if changed {
			settled++
			zap.L().Info("Transaction settled",
				zap.String("hash", record.Hash),
				zap.String("status", string(update.Status)))
			o.mirrorSettlement(ctx, &record, update.Status)
		}
	}

	metrics.Maintenance("reconcile", settled)
	return settled, nil
}

func (o *Orchestrator) mirrorSettlement(ctx context.Context, record *models.TransactionRecord, status models.TransactionStatus) {
	if o.journal == nil {
		return
	}
	if err := o.journal.RecordSettlement(ctx, record, status); err != nil {
		zap.L().Warn("Unable to mirror settlement to ledger",
			zap.String("hash", record.Hash),
			zap.Error(err))
	}
}
