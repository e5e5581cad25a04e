package flow

import (
	"context"
	"fmt"

	"chatwallet/internal/intent"
	"chatwallet/internal/metrics"
	"chatwallet/internal/models"
	"chatwallet/internal/session"
	"chatwallet/internal/vault"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// balance reads the native balance of every wallet concurrently. A chain that
// fails or times out is reported as unavailable without failing the others.
func (o *Orchestrator) balance(ctx context.Context, account *models.Account) (string, error) {
	wallets, err := o.store.GetWallets(ctx, account.Id)
	if err != nil {
		return "", err
	}

	lines := make([]balanceLine, len(wallets))
	var g errgroup.Group
	for i, w := range wallets {
		g.Go(func() error {
			line := balanceLine{family: w.Family}
			defer func() { lines[i] = line }()

			sdk, err := o.chains.Get(w.Family)
			if err != nil {
				line.err = err
				return nil
			}
			callCtx, cancel := context.WithTimeout(ctx, o.chainTimeout)
			defer cancel()

			bal, err := sdk.NativeBalance(callCtx, w.Address)
			if err != nil {
				zap.L().Warn("Unable to read balance",
					zap.String("family", string(w.Family)),
					zap.Error(err))
				line.err = err
				return nil
			}
			line.amount = bal.Formatted.String()
			line.symbol = sdk.NativeToken().Symbol
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return balances(lines), nil
}

func (o *Orchestrator) receive(ctx context.Context, account *models.Account) (string, error) {
	wallets, err := o.store.GetWallets(ctx, account.Id)
	if err != nil {
		return "", err
	}
	return receiveAddresses(wallets), nil
}

func (o *Orchestrator) history(ctx context.Context, account *models.Account) (string, error) {
	records, err := o.store.GetTransactionHistory(ctx, account.Id, o.historyLimit, 0)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return replyNoHistory, nil
	}
	return historyLines(records), nil
}

// startExport reveals the recovery phrase. PIN accounts go through PIN_ENTRY
// first, exactly like a transfer.
func (o *Orchestrator) startExport(ctx context.Context, account *models.Account, e intent.Entities) (string, error) {
	metrics.FlowStarted(string(models.FlowExport))
	if !account.PinEnabled {
		mnemonic, ok, err := o.openSeed(ctx, account, vault.DerivationSecret(account, ""))
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("unable to open seed of PIN-less account %s", account.Id)
		}
		zap.L().Info("Recovery phrase exported", zap.String("account_id", account.Id))
		return exportSeed(mnemonic, true), nil
	}

	if _, err := o.sessions.Create(ctx, session.CreateParams{
		Handle:    account.Handle,
		AccountId: account.Id,
		Step:      models.StepPinEntry,
		Context:   models.NewExportFlow(models.ExportContext{Family: models.ChainFamily(e[intent.EntityChain])}),
	}); err != nil {
		return "", err
	}
	return replyEnterPin, nil
}
