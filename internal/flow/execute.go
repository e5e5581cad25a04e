package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatwallet/internal/chain"
	"chatwallet/internal/intent"
	"chatwallet/internal/metrics"
	"chatwallet/internal/models"
	"chatwallet/internal/session"
	"chatwallet/internal/store"
	"chatwallet/internal/vault"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (o *Orchestrator) confirm(ctx context.Context, account *models.Account, sess *models.Session, text string) (string, error) {
	sc := &intent.SessionContext{Step: sess.Step, Flow: sess.Context}
	if o.resolver.Rules(text, sc).Intent != intent.Confirm {
		return o.reprompt(ctx, account.Handle, replyConfirmRetry)
	}

	if account.PinEnabled {
		if _, err := o.sessions.Update(ctx, account.Handle, session.Patch{Step: models.StepPinEntry}); err != nil {
			return "", err
		}
		return replyEnterPin, nil
	}

	// PIN-less accounts execute on confirmation
	mnemonic, ok, err := o.openSeed(ctx, account, vault.DerivationSecret(account, ""))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("unable to open seed of PIN-less account %s", account.Id)
	}
	if err := o.sessions.Claim(ctx, account.Handle, models.StepConfirm, models.StepIdle); err != nil {
		if errors.Is(err, store.ErrStepMismatch) {
			return replyAlreadyHandled, nil
		}
		return "", err
	}
	return o.finish(ctx, account, sess.Context, mnemonic)
}

// pinEntry authorizes the collected flow. The session is claimed with a
// compare-and-swap before any chain call, so at most one message executes it.
func (o *Orchestrator) pinEntry(ctx context.Context, account *models.Account, sess *models.Session, text string) (string, error) {
	locked, remaining, err := o.guard.IsLocked(ctx, account)
	if err != nil {
		return "", err
	}
	if locked {
		return "", &LockedError{Remaining: remaining}
	}

	if !vault.PinShaped(text) {
		return o.reprompt(ctx, account.Handle, replyPinFormat)
	}

	mnemonic, ok, err := o.openSeed(ctx, account, vault.DerivationSecret(account, text))
	if err != nil {
		return "", err
	}
	metrics.PinAttempt(ok)
	if !ok {
		attempts, err := o.guard.RecordFailure(ctx, account)
		if err != nil {
			return "", err
		}
		locked, remaining, err := o.guard.IsLocked(ctx, account)
		if err != nil {
			return "", err
		}
		if locked {
			// Stay at PIN_ENTRY so the next message reports the lock and resets
			return o.reprompt(ctx, account.Handle, lockedReply(remaining))
		}
		return o.reprompt(ctx, account.Handle, wrongPin(max(o.guard.Threshold()-attempts, 1)))
	}

	if err := o.guard.RecordSuccess(ctx, account); err != nil {
		return "", err
	}
	if err := o.sessions.Claim(ctx, account.Handle, models.StepPinEntry, models.StepIdle); err != nil {
		if errors.Is(err, store.ErrStepMismatch) {
			zap.L().Info("PIN entry already claimed", zap.String("account_id", account.Id))
			return replyAlreadyHandled, nil
		}
		return "", err
	}
	return o.finish(ctx, account, sess.Context, mnemonic)
}

// finish runs the claimed flow and resets the session whatever the outcome.
func (o *Orchestrator) finish(ctx context.Context, account *models.Account, fc models.FlowContext, mnemonic string) (string, error) {
	var reply string
	var err error
	switch fc.Kind {
	case models.FlowSend:
		reply, err = o.executeSend(ctx, account, fc.Send, mnemonic)
	case models.FlowSwap:
		reply, err = o.executeSwap(ctx, account, fc.Swap, mnemonic)
	case models.FlowExport:
		zap.L().Info("Recovery phrase exported", zap.String("account_id", account.Id))
		reply = exportSeed(mnemonic, !account.PinEnabled)
	default:
		err = fmt.Errorf("nothing to execute for flow %q", fc.Kind)
	}
	if err != nil {
		return "", err
	}
	if _, err := o.sessions.Reset(ctx, account.Handle, account.Id); err != nil {
		// The flow already ran; the claimed session is idle either way
		zap.L().Warn("Unable to reset session", zap.String("account_id", account.Id), zap.Error(err))
	}
	return reply, nil
}

func (o *Orchestrator) executeSend(ctx context.Context, account *models.Account, c *models.SendContext, mnemonic string) (string, error) {
	if c == nil {
		return "", errors.New("send flow has no context")
	}
	sdk, err := o.chains.Get(c.Family)
	if err != nil {
		return "", err
	}
	tok, err := o.tokens.Lookup(c.Family, c.TokenSymbol)
	if err != nil {
		return "", err
	}
	amount, err := decimal.NewFromString(c.Amount)
	if err != nil {
		return "", fmt.Errorf("invalid stored amount: %w", err)
	}
	wallet, keypair, err := o.signer(ctx, account, sdk, mnemonic)
	if err != nil {
		return "", err
	}
	if err := o.ensureBalance(ctx, sdk, wallet.Address, tok, amount); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.chainTimeout)
	defer cancel()
	start := time.Now()
	var res chain.TxResult
	if tok.IsNative() {
		res, err = sdk.TransferNative(callCtx, keypair, c.ToAddress, amount)
	} else {
		res, err = sdk.TransferToken(callCtx, keypair, c.ToAddress, tok, amount)
	}
	metrics.ChainCall(string(c.Family), "send", start, err)

	return o.settle(ctx, account, store.RecordTransactionParams{
		AccountId:     account.Id,
		Family:        c.Family,
		Type:          models.TransactionSend,
		FromAddress:   wallet.Address,
		ToAddress:     c.ToAddress,
		Amount:        amount.String(),
		TokenSymbol:   tok.Symbol,
		TokenAddress:  tok.Address,
		TokenDecimals: tok.Decimals,
	}, res, err, "Transfer")
}

func (o *Orchestrator) executeSwap(ctx context.Context, account *models.Account, c *models.SwapContext, mnemonic string) (string, error) {
	if c == nil {
		return "", errors.New("swap flow has no context")
	}
	sdk, err := o.chains.Get(c.Family)
	if err != nil {
		return "", err
	}
	from, err := o.tokens.Lookup(c.Family, c.FromToken)
	if err != nil {
		return "", err
	}
	to, err := o.tokens.Lookup(c.Family, c.ToToken)
	if err != nil {
		return "", err
	}
	amount, err := decimal.NewFromString(c.Amount)
	if err != nil {
		return "", fmt.Errorf("invalid stored amount: %w", err)
	}
	wallet, keypair, err := o.signer(ctx, account, sdk, mnemonic)
	if err != nil {
		return "", err
	}
	if err := o.ensureBalance(ctx, sdk, wallet.Address, from, amount); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.chainTimeout)
	defer cancel()
	start := time.Now()
	res, err := sdk.Swap(callCtx, keypair, from, to, amount, o.slippageBps)
	metrics.ChainCall(string(c.Family), "swap", start, err)

	return o.settle(ctx, account, store.RecordTransactionParams{
		AccountId:     account.Id,
		Family:        c.Family,
		Type:          models.TransactionSwap,
		FromAddress:   wallet.Address,
		ToAddress:     wallet.Address,
		Amount:        amount.String(),
		TokenSymbol:   from.Symbol,
		TokenAddress:  from.Address,
		TokenDecimals: from.Decimals,
		ToTokenSymbol: to.Symbol,
	}, res, err, "Swap")
}

// settle records the outcome of a chain call. A call that failed after
// signing still has a hash and is recorded PENDING for the reconciler.
func (o *Orchestrator) settle(ctx context.Context, account *models.Account, params store.RecordTransactionParams, res chain.TxResult, callErr error, verb string) (string, error) {
	if callErr != nil && res.Hash == "" {
		return "", fmt.Errorf("%w: %v", ErrTransactionFailed, callErr)
	}

	params.Hash = res.Hash
	params.Status = models.StatusPending
	reply := submitted(verb, res.Hash)
	if callErr != nil {
		params.ErrorMessage = callErr.Error()
		reply = pendingUnknown(res.Hash)
		zap.L().Warn("Chain call failed after signing, recording as pending",
			zap.String("account_id", account.Id),
			zap.String("hash", res.Hash),
			zap.Error(callErr))
	}

	record, err := o.store.RecordTransaction(ctx, params)
	if errors.Is(err, store.ErrDuplicateTransaction) {
		zap.L().Info("Transaction already recorded", zap.String("hash", res.Hash))
		record, err = o.store.GetTransactionByHash(ctx, res.Hash)
	}
	if err != nil {
		// The submission happened; the user still gets the hash
		zap.L().Error("Unable to record submitted transaction",
			zap.String("account_id", account.Id),
			zap.String("hash", res.Hash),
			zap.Error(err))
		return reply, nil
	}

	zap.L().Info("Transaction submitted",
		zap.String("account_id", account.Id),
		zap.String("type", string(record.Type)),
		zap.String("family", string(record.Family)),
		zap.String("hash", record.Hash))
	o.mirror(ctx, account, record)
	return reply, nil
}

func (o *Orchestrator) mirror(ctx context.Context, account *models.Account, record *models.TransactionRecord) {
	if o.journal == nil {
		return
	}
	if err := o.journal.RecordTransfer(ctx, account, record); err != nil {
		zap.L().Warn("Unable to mirror transaction to ledger",
			zap.String("hash", record.Hash),
			zap.Error(err))
	}
}

// openSeed verifies the secret and decrypts the recovery phrase. A wrong PIN
// and an undecryptable seed both report ok == false.
func (o *Orchestrator) openSeed(ctx context.Context, account *models.Account, secret string) (string, bool, error) {
	if account.PinEnabled && !o.vault.VerifyPin(secret, account.PinHash) {
		return "", false, nil
	}
	wallets, err := o.store.GetWallets(ctx, account.Id)
	if err != nil {
		return "", false, err
	}
	if len(wallets) == 0 {
		return "", false, fmt.Errorf("account %s has no wallets", account.Id)
	}
	mnemonic, ok := o.vault.DecryptSeed(wallets[0].EncryptedSeed, secret, wallets[0].Salt)
	return mnemonic, ok, nil
}

// signer derives the signing keypair of the account's wallet for sdk.
func (o *Orchestrator) signer(ctx context.Context, account *models.Account, sdk chain.WalletSDK, mnemonic string) (*models.Wallet, *chain.Keypair, error) {
	wallet, err := o.store.GetWallet(ctx, account.Id, sdk.Family())
	if err != nil {
		return nil, nil, err
	}
	seed, err := chain.SeedFromMnemonic(mnemonic)
	if err != nil {
		return nil, nil, err
	}
	keypair, err := sdk.DeriveKeypair(seed, wallet.DerivationIndex)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to derive signing key: %w", err)
	}
	if keypair.Address != wallet.Address {
		return nil, nil, fmt.Errorf("derived address does not match %s wallet", wallet.Family)
	}
	return wallet, keypair, nil
}
