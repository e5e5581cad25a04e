package flow

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"chatwallet/internal/chain"
	"chatwallet/internal/metrics"
	"chatwallet/internal/models"
	"chatwallet/internal/session"
	"chatwallet/internal/store"
	"chatwallet/internal/vault"

	"go.uber.org/zap"
)

var (
	yesWords = []string{"yes", "y", "yeah", "yep", "sure", "ok", "okay"}
	noWords  = []string{"no", "n", "nope", "skip", "no pin"}
	ackWords = []string{"done", "ok", "okay", "saved", "yes", "got it", "i saved it"}
)

func (o *Orchestrator) startOnboarding(ctx context.Context, account *models.Account) (string, error) {
	if _, err := o.sessions.Create(ctx, session.CreateParams{
		Handle:    account.Handle,
		AccountId: account.Id,
		Step:      models.StepAwaitingPinChoice,
		Context:   models.NewOnboardingFlow(models.OnboardingContext{}),
	}); err != nil {
		return "", err
	}
	if err := o.mirrorOnboarding(ctx, account, models.OnboardingInProgress, models.StepAwaitingPinChoice); err != nil {
		return "", err
	}
	metrics.FlowStarted(string(models.FlowOnboarding))
	return replyWelcome, nil
}

// onboard advances the onboarding flow. When the session expired, the flow
// resumes from the step mirrored on the account.
func (o *Orchestrator) onboard(ctx context.Context, account *models.Account, sess *models.Session, text string) (string, error) {
	var step models.OnboardingStep
	if sess != nil {
		step, _ = sess.Step.(models.OnboardingStep)
	}

	if step == "" {
		if account.OnboardingStatus == models.OnboardingPending {
			return o.startOnboarding(ctx, account)
		}
		step = account.OnboardingStep
		if step == models.StepConfirmingPin {
			// The pending PIN hash expired with the session
			step = models.StepAwaitingPin
		}
		var err error
		sess, err = o.sessions.Create(ctx, session.CreateParams{
			Handle:    account.Handle,
			AccountId: account.Id,
			Step:      step,
			Context:   models.NewOnboardingFlow(models.OnboardingContext{}),
		})
		if err != nil {
			return "", err
		}
		zap.L().Info("Onboarding resumed",
			zap.String("account_id", account.Id),
			zap.String("step", step.String()))
	}

	switch step {
	case models.StepAwaitingPinChoice:
		return o.pinChoice(ctx, account, text)
	case models.StepAwaitingPin:
		return o.choosePin(ctx, account, text)
	case models.StepConfirmingPin:
		return o.confirmPin(ctx, account, sess, text)
	case models.StepDisplayingSeed:
		return o.acknowledgeSeed(ctx, account, text)
	case models.StepCompleted:
		return o.completeOnboarding(ctx, account)
	}
	return "", fmt.Errorf("no handler for onboarding step %q", step)
}

func (o *Orchestrator) pinChoice(ctx context.Context, account *models.Account, text string) (string, error) {
	word := normalizeWord(text)
	switch {
	case slices.Contains(yesWords, word):
		if err := o.advanceOnboarding(ctx, account, models.StepAwaitingPin, models.OnboardingContext{}); err != nil {
			return "", err
		}
		return replyChoosePin, nil

	case slices.Contains(noWords, word):
		pinless := &models.Account{Id: account.Id, Handle: account.Handle}
		mnemonic, err := o.provisionWallets(ctx, account, vault.DerivationSecret(pinless, ""), store.PinUpdate{PinEnabled: false})
		if err != nil {
			return "", err
		}
		if err := o.advanceOnboarding(ctx, account, models.StepDisplayingSeed, models.OnboardingContext{}); err != nil {
			return "", err
		}
		zap.L().Info("Account onboarded without PIN", zap.String("account_id", account.Id))
		return showSeed(mnemonic, true), nil
	}
	return o.reprompt(ctx, account.Handle, replyPinChoiceRetry)
}

func (o *Orchestrator) choosePin(ctx context.Context, account *models.Account, text string) (string, error) {
	if err := vault.ValidatePin(text); err != nil {
		return o.reprompt(ctx, account.Handle, invalidPinChoice(err))
	}
	hash, err := o.vault.HashPin(text)
	if err != nil {
		return "", err
	}
	if err := o.advanceOnboarding(ctx, account, models.StepConfirmingPin, models.OnboardingContext{PendingPinHash: hash}); err != nil {
		return "", err
	}
	return replyConfirmPin, nil
}

func (o *Orchestrator) confirmPin(ctx context.Context, account *models.Account, sess *models.Session, text string) (string, error) {
	var pending string
	if sess.Context.Onboarding != nil {
		pending = sess.Context.Onboarding.PendingPinHash
	}
	if pending == "" || !o.vault.VerifyPin(text, pending) {
		// Create drops the pending hash; a merge would keep it
		if _, err := o.sessions.Create(ctx, session.CreateParams{
			Handle:    account.Handle,
			AccountId: account.Id,
			Step:      models.StepAwaitingPin,
			Context:   models.NewOnboardingFlow(models.OnboardingContext{}),
		}); err != nil {
			return "", err
		}
		return replyPinMismatch, nil
	}

	mnemonic, err := o.provisionWallets(ctx, account, text, store.PinUpdate{PinHash: pending, PinEnabled: true})
	if err != nil {
		return "", err
	}

	if err := o.advanceOnboarding(ctx, account, models.StepDisplayingSeed, models.OnboardingContext{}); err != nil {
		return "", err
	}
	return showSeed(mnemonic, false), nil
}

// acknowledgeSeed never shows the mnemonic again; it only waits for the user.
func (o *Orchestrator) acknowledgeSeed(ctx context.Context, account *models.Account, text string) (string, error) {
	if !slices.Contains(ackWords, normalizeWord(text)) {
		return o.reprompt(ctx, account.Handle, replySeedAckRetry)
	}
	return o.completeOnboarding(ctx, account)
}

func (o *Orchestrator) completeOnboarding(ctx context.Context, account *models.Account) (string, error) {
	if err := o.mirrorOnboarding(ctx, account, models.OnboardingCompleted, models.StepCompleted); err != nil {
		return "", err
	}
	if _, err := o.sessions.Reset(ctx, account.Handle, account.Id); err != nil {
		return "", err
	}
	zap.L().Info("Onboarding completed", zap.String("account_id", account.Id))
	return replyOnboarded, nil
}

func (o *Orchestrator) advanceOnboarding(ctx context.Context, account *models.Account, step models.OnboardingStep, oc models.OnboardingContext) error {
	if _, err := o.sessions.Update(ctx, account.Handle, session.Patch{
		Step:    step,
		Context: models.NewOnboardingFlow(oc),
	}); err != nil {
		return err
	}
	return o.mirrorOnboarding(ctx, account, models.OnboardingInProgress, step)
}

// mirrorOnboarding copies progress to the account. The mirrored step only
// moves forward.
func (o *Orchestrator) mirrorOnboarding(ctx context.Context, account *models.Account, status models.OnboardingStatus, step models.OnboardingStep) error {
	if step.Rank() < account.OnboardingStep.Rank() {
		step = account.OnboardingStep
	}
	if account.OnboardingStatus == models.OnboardingCompleted {
		status = models.OnboardingCompleted
	}
	if status == account.OnboardingStatus && step == account.OnboardingStep {
		return nil
	}
	if err := o.store.UpdateOnboarding(ctx, account.Id, store.OnboardingUpdate{Status: status, Step: step}); err != nil {
		return err
	}
	account.OnboardingStatus, account.OnboardingStep = status, step
	return nil
}

// provisionWallets creates one wallet per registered chain family, all
// encrypting the same fresh mnemonic under secret, and stores pin with them
// atomically. Wallets left by an interrupted earlier attempt are reused when
// secret opens them and replaced otherwise; the seed of an unfinished
// onboarding has never been acknowledged.
func (o *Orchestrator) provisionWallets(ctx context.Context, account *models.Account, secret string, pin store.PinUpdate) (string, error) {
	if account.Onboarded() {
		return "", fmt.Errorf("account %s is already onboarded", account.Id)
	}
	existing, err := o.store.GetWallets(ctx, account.Id)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		if mnemonic, ok := o.vault.DecryptSeed(existing[0].EncryptedSeed, secret, existing[0].Salt); ok {
			if err := o.store.UpdatePin(ctx, account.Id, pin); err != nil {
				return "", err
			}
			account.PinHash, account.PinEnabled = pin.PinHash, pin.PinEnabled
			return mnemonic, nil
		}
		zap.L().Warn("Replacing wallets of unfinished onboarding",
			zap.String("account_id", account.Id),
			zap.Int("count", len(existing)))
	}

	mnemonic, err := chain.NewMnemonic()
	if err != nil {
		return "", err
	}
	seed, err := chain.SeedFromMnemonic(mnemonic)
	if err != nil {
		return "", err
	}
	encrypted, err := o.vault.EncryptSeed(mnemonic, secret)
	if err != nil {
		return "", err
	}

	var params []store.CreateWalletParams
	for i, family := range o.chains.Families() {
		sdk, err := o.chains.Get(family)
		if err != nil {
			return "", err
		}
		keypair, err := sdk.DeriveKeypair(seed, 0)
		if err != nil {
			return "", fmt.Errorf("unable to derive %s wallet: %w", family, err)
		}
		params = append(params, store.CreateWalletParams{
			Family:          family,
			Address:         keypair.Address,
			DerivationIndex: keypair.Index,
			DerivationPath:  keypair.Path,
			EncryptedSeed:   encrypted.Ciphertext,
			Salt:            encrypted.Salt,
			IsDefault:       i == 0,
		})
	}
	if len(params) == 0 {
		return "", fmt.Errorf("no chain families registered")
	}

	wallets, err := o.store.CreateWallets(ctx, account.Id, store.ProvisionParams{
		Pin:     pin,
		Wallets: params,
		Replace: len(existing) > 0,
	})
	if err != nil {
		return "", err
	}
	account.PinHash, account.PinEnabled = pin.PinHash, pin.PinEnabled
	zap.L().Info("Wallets created",
		zap.String("account_id", account.Id),
		zap.Int("count", len(wallets)))

	if o.journal != nil {
		if err := o.journal.RegisterWallets(ctx, account, wallets); err != nil {
			zap.L().Warn("Unable to register wallets with ledger",
				zap.String("account_id", account.Id),
				zap.Error(err))
		}
	}
	return mnemonic, nil
}

func normalizeWord(text string) string {
	return strings.Trim(strings.ToLower(strings.Join(strings.Fields(text), " ")), ".,!?")
}
