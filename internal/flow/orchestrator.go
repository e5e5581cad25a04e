package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatwallet/internal/chain"
	"chatwallet/internal/guard"
	"chatwallet/internal/intent"
	"chatwallet/internal/metrics"
	"chatwallet/internal/models"
	"chatwallet/internal/session"
	"chatwallet/internal/store"
	"chatwallet/internal/vault"

	"go.uber.org/zap"
)

const (
	DefaultChainTimeout = 30 * time.Second
	DefaultSlippageBps  = 50
	DefaultHistoryLimit = 5
	// DefaultStaleAfter is how long a PENDING record the node has never seen
	// is kept before the reconciler marks it FAILED.
	DefaultStaleAfter = time.Hour
)

// Journal mirrors wallets and recorded transactions to an external ledger.
// Mirror failures never affect the conversation.
type Journal interface {
	RegisterWallets(ctx context.Context, account *models.Account, wallets []models.Wallet) error
	RecordTransfer(ctx context.Context, account *models.Account, record *models.TransactionRecord) error
	// RecordSettlement is called once a PENDING record reaches status.
	RecordSettlement(ctx context.Context, record *models.TransactionRecord, status models.TransactionStatus) error
}

// Config holds the collaborators of an Orchestrator. Store, Sessions, Vault,
// Guard and Chains are required.
type Config struct {
	Store        store.RecordStore
	Sessions     *session.Store
	Locker       *session.HandleLocker
	Vault        *vault.Vault
	Guard        *guard.Guard
	Resolver     *intent.Resolver
	Chains       *chain.Registry
	Tokens       *chain.TokenRegistry
	Journal      Journal
	ChainTimeout time.Duration
	SlippageBps  int
	HistoryLimit int
	StaleAfter   time.Duration
}

// Orchestrator drives onboarding and the transaction flows, one message at a
// time per handle.
type Orchestrator struct {
	store        store.RecordStore
	sessions     *session.Store
	locker       *session.HandleLocker
	vault        *vault.Vault
	guard        *guard.Guard
	resolver     *intent.Resolver
	chains       *chain.Registry
	tokens       *chain.TokenRegistry
	journal      Journal
	chainTimeout time.Duration
	slippageBps  int
	historyLimit int
	staleAfter   time.Duration
	now          func() time.Time
}

func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:        cfg.Store,
		sessions:     cfg.Sessions,
		locker:       cfg.Locker,
		vault:        cfg.Vault,
		guard:        cfg.Guard,
		resolver:     cfg.Resolver,
		chains:       cfg.Chains,
		tokens:       cfg.Tokens,
		journal:      cfg.Journal,
		chainTimeout: cfg.ChainTimeout,
		slippageBps:  cfg.SlippageBps,
		historyLimit: cfg.HistoryLimit,
		staleAfter:   cfg.StaleAfter,
		now:          time.Now,
	}
	if o.locker == nil {
		o.locker = session.NewHandleLocker()
	}
	if o.tokens == nil {
		o.tokens = chain.NewTokenRegistry(nil)
	}
	if o.resolver == nil {
		o.resolver = intent.NewResolver(nil, o.tokens)
	}
	if o.chainTimeout <= 0 {
		o.chainTimeout = DefaultChainTimeout
	}
	if o.slippageBps <= 0 {
		o.slippageBps = DefaultSlippageBps
	}
	if o.historyLimit <= 0 {
		o.historyLimit = DefaultHistoryLimit
	}
	if o.staleAfter <= 0 {
		o.staleAfter = DefaultStaleAfter
	}
	return o
}

// WithClock replaces the time source, for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// HandleMessage is the single entry point of the core. It never returns an
// error: failures that end a flow reset the session and produce a fixed,
// user-safe reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, handle, text, displayName string) string {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		metrics.Message("rejected")
		return replyGenericError
	}

	unlock := o.locker.Lock(handle)
	defer unlock()

	reply, err := o.handle(ctx, handle, strings.TrimSpace(text), displayName)
	if err != nil {
		metrics.Message("error")
		logFlowError(handle, err)
		if delErr := o.sessions.Delete(ctx, handle); delErr != nil {
			zap.L().Error("Unable to reset session after error",
				zap.String("handle", models.MaskHandle(handle)),
				zap.Error(delErr))
		}
		return replyForError(err)
	}
	metrics.Message("ok")
	return reply
}

func (o *Orchestrator) handle(ctx context.Context, handle, text, displayName string) (string, error) {
	account, created, err := o.loadOrCreate(ctx, handle, displayName)
	if err != nil {
		return "", err
	}
	if created {
		return o.startOnboarding(ctx, account)
	}

	sess, err := o.sessions.Get(ctx, handle)
	if err != nil {
		return "", err
	}

	if !account.Onboarded() {
		return o.onboard(ctx, account, sess, text)
	}

	if sess != nil {
		if _, stale := sess.Step.(models.OnboardingStep); stale {
			sess = nil
		}
	}
	if sess == nil || models.IsIdle(sess.Step) {
		return o.idle(ctx, account, sess, text)
	}
	return o.step(ctx, account, sess, text)
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, handle, displayName string) (*models.Account, bool, error) {
	account, err := o.store.GetAccountByHandle(ctx, handle)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("unable to load account: %w", err)
	}

	account, err = o.store.CreateAccount(ctx, store.CreateAccountParams{Handle: handle, DisplayName: displayName})
	if errors.Is(err, store.ErrDuplicateAccount) {
		// Registered by another instance in the meantime
		account, err = o.store.GetAccountByHandle(ctx, handle)
		if err != nil {
			return nil, false, fmt.Errorf("unable to load account: %w", err)
		}
		return account, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return account, true, nil
}

// idle classifies a message received outside any flow.
func (o *Orchestrator) idle(ctx context.Context, account *models.Account, sess *models.Session, text string) (string, error) {
	if vault.PinShaped(text) {
		// Most likely a PIN sent after its session expired
		return replyPinOutsideFlow, nil
	}
	var sc *intent.SessionContext
	if sess != nil {
		sc = &intent.SessionContext{Step: sess.Step, Flow: sess.Context}
	}
	res := o.resolver.Classify(ctx, text, sc)

	zap.L().Debug("Intent classified",
		zap.String("handle", models.MaskHandle(account.Handle)),
		zap.String("intent", string(res.Intent)),
		zap.String("source", res.Source))

	switch res.Intent {
	case intent.Send:
		return o.startSend(ctx, account, res.Entities)
	case intent.Swap:
		return o.startSwap(ctx, account, res.Entities)
	case intent.Balance:
		return o.balance(ctx, account)
	case intent.Receive:
		return o.receive(ctx, account)
	case intent.History:
		return o.history(ctx, account)
	case intent.ExportSeed:
		return o.startExport(ctx, account, res.Entities)
	case intent.Help:
		return replyHelp, nil
	case intent.Greeting:
		return replyGreeting, nil
	case intent.Confirm:
		return replyNothingToConfirm, nil
	case intent.Cancel:
		return replyNothingToCancel, nil
	}
	return replyUnknown, nil
}

// step routes a message to the handler of the active main flow step.
func (o *Orchestrator) step(ctx context.Context, account *models.Account, sess *models.Session, text string) (string, error) {
	sc := &intent.SessionContext{Step: sess.Step, Flow: sess.Context}
	if o.resolver.Rules(text, sc).Intent == intent.Cancel {
		if _, err := o.sessions.Reset(ctx, account.Handle, account.Id); err != nil {
			return "", err
		}
		return replyCancelled, nil
	}

	step, ok := sess.Step.(models.MainStep)
	if !ok {
		return "", fmt.Errorf("unexpected step %s", sess.Step)
	}
	switch step {
	case models.StepChainSelect:
		return o.chainSelect(ctx, account, sess, text)
	case models.StepTokenSelect:
		return o.tokenSelect(ctx, account, sess, text)
	case models.StepAddressInput:
		return o.addressInput(ctx, account, sess, text)
	case models.StepAmountInput:
		return o.amountInput(ctx, account, sess, text)
	case models.StepConfirm:
		return o.confirm(ctx, account, sess, text)
	case models.StepPinEntry:
		return o.pinEntry(ctx, account, sess, text)
	case models.StepIdle:
		return o.idle(ctx, account, sess, text)
	}
	return "", fmt.Errorf("no handler for step %s", step)
}

// reprompt keeps the current step and extends the session.
func (o *Orchestrator) reprompt(ctx context.Context, handle, reply string) (string, error) {
	if _, err := o.sessions.Update(ctx, handle, session.Patch{}); err != nil {
		return "", err
	}
	return reply, nil
}

// save writes the next step of a flow, creating the session when a new flow starts.
func (o *Orchestrator) save(ctx context.Context, account *models.Account, sess *models.Session, step models.ConversationStep, fc models.FlowContext) error {
	if sess == nil || sess.Context.Kind != fc.Kind {
		_, err := o.sessions.Create(ctx, session.CreateParams{
			Handle:    account.Handle,
			AccountId: account.Id,
			Step:      step,
			Context:   fc,
		})
		return err
	}
	_, err := o.sessions.Update(ctx, account.Handle, session.Patch{Step: step, Context: fc})
	return err
}

func logFlowError(handle string, err error) {
	fields := []zap.Field{zap.String("handle", models.MaskHandle(handle)), zap.Error(err)}
	var lockedErr *LockedError
	switch {
	case errors.As(err, &lockedErr), errors.Is(err, ErrInsufficientBalance):
		zap.L().Info("Flow ended", fields...)
	case errors.Is(err, ErrTransactionFailed), errors.Is(err, ErrUpstreamUnavailable):
		zap.L().Warn("Flow ended", fields...)
	default:
		zap.L().Error("Flow failed", fields...)
	}
}
