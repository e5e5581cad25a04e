package flow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"chatwallet/internal/chain"
	"chatwallet/internal/database"
	"chatwallet/internal/guard"
	"chatwallet/internal/intent"
	"chatwallet/internal/models"
	"chatwallet/internal/oracle"
	"chatwallet/internal/session"
	"chatwallet/internal/store"
	"chatwallet/internal/vault"

	"github.com/shopspring/decimal"
)

const (
	testHandle = "+15550001111"
	testPin    = "5296"
)

type fakeSDK struct {
	family models.ChainFamily
	native chain.Token

	mu         sync.Mutex
	balance    decimal.Decimal
	balanceErr error
	sendErr    error
	sendHash   string
	transfers  int
	swaps      int
	statuses   map[string]chain.TxStatus
}

func newFakeSDK(family models.ChainFamily, native chain.Token) *fakeSDK {
	return &fakeSDK{family: family, native: native, balance: decimal.Zero, statuses: map[string]chain.TxStatus{}}
}

func (f *fakeSDK) Family() models.ChainFamily { return f.family }

func (f *fakeSDK) NativeToken() chain.Token { return f.native }

func (f *fakeSDK) ValidateAddress(address string) bool {
	return chain.ValidateAddress(f.family, address)
}

func (f *fakeSDK) DeriveKeypair(seed []byte, index uint32) (*chain.Keypair, error) {
	if f.family == models.FamilyEVM {
		return chain.DeriveEVMKeypair(seed, index)
	}
	return chain.DeriveSolanaKeypair(seed, index)
}

func (f *fakeSDK) NativeBalance(ctx context.Context, address string) (chain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return chain.Balance{}, f.balanceErr
	}
	return chain.Balance{Formatted: f.balance, Raw: chain.ToBaseUnits(f.balance, f.native.Decimals)}, nil
}

func (f *fakeSDK) TokenBalance(ctx context.Context, address string, token chain.Token) (chain.Balance, error) {
	return f.NativeBalance(ctx, address)
}

func (f *fakeSDK) TransferNative(ctx context.Context, from *chain.Keypair, to string, amount decimal.Decimal) (chain.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers++
	hash := f.sendHash
	if hash == "" && f.sendErr == nil {
		hash = fmt.Sprintf("%s-hash-%d", strings.ToLower(string(f.family)), f.transfers)
	}
	return chain.TxResult{Hash: hash}, f.sendErr
}

func (f *fakeSDK) TransferToken(ctx context.Context, from *chain.Keypair, to string, token chain.Token, amount decimal.Decimal) (chain.TxResult, error) {
	return f.TransferNative(ctx, from, to, amount)
}

func (f *fakeSDK) Swap(ctx context.Context, from *chain.Keypair, fromToken, toToken chain.Token, amount decimal.Decimal, slippageBps int) (chain.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swaps++
	return chain.TxResult{Hash: fmt.Sprintf("swap-hash-%d", f.swaps)}, nil
}

func (f *fakeSDK) TransactionStatus(ctx context.Context, hash string) (chain.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[hash]
	if !ok {
		return chain.TxStatus{Status: models.StatusPending, Unknown: true}, nil
	}
	return status, nil
}

func (f *fakeSDK) setBalance(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = decimal.RequireFromString(v)
}

func (f *fakeSDK) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transfers + f.swaps
}

type fakeJournal struct {
	mu          sync.Mutex
	wallets     int
	transfers   []string
	settlements map[string]models.TransactionStatus
}

func (j *fakeJournal) RegisterWallets(ctx context.Context, account *models.Account, wallets []models.Wallet) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.wallets += len(wallets)
	return nil
}

func (j *fakeJournal) RecordTransfer(ctx context.Context, account *models.Account, record *models.TransactionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.transfers = append(j.transfers, record.Hash)
	return errors.New("ledger unreachable")
}

func (j *fakeJournal) RecordSettlement(ctx context.Context, record *models.TransactionRecord, status models.TransactionStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.settlements[record.Hash] = status
	return nil
}

type recordingOracle struct {
	mu   sync.Mutex
	seen []string
}

func (r *recordingOracle) Classify(ctx context.Context, messages []oracle.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, messages[len(messages)-1].Content)
	return `{"intent":"UNKNOWN"}`, nil
}

// flakyStore fails the first onboarding mirror of failStep, after which it
// behaves like the wrapped store.
type flakyStore struct {
	store.RecordStore
	failWallets bool
	failStep    models.OnboardingStep
	failed      bool
}

func (f *flakyStore) CreateWallets(ctx context.Context, accountId string, params store.ProvisionParams) ([]models.Wallet, error) {
	if f.failWallets && !f.failed {
		f.failed = true
		return nil, errors.New("connection reset")
	}
	return f.RecordStore.CreateWallets(ctx, accountId, params)
}

func (f *flakyStore) UpdateOnboarding(ctx context.Context, accountId string, update store.OnboardingUpdate) error {
	if f.failStep != "" && update.Step == f.failStep && !f.failed {
		f.failed = true
		return errors.New("connection reset")
	}
	return f.RecordStore.UpdateOnboarding(ctx, accountId, update)
}

type harness struct {
	t       *testing.T
	db      *database.Service
	store   store.RecordStore
	oracle  intent.Oracle
	evm     *fakeSDK
	sol     *fakeSDK
	journal *fakeJournal
	orch    *Orchestrator

	mu  sync.Mutex
	now time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	service, err := database.NewServiceFromDB(db)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := &harness{
		t:   t,
		db:  service,
		evm: newFakeSDK(models.FamilyEVM, chain.EtherToken),
		sol: newFakeSDK(models.FamilySolana, chain.SolToken),
		now: time.Now(),

		journal: &fakeJournal{settlements: map[string]models.TransactionStatus{}},
	}
	h.orch = h.newOrchestrator()
	return h
}

// newOrchestrator builds an orchestrator over the shared store with its own
// locker, as a second process would have.
func (h *harness) newOrchestrator() *Orchestrator {
	h.t.Helper()
	v, err := vault.New(models.VaultConfig{MasterKey: "test-master-key", Pbkdf2Iterations: 1000, BcryptCost: 4})
	if err != nil {
		h.t.Fatalf("vault.New failed: %v", err)
	}
	tokens := chain.NewTokenRegistry(nil)
	var st store.RecordStore = h.db
	if h.store != nil {
		st = h.store
	}
	return New(Config{
		Store:    st,
		Sessions: session.NewStore(st, models.SessionConfig{}).WithClock(h.clock),
		Vault:    v,
		Guard:    guard.New(st, models.GuardConfig{}).WithClock(h.clock),
		Resolver: intent.NewResolver(h.oracle, tokens),
		Chains:   chain.NewRegistry(h.evm, h.sol),
		Tokens:   tokens,
		Journal:  h.journal,
	}).WithClock(h.clock)
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) send(text string) string {
	h.t.Helper()
	return h.orch.HandleMessage(context.Background(), testHandle, text, "Alice")
}

// expect sends text and fails unless the reply contains want.
func (h *harness) expect(text, want string) string {
	h.t.Helper()
	reply := h.send(text)
	if !strings.Contains(reply, want) {
		h.t.Fatalf("reply to %q = %q, want it to contain %q", text, reply, want)
	}
	return reply
}

func (h *harness) session() *models.Session {
	h.t.Helper()
	sess, err := session.NewStore(h.db, models.SessionConfig{}).WithClock(h.clock).Get(context.Background(), testHandle)
	if err != nil {
		h.t.Fatalf("Get session failed: %v", err)
	}
	return sess
}

func (h *harness) step() models.ConversationStep {
	h.t.Helper()
	sess := h.session()
	if sess == nil {
		return nil
	}
	return sess.Step
}

func (h *harness) account() *models.Account {
	h.t.Helper()
	account, err := h.db.GetAccountByHandle(context.Background(), testHandle)
	if err != nil {
		h.t.Fatalf("GetAccountByHandle failed: %v", err)
	}
	return account
}

// onboard runs the whole onboarding flow and returns the mnemonic shown.
func (h *harness) onboard(pin string) string {
	h.t.Helper()
	h.expect("hi", "4-digit PIN")
	var seedReply string
	if pin == "" {
		seedReply = h.expect("no", "low-security")
	} else {
		h.expect("yes", "Choose a 4-digit PIN")
		h.expect(pin, "same PIN again")
		seedReply = h.expect(pin, "recovery phrase")
	}
	h.expect("done", "Your wallet is ready")
	return extractMnemonic(h.t, seedReply)
}

func extractMnemonic(t *testing.T, reply string) string {
	t.Helper()
	parts := strings.Split(reply, "\n\n")
	if len(parts) < 2 || len(strings.Fields(parts[1])) != 12 {
		t.Fatalf("no mnemonic in reply %q", reply)
	}
	return parts[1]
}

func peerSolanaAddress(t *testing.T) string {
	t.Helper()
	seed, err := chain.SeedFromMnemonic("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about")
	if err != nil {
		t.Fatalf("SeedFromMnemonic failed: %v", err)
	}
	kp, err := chain.DeriveSolanaKeypair(seed, 0)
	if err != nil {
		t.Fatalf("DeriveSolanaKeypair failed: %v", err)
	}
	return kp.Address
}

func TestOnboarding_WithPin(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)

	account := h.account()
	if !account.Onboarded() {
		t.Errorf("Expected onboarding COMPLETED, got %s", account.OnboardingStatus)
	}
	if !account.PinEnabled || account.PinHash == "" {
		t.Errorf("Expected PIN enabled with a hash")
	}
	if account.OnboardingStep != models.StepCompleted {
		t.Errorf("Expected mirrored step COMPLETED, got %s", account.OnboardingStep)
	}

	wallets, err := h.db.GetWallets(context.Background(), account.Id)
	if err != nil {
		t.Fatalf("GetWallets failed: %v", err)
	}
	if len(wallets) != 2 {
		t.Fatalf("Expected 2 wallets, got %d", len(wallets))
	}
	if wallets[0].EncryptedSeed != wallets[1].EncryptedSeed {
		t.Errorf("Expected both wallets to encrypt the same seed")
	}
	if !models.IsIdle(h.step()) {
		t.Errorf("Expected idle session after onboarding, got %v", h.step())
	}
}

func TestOnboarding_RejectsWeakPinAndMismatch(t *testing.T) {
	h := newHarness(t)
	h.expect("hello", "4-digit PIN")
	h.expect("maybe", "reply YES")
	h.expect("yes", "Choose")
	h.expect("1234", "sequential")
	h.expect("7777", "identical")
	h.expect("12a4", "4 digits")
	h.expect("2580", "same PIN again")

	sess := h.session()
	if sess.Context.Onboarding == nil || sess.Context.Onboarding.PendingPinHash == "" {
		t.Fatal("Expected a pending PIN hash in the session")
	}
	if strings.Contains(sess.Context.Onboarding.PendingPinHash, "2580") {
		t.Fatal("Cleartext PIN must never be stored in a session")
	}

	h.expect("2581", "did not match")
	if h.step() != models.StepAwaitingPin {
		t.Errorf("Expected AWAITING_PIN after mismatch, got %v", h.step())
	}
	h.expect("2580", "same PIN again")
	h.expect("2580", "recovery phrase")
	h.expect("what?", "Reply DONE")
	h.expect("done", "ready")
}

func TestOnboarding_ResumesAfterExpiry(t *testing.T) {
	h := newHarness(t)
	h.expect("hi", "4-digit PIN")
	h.expect("yes", "Choose")
	h.expect("2580", "same PIN again")

	h.advance(11 * time.Minute)
	// The pending hash is gone, so the PIN is chosen again
	h.expect("2580", "same PIN again")
	h.expect("2580", "recovery phrase")

	if got := h.account().OnboardingStep; got != models.StepDisplayingSeed {
		t.Errorf("Expected mirrored step DISPLAYING_SEED, got %s", got)
	}
}

func TestOnboarding_RecoversFromFailedWalletWrite(t *testing.T) {
	h := newHarness(t)
	h.store = &flakyStore{RecordStore: h.db, failWallets: true}
	h.orch = h.newOrchestrator()

	h.expect("hi", "4-digit PIN")
	h.expect("yes", "Choose")
	h.expect("2580", "same PIN again")
	h.expect("2580", "Something went wrong")

	account := h.account()
	if account.PinEnabled {
		t.Fatal("Expected PIN not stored when the wallet write failed")
	}
	wallets, err := h.db.GetWallets(context.Background(), account.Id)
	if err != nil {
		t.Fatalf("GetWallets failed: %v", err)
	}
	if len(wallets) != 0 {
		t.Fatalf("Expected no wallets after failed write, got %d", len(wallets))
	}

	// A different PIN on retry must still finish onboarding
	h.expect("1357", "same PIN again")
	seedReply := h.expect("1357", "recovery phrase")
	h.expect("done", "Your wallet is ready")

	account = h.account()
	if !account.Onboarded() || !account.PinEnabled {
		t.Fatalf("Expected onboarded PIN account, got status=%s pin=%v", account.OnboardingStatus, account.PinEnabled)
	}
	assertSeedOpensWith(t, h, account, "1357", extractMnemonic(t, seedReply))
}

func TestOnboarding_ReplacesWalletsOfUnfinishedAttempt(t *testing.T) {
	h := newHarness(t)
	h.store = &flakyStore{RecordStore: h.db, failStep: models.StepDisplayingSeed}
	h.orch = h.newOrchestrator()

	h.expect("hi", "4-digit PIN")
	h.expect("yes", "Choose")
	h.expect("2580", "same PIN again")
	// Wallets and PIN are stored, the step mirror fails
	h.expect("2580", "Something went wrong")

	h.advance(11 * time.Minute)
	h.expect("1357", "same PIN again")
	seedReply := h.expect("1357", "recovery phrase")
	h.expect("done", "Your wallet is ready")

	account := h.account()
	if !account.Onboarded() {
		t.Fatalf("Expected onboarding COMPLETED, got %s", account.OnboardingStatus)
	}
	wallets := assertSeedOpensWith(t, h, account, "1357", extractMnemonic(t, seedReply))
	if len(wallets) != 2 {
		t.Errorf("Expected the 2 replacement wallets, got %d", len(wallets))
	}
}

func assertSeedOpensWith(t *testing.T, h *harness, account *models.Account, pin, mnemonic string) []models.Wallet {
	t.Helper()
	v, err := vault.New(models.VaultConfig{MasterKey: "test-master-key", Pbkdf2Iterations: 1000, BcryptCost: 4})
	if err != nil {
		t.Fatalf("vault.New failed: %v", err)
	}
	if !v.VerifyPin(pin, account.PinHash) {
		t.Errorf("Expected stored hash to match PIN %s", pin)
	}
	wallets, err := h.db.GetWallets(context.Background(), account.Id)
	if err != nil {
		t.Fatalf("GetWallets failed: %v", err)
	}
	for _, w := range wallets {
		got, ok := v.DecryptSeed(w.EncryptedSeed, pin, w.Salt)
		if !ok || got != mnemonic {
			t.Errorf("Expected %s wallet to open with PIN %s", w.Family, pin)
		}
	}
	return wallets
}

func TestExpiredPinEntry_PinNeverReachesOracle(t *testing.T) {
	h := newHarness(t)
	rec := &recordingOracle{}
	h.oracle = rec
	h.orch = h.newOrchestrator()
	h.onboard(testPin)
	h.sol.setBalance("2")

	h.expect("send", "Which chain?")
	h.expect("solana", "destination address")
	h.expect(peerSolanaAddress(t), "How much SOL?")
	h.expect("0.5", "Send 0.5 SOL on Solana")
	h.expect("confirm", "Enter your PIN")

	h.advance(11 * time.Minute)
	h.expect(testPin, "session expired")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, text := range rec.seen {
		if strings.Contains(text, testPin) {
			t.Fatalf("PIN forwarded to the oracle: %q", rec.seen)
		}
	}
	if h.sol.calls() != 0 {
		t.Errorf("Expected no chain call, got %d", h.sol.calls())
	}
}

func TestScenario_FullSend(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.sol.setBalance("2.0")
	to := peerSolanaAddress(t)

	h.expect("send", "Which chain?")
	h.expect("solana", "destination address")
	h.expect(to, "How much SOL?")
	h.expect("0.5", "Send 0.5 SOL on Solana")
	h.expect("confirm", "Enter your PIN")
	reply := h.expect(testPin, "Transfer submitted")

	if !strings.Contains(reply, "solana-hash-1") {
		t.Errorf("Expected hash in reply, got %q", reply)
	}
	if h.sol.calls() != 1 {
		t.Fatalf("Expected exactly 1 chain call, got %d", h.sol.calls())
	}

	records, err := h.db.GetTransactionHistory(context.Background(), h.account().Id, 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Type != models.TransactionSend || rec.Amount.String() != "0.5" || rec.Status != models.StatusPending {
		t.Errorf("Unexpected record: type=%s amount=%s status=%s", rec.Type, rec.Amount, rec.Status)
	}
	if rec.ToAddress != to || rec.TokenSymbol != "SOL" {
		t.Errorf("Unexpected record destination %s %s", rec.ToAddress, rec.TokenSymbol)
	}
	if !models.IsIdle(h.step()) {
		t.Errorf("Expected session back to idle, got %v", h.step())
	}

	// A failing ledger mirror is logged, never surfaced
	if h.journal.wallets != 2 || len(h.journal.transfers) != 1 || h.journal.transfers[0] != "solana-hash-1" {
		t.Errorf("Unexpected journal activity: wallets=%d transfers=%v", h.journal.wallets, h.journal.transfers)
	}
}

func TestScenario_InsufficientBalance(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.sol.setBalance("2.0")

	h.expect("send", "Which chain?")
	h.expect("solana", "destination address")
	h.expect(peerSolanaAddress(t), "How much")
	h.expect("5.0", "Insufficient balance")

	if h.step() != models.StepAmountInput {
		t.Fatalf("Expected flow to stay at AMOUNT_INPUT, got %v", h.step())
	}
	sess := h.session()
	if sess.Context.Send == nil || sess.Context.Send.ToAddress == "" {
		t.Errorf("Expected collected address to be kept")
	}

	h.expect("-1", "Invalid amount")
	h.expect("0.0000000001", "decimal places")
	h.expect("1.5", "Send 1.5 SOL")
}

func TestSend_AmbiguousTokenKeepsRequestThroughChainSelect(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.sol.setBalance("20")

	h.expect("send 10 usdc", "Which chain?")
	h.expect("solana", "destination address")
	h.expect(peerSolanaAddress(t), "Send 10 USDC on Solana")

	c := h.session().Context.Send
	if c == nil || c.TokenSymbol != "USDC" || c.Amount != "10" || c.Request != nil {
		t.Errorf("Unexpected send context %+v", c)
	}
}

func TestSend_AmbiguousTokenAmountCheckedAfterChainSelect(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.sol.setBalance("2")

	h.expect("send 10 usdc", "Which chain?")
	reply := h.expect("solana", "Insufficient balance")
	if !strings.Contains(reply, "destination address") {
		t.Errorf("Expected the address prompt after the note, got %q", reply)
	}
	c := h.session().Context.Send
	if c == nil || c.TokenSymbol != "USDC" || c.Amount != "" {
		t.Errorf("Expected USDC kept and amount cleared, got %+v", c)
	}
	h.expect(peerSolanaAddress(t), "How much USDC?")
}

func TestScenario_LockoutMidFlow(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.sol.setBalance("2.0")

	h.expect("send 0.5 sol to "+peerSolanaAddress(t), "Send 0.5 SOL")
	h.expect("yes", "Enter your PIN")

	h.expect("0000", "2 attempts left")
	if h.step() != models.StepPinEntry {
		t.Fatalf("Expected to stay at PIN_ENTRY, got %v", h.step())
	}
	sess := h.session()
	if sess.Context.Send == nil || sess.Context.Send.Amount != "0.5" {
		t.Fatalf("Expected collected amount to survive a wrong PIN")
	}
	h.expect("1357", "1 attempt left")
	h.expect("2468", "locked")
	h.expect(testPin, "locked")

	if h.sol.calls() != 0 {
		t.Fatalf("Expected no chain call, got %d", h.sol.calls())
	}
	if !models.IsIdle(h.step()) {
		t.Errorf("Expected reset to idle after lock report, got %v", h.step())
	}

	// Lock expires without an explicit unlock
	h.advance(6 * time.Minute)
	h.expect("send 0.5 sol to "+peerSolanaAddress(t), "Send 0.5 SOL")
	h.expect("yes", "Enter your PIN")
	h.expect(testPin, "submitted")
	if h.sol.calls() != 1 {
		t.Errorf("Expected 1 chain call after lock expiry, got %d", h.sol.calls())
	}
}

func TestPinEntry_NonDigitsDoNotCount(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.sol.setBalance("2.0")

	h.expect("send 0.5 sol to "+peerSolanaAddress(t), "Send 0.5 SOL")
	h.expect("ok", "Enter your PIN")
	h.expect("abcd", "4 digits")
	if got := h.account().FailedAttempts; got != 0 {
		t.Errorf("Expected no failed attempt for malformed input, got %d", got)
	}
}

func TestConcurrentPinEntry_SingleSubmission(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.sol.setBalance("2.0")
	h.expect("send 0.5 sol to "+peerSolanaAddress(t), "Send 0.5 SOL")
	h.expect("yes", "Enter your PIN")

	instances := []*Orchestrator{h.orch, h.newOrchestrator(), h.newOrchestrator()}
	replies := make([]string, len(instances))
	var wg sync.WaitGroup
	for i, o := range instances {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replies[i] = o.HandleMessage(context.Background(), testHandle, testPin, "")
		}()
	}
	wg.Wait()

	if h.sol.calls() != 1 {
		t.Fatalf("Expected exactly 1 chain submission, got %d (replies %q)", h.sol.calls(), replies)
	}
	submitted := 0
	for _, r := range replies {
		if strings.Contains(r, "submitted") {
			submitted++
		}
	}
	if submitted != 1 {
		t.Errorf("Expected exactly 1 submitted reply, got %d: %q", submitted, replies)
	}
}

func TestCancel_ResetsFlow(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)

	h.expect("cancel", "didn't get that")
	h.expect("swap", "Which chain?")
	h.expect("solana", "Which tokens?")
	h.expect("no", "Cancelled")
	if !models.IsIdle(h.step()) {
		t.Errorf("Expected idle, got %v", h.step())
	}
	h.expect("yes", "didn't get that")
}

func TestSwapFlow(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.sol.setBalance("3")

	h.expect("swap", "Which chain?")
	h.expect("sol", "Which tokens?")
	h.expect("usdc to usdc", "Which tokens?")
	h.expect("sol to usdc", "How much SOL?")
	h.expect("1", "Swap 1 SOL for USDC on Solana")
	h.expect("yes", "Enter your PIN")
	h.expect(testPin, "Swap submitted")

	rec, err := h.db.GetTransactionByHash(context.Background(), "swap-hash-1")
	if err != nil {
		t.Fatalf("GetTransactionByHash failed: %v", err)
	}
	if rec.Type != models.TransactionSwap || rec.ToTokenSymbol != "USDC" {
		t.Errorf("Unexpected swap record: %s to %s", rec.Type, rec.ToTokenSymbol)
	}
}

func TestPinlessAccount(t *testing.T) {
	h := newHarness(t)
	mnemonic := h.onboard("")
	h.sol.setBalance("1")

	account := h.account()
	if account.PinEnabled {
		t.Fatal("Expected PIN disabled")
	}

	h.expect("send 0.25 sol to "+peerSolanaAddress(t), "Send 0.25 SOL")
	h.expect("yes", "submitted")
	if h.sol.calls() != 1 {
		t.Errorf("Expected 1 chain call, got %d", h.sol.calls())
	}

	reply := h.expect("export seed", "low-security")
	if !strings.Contains(reply, mnemonic) {
		t.Errorf("Expected exported phrase to match onboarding phrase")
	}
}

func TestExportSeed_RequiresPin(t *testing.T) {
	h := newHarness(t)
	mnemonic := h.onboard(testPin)

	h.expect("show my recovery phrase", "Enter your PIN")
	h.expect("9999", "attempts left")
	reply := h.expect(testPin, "recovery phrase")
	if !strings.Contains(reply, mnemonic) {
		t.Errorf("Expected exported phrase to match onboarding phrase")
	}
	if got := h.account().FailedAttempts; got != 0 {
		t.Errorf("Expected failures cleared after success, got %d", got)
	}
}

func TestBalance_PartialFailure(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.sol.setBalance("2.0")
	h.evm.balanceErr = errors.New("rpc down")

	reply := h.expect("balance", "Solana: 2 SOL")
	if !strings.Contains(reply, "Ethereum: unavailable") {
		t.Errorf("Expected EVM to be reported unavailable, got %q", reply)
	}
}

func TestReceiveAndHistory(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)

	wallets, err := h.db.GetWallets(context.Background(), h.account().Id)
	if err != nil {
		t.Fatalf("GetWallets failed: %v", err)
	}
	reply := h.send("receive")
	for _, w := range wallets {
		if !strings.Contains(reply, w.Address) {
			t.Errorf("Expected %s address in %q", w.Family, reply)
		}
	}
	h.expect("history", "no transactions")
}

func TestSend_BroadcastFailureWithHashIsPending(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.sol.setBalance("2")
	h.sol.sendHash = "signedButLost"
	h.sol.sendErr = fmt.Errorf("%w: context deadline exceeded", chain.ErrBroadcast)

	h.expect("send 1 sol to "+peerSolanaAddress(t), "Send 1 SOL")
	h.expect("yes", "PIN")
	h.expect(testPin, "keep checking")

	rec, err := h.db.GetTransactionByHash(context.Background(), "signedButLost")
	if err != nil {
		t.Fatalf("Expected optimistic record: %v", err)
	}
	if rec.Status != models.StatusPending || rec.ErrorMessage == "" {
		t.Errorf("Expected PENDING with error message, got %s %q", rec.Status, rec.ErrorMessage)
	}
	if !models.IsIdle(h.step()) {
		t.Errorf("Expected idle session, got %v", h.step())
	}
}

func TestSend_FailureWithoutHash(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.sol.setBalance("2")
	h.sol.sendErr = errors.New("unable to get recent blockhash: connection refused")

	h.expect("send 1 sol to "+peerSolanaAddress(t), "Send 1 SOL")
	h.expect("yes", "PIN")
	reply := h.expect(testPin, "could not be completed")
	if strings.Contains(reply, "connection refused") {
		t.Errorf("Internal error leaked to the user: %q", reply)
	}

	records, err := h.db.GetTransactionHistory(context.Background(), h.account().Id, 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no record, got %d", len(records))
	}
	if !models.IsIdle(h.step()) {
		t.Errorf("Expected reset session, got %v", h.step())
	}
}

func TestReconcilePending(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.sol.setBalance("5")
	to := peerSolanaAddress(t)

	for i := 0; i < 2; i++ {
		h.expect("send 1 sol to "+to, "Send 1 SOL")
		h.expect("yes", "PIN")
		h.expect(testPin, "submitted")
	}
	h.sol.statuses["solana-hash-1"] = chain.TxStatus{Status: models.StatusConfirmed, BlockNumber: 42}

	settled, err := h.orch.ReconcilePending(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReconcilePending failed: %v", err)
	}
	if settled != 1 {
		t.Fatalf("Expected 1 settled record, got %d", settled)
	}
	rec, err := h.db.GetTransactionByHash(context.Background(), "solana-hash-1")
	if err != nil {
		t.Fatalf("GetTransactionByHash failed: %v", err)
	}
	if rec.Status != models.StatusConfirmed || rec.BlockNumber != 42 {
		t.Errorf("Expected CONFIRMED at block 42, got %s %d", rec.Status, rec.BlockNumber)
	}

	// The second hash is unknown to the node; it fails once stale
	h.advance(2 * time.Hour)
	settled, err = h.orch.ReconcilePending(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReconcilePending failed: %v", err)
	}
	if settled != 1 {
		t.Fatalf("Expected stale record to be failed, got %d", settled)
	}
	rec, err = h.db.GetTransactionByHash(context.Background(), "solana-hash-2")
	if err != nil {
		t.Fatalf("GetTransactionByHash failed: %v", err)
	}
	if rec.Status != models.StatusFailed {
		t.Errorf("Expected FAILED, got %s", rec.Status)
	}

	if h.journal.settlements["solana-hash-1"] != models.StatusConfirmed || h.journal.settlements["solana-hash-2"] != models.StatusFailed {
		t.Errorf("Unexpected settlements %v", h.journal.settlements)
	}
}

func TestSweepExpiredSessions(t *testing.T) {
	h := newHarness(t)
	h.onboard(testPin)
	h.expect("send", "Which chain?")

	h.advance(11 * time.Minute)
	count, err := h.orch.SweepExpiredSessions(context.Background())
	if err != nil {
		t.Fatalf("SweepExpiredSessions failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 swept session, got %d", count)
	}
	// Expired flows are forgotten
	h.expect("solana", "didn't get that")
}

func TestHandleMessage_EmptyHandle(t *testing.T) {
	h := newHarness(t)
	if reply := h.orch.HandleMessage(context.Background(), "  ", "hi", ""); reply != replyGenericError {
		t.Errorf("Expected generic error reply, got %q", reply)
	}
}

func TestParseAmount(t *testing.T) {
	usdc := chain.Token{Symbol: "USDC", Address: "x", Decimals: 6}
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"1", "1", true},
		{"0.5", "0.5", true},
		{"0.5 usdc", "0.5", true},
		{"0.1234567", "", false},
		{"0", "", false},
		{"-2", "", false},
		{"abc", "", false},
		{"1 sol", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := parseAmount(tt.in, usdc)
		if tt.valid {
			if err != nil {
				t.Errorf("parseAmount(%q) unexpected error: %v", tt.in, err)
				continue
			}
			if got.String() != tt.want {
				t.Errorf("parseAmount(%q) = %s, want %s", tt.in, got, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrValidation) {
			t.Errorf("parseAmount(%q) error = %v, want ErrValidation", tt.in, err)
		}
	}
}

func TestReplyForError_IsSanitized(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&LockedError{Remaining: 90 * time.Second}, "locked for 2 minutes"},
		{fmt.Errorf("%w: rpc 127.0.0.1 refused", ErrUpstreamUnavailable), replyTryLater},
		{fmt.Errorf("%w: nonce too low", ErrTransactionFailed), replyFailed},
		{errors.New("sql: database is locked"), replyGenericError},
	}
	for _, tt := range tests {
		if got := replyForError(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("replyForError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
