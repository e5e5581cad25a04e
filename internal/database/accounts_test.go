package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatwallet/internal/models"
	"chatwallet/internal/store"
)

func TestCreateAccount_Defaults(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	account := createTestAccount(t, service, "+15550001")

	if account.OnboardingStatus != models.OnboardingPending {
		t.Errorf("Expected PENDING, got %s", account.OnboardingStatus)
	}
	if account.OnboardingStep != models.StepAwaitingPinChoice {
		t.Errorf("Expected AWAITING_PIN_CHOICE, got %s", account.OnboardingStep)
	}
	if account.PinEnabled || account.PinHash != "" {
		t.Error("Expected no PIN on a new account")
	}
	if account.LockedUntil != nil {
		t.Error("Expected no lock on a new account")
	}
}

func TestCreateAccount_DuplicateHandle(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	createTestAccount(t, service, "+15550001")
	_, err := service.CreateAccount(context.Background(), store.CreateAccountParams{Handle: "+15550001"})
	if !errors.Is(err, store.ErrDuplicateAccount) {
		t.Errorf("Expected ErrDuplicateAccount, got %v", err)
	}
}

func TestGetAccountByHandle_NotFound(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.GetAccountByHandle(context.Background(), "+19999")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFailedAttemptsAndLock(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, service, "+15550001")

	for want := 1; want <= 3; want++ {
		got, err := service.IncrementFailedAttempts(ctx, account.Id)
		if err != nil {
			t.Fatalf("IncrementFailedAttempts failed: %v", err)
		}
		if got != want {
			t.Errorf("Expected %d attempts, got %d", want, got)
		}
	}

	until := time.Now().Add(5 * time.Minute).UTC()
	if err := service.SetLockedUntil(ctx, account.Id, until); err != nil {
		t.Fatalf("SetLockedUntil failed: %v", err)
	}
	// An earlier lock must not shorten the existing one
	if err := service.SetLockedUntil(ctx, account.Id, until.Add(-time.Minute)); err != nil {
		t.Fatalf("SetLockedUntil failed: %v", err)
	}

	reloaded, err := service.GetAccountById(ctx, account.Id)
	if err != nil {
		t.Fatalf("GetAccountById failed: %v", err)
	}
	if reloaded.LockedUntil == nil || !reloaded.LockedUntil.Equal(until) {
		t.Errorf("Expected lock until %v, got %v", until, reloaded.LockedUntil)
	}
	if reloaded.FailedAttempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", reloaded.FailedAttempts)
	}

	if err := service.ResetFailedAttempts(ctx, account.Id); err != nil {
		t.Fatalf("ResetFailedAttempts failed: %v", err)
	}
	reloaded, _ = service.GetAccountById(ctx, account.Id)
	if reloaded.FailedAttempts != 0 || reloaded.LockedUntil != nil {
		t.Errorf("Expected counter and lock cleared, got %d / %v", reloaded.FailedAttempts, reloaded.LockedUntil)
	}
}

func TestUpdatePinAndOnboarding(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, service, "+15550001")

	if err := service.UpdatePin(ctx, account.Id, store.PinUpdate{PinHash: "$2a$10$x", PinEnabled: true}); err != nil {
		t.Fatalf("UpdatePin failed: %v", err)
	}
	if err := service.UpdateOnboarding(ctx, account.Id, store.OnboardingUpdate{
		Status: models.OnboardingCompleted,
		Step:   models.StepCompleted,
	}); err != nil {
		t.Fatalf("UpdateOnboarding failed: %v", err)
	}

	reloaded, err := service.GetAccountByHandle(ctx, "+15550001")
	if err != nil {
		t.Fatalf("GetAccountByHandle failed: %v", err)
	}
	if !reloaded.PinEnabled || reloaded.PinHash != "$2a$10$x" {
		t.Errorf("PIN not stored: %+v", reloaded)
	}
	if !reloaded.Onboarded() {
		t.Error("Expected account to be onboarded")
	}

	if err := service.UpdatePin(ctx, "missing", store.PinUpdate{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing account, got %v", err)
	}
}

func TestCreateWallets_Atomic(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, service, "+15550001")

	wallets := []store.CreateWalletParams{
		{Family: models.FamilyEVM, Address: "0xabc", DerivationPath: "m/44'/60'/0'/0/0", EncryptedSeed: "c", Salt: "s", IsDefault: true},
		{Family: models.FamilySolana, Address: "So1", DerivationPath: "m/44'/501'/0'/0'", EncryptedSeed: "c", Salt: "s"},
	}
	pin := store.PinUpdate{PinHash: "$2a$10$x", PinEnabled: true}
	created, err := service.CreateWallets(ctx, account.Id, store.ProvisionParams{Pin: pin, Wallets: wallets})
	if err != nil {
		t.Fatalf("CreateWallets failed: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("Expected 2 wallets, got %d", len(created))
	}

	// A second batch with a duplicate family must not insert anything
	_, err = service.CreateWallets(ctx, account.Id, store.ProvisionParams{Wallets: wallets[:1]})
	if err == nil {
		t.Fatal("Expected duplicate family to fail")
	}

	all, err := service.GetWallets(ctx, account.Id)
	if err != nil {
		t.Fatalf("GetWallets failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 wallets after failed batch, got %d", len(all))
	}
	if reloaded, err := service.GetAccountById(ctx, account.Id); err != nil || !reloaded.PinEnabled {
		t.Errorf("Expected PIN kept after failed batch, got %+v (%v)", reloaded, err)
	}
	if !all[0].IsDefault {
		t.Error("Expected default wallet first")
	}

	sol, err := service.GetWallet(ctx, account.Id, models.FamilySolana)
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if sol.Address != "So1" {
		t.Errorf("Expected So1, got %s", sol.Address)
	}
}

func TestCreateWallets_RollsBackWithPin(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	wallets := []store.CreateWalletParams{
		{Family: models.FamilyEVM, Address: "0xabc", DerivationPath: "m/44'/60'/0'/0/0", EncryptedSeed: "c", Salt: "s", IsDefault: true},
	}

	// No account row: the PIN update finds nothing and the wallets roll back
	_, err := service.CreateWallets(ctx, "missing", store.ProvisionParams{
		Pin:     store.PinUpdate{PinHash: "h", PinEnabled: true},
		Wallets: wallets,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	left, err := service.GetWallets(ctx, "missing")
	if err != nil {
		t.Fatalf("GetWallets failed: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("Expected no wallets after rollback, got %d", len(left))
	}
}

func TestCreateWallets_Replace(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, service, "+15550001")

	first := []store.CreateWalletParams{
		{Family: models.FamilyEVM, Address: "0xold", DerivationPath: "m/44'/60'/0'/0/0", EncryptedSeed: "old", Salt: "s1", IsDefault: true},
	}
	if _, err := service.CreateWallets(ctx, account.Id, store.ProvisionParams{Wallets: first}); err != nil {
		t.Fatalf("CreateWallets failed: %v", err)
	}

	second := []store.CreateWalletParams{
		{Family: models.FamilyEVM, Address: "0xnew", DerivationPath: "m/44'/60'/0'/0/0", EncryptedSeed: "new", Salt: "s2", IsDefault: true},
	}
	if _, err := service.CreateWallets(ctx, account.Id, store.ProvisionParams{
		Pin:     store.PinUpdate{PinHash: "h", PinEnabled: true},
		Wallets: second,
		Replace: true,
	}); err != nil {
		t.Fatalf("CreateWallets(Replace) failed: %v", err)
	}

	all, err := service.GetWallets(ctx, account.Id)
	if err != nil {
		t.Fatalf("GetWallets failed: %v", err)
	}
	if len(all) != 1 || all[0].Address != "0xnew" || all[0].EncryptedSeed != "new" {
		t.Errorf("Expected only the replacement wallet, got %+v", all)
	}
}
