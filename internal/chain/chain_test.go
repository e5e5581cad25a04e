package chain

import (
	"errors"
	"math/big"
	"testing"

	"chatwallet/internal/models"

	"github.com/shopspring/decimal"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int32
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.5", 18, "1500000000000000000"},
		{"0.000000001", 9, "1"},
		{"0.0000000019", 9, "1"},
		{"25.25", 6, "25250000"},
	}

	for _, tt := range tests {
		got := ToBaseUnits(decimal.RequireFromString(tt.amount), tt.decimals)
		if got.String() != tt.want {
			t.Errorf("ToBaseUnits(%s, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
		}
	}
}

func TestFromBaseUnits(t *testing.T) {
	raw, _ := new(big.Int).SetString("1500000000000000000", 10)
	got := FromBaseUnits(raw, 18)
	if !got.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Expected 1.5, got %s", got)
	}
}

func TestParseFamily(t *testing.T) {
	tests := []struct {
		text string
		want models.ChainFamily
		ok   bool
	}{
		{"ETH", models.FamilyEVM, true},
		{" ethereum ", models.FamilyEVM, true},
		{"base", models.FamilyEVM, true},
		{"Solana", models.FamilySolana, true},
		{"sol", models.FamilySolana, true},
		{"bitcoin", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseFamily(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseFamily(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFindFamily(t *testing.T) {
	if f, ok := FindFamily("send 2 SOL to my friend"); !ok || f != models.FamilySolana {
		t.Errorf("Expected SOLANA, got %q %v", f, ok)
	}
	if f, ok := FindFamily("what's my eth balance?"); !ok || f != models.FamilyEVM {
		t.Errorf("Expected EVM, got %q %v", f, ok)
	}
	if _, ok := FindFamily("hello there"); ok {
		t.Error("Expected no family")
	}
}

func TestAddressGrammar(t *testing.T) {
	evm := "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	sol := "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	if !IsEVMAddress(evm) {
		t.Error("Expected valid EVM address")
	}
	if IsEVMAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda9") {
		t.Error("Expected short EVM address to be rejected")
	}
	if !IsSolanaAddress(sol) {
		t.Error("Expected valid Solana address")
	}
	if IsSolanaAddress("0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl") {
		t.Error("Expected non-base58 address to be rejected")
	}

	if f, ok := DetectFamily(evm); !ok || f != models.FamilyEVM {
		t.Errorf("DetectFamily(evm) = %q, %v", f, ok)
	}
	if f, ok := DetectFamily(sol); !ok || f != models.FamilySolana {
		t.Errorf("DetectFamily(sol) = %q, %v", f, ok)
	}
	if ValidateAddress(models.FamilySolana, evm) {
		t.Error("EVM address must not validate as Solana")
	}
}

func TestTokenRegistry(t *testing.T) {
	reg := NewTokenRegistry(map[models.ChainFamily][]Token{
		models.FamilySolana: {{Symbol: "bonk", Address: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Decimals: 5}},
	})

	sol, err := reg.Lookup(models.FamilySolana, "sol")
	if err != nil || !sol.IsNative() {
		t.Fatalf("Expected native SOL, got %+v %v", sol, err)
	}
	bonk, err := reg.Lookup(models.FamilySolana, "BONK")
	if err != nil || bonk.Decimals != 5 {
		t.Fatalf("Expected BONK from extra config, got %+v %v", bonk, err)
	}
	if _, err := reg.Lookup(models.FamilyEVM, "BONK"); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("Expected ErrUnknownToken, got %v", err)
	}

	symbols := reg.Symbols(models.FamilySolana)
	if len(symbols) != 3 || symbols[0] != "SOL" || symbols[1] != "BONK" || symbols[2] != "USDC" {
		t.Errorf("Unexpected symbol order: %v", symbols)
	}

	if tok, ok := reg.FindSymbol(models.FamilyEVM, "swap 1 usdc for eth"); !ok || tok.Symbol != "USDC" {
		t.Errorf("FindSymbol = %+v, %v", tok, ok)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(NewSolana(nil, nil))
	if _, err := reg.Get(models.FamilyEVM); !errors.Is(err, ErrUnsupportedFamily) {
		t.Errorf("Expected ErrUnsupportedFamily, got %v", err)
	}
	if families := reg.Families(); len(families) != 1 || families[0] != models.FamilySolana {
		t.Errorf("Unexpected families: %v", families)
	}
}
