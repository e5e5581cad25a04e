package chain

import (
	"fmt"
	"sort"
	"strings"

	"chatwallet/internal/models"
)

var (
	EtherToken = Token{Symbol: "ETH", Decimals: 18}
	SolToken   = Token{Symbol: "SOL", Decimals: 9}
)

// DefaultTokens are tradable without any token config.
var DefaultTokens = map[models.ChainFamily][]Token{
	models.FamilyEVM: {
		EtherToken,
		{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
	},
	models.FamilySolana: {
		SolToken,
		{Symbol: "USDC", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
	},
}

// TokenRegistry resolves token symbols per family.
type TokenRegistry struct {
	tokens map[models.ChainFamily]map[string]Token
}

// NewTokenRegistry merges extra over DefaultTokens; a later symbol overrides.
func NewTokenRegistry(extra map[models.ChainFamily][]Token) *TokenRegistry {
	r := &TokenRegistry{tokens: make(map[models.ChainFamily]map[string]Token)}
	for _, set := range []map[models.ChainFamily][]Token{DefaultTokens, extra} {
		for family, tokens := range set {
			if r.tokens[family] == nil {
				r.tokens[family] = make(map[string]Token)
			}
			for _, t := range tokens {
				r.tokens[family][strings.ToUpper(t.Symbol)] = t
			}
		}
	}
	return r
}

func (r *TokenRegistry) Lookup(family models.ChainFamily, symbol string) (Token, error) {
	t, ok := r.tokens[family][strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s on %s", ErrUnknownToken, symbol, family)
	}
	return t, nil
}

// Symbols lists the family's tokens, native first then alphabetical.
func (r *TokenRegistry) Symbols(family models.ChainFamily) []string {
	var native, rest []string
	for sym, t := range r.tokens[family] {
		if t.IsNative() {
			native = append(native, sym)
		} else {
			rest = append(rest, sym)
		}
	}
	sort.Strings(rest)
	return append(native, rest...)
}

// FindSymbol returns the first known symbol of family mentioned in text.
func (r *TokenRegistry) FindSymbol(family models.ChainFamily, text string) (Token, bool) {
	for _, word := range strings.Fields(strings.ToUpper(text)) {
		word = strings.Trim(word, ".,!?;:")
		if t, ok := r.tokens[family][word]; ok {
			return t, true
		}
	}
	return Token{}, false
}
