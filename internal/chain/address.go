package chain

import (
	"regexp"

	"chatwallet/internal/models"

	"github.com/mr-tron/base58"
)

var (
	evmAddressPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	solanaAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// IsEVMAddress reports whether s is a 20-byte hex address with 0x prefix.
func IsEVMAddress(s string) bool {
	return evmAddressPattern.MatchString(s)
}

// IsSolanaAddress reports whether s is base58 that decodes to a 32-byte key.
func IsSolanaAddress(s string) bool {
	if !solanaAddressPattern.MatchString(s) {
		return false
	}
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}

// ValidateAddress checks s against the grammar of family.
func ValidateAddress(family models.ChainFamily, s string) bool {
	switch family {
	case models.FamilyEVM:
		return IsEVMAddress(s)
	case models.FamilySolana:
		return IsSolanaAddress(s)
	}
	return false
}

// DetectFamily returns the family whose grammar s matches. The two
// grammars are disjoint: '0' and 'x' are outside the base58 alphabet.
func DetectFamily(s string) (models.ChainFamily, bool) {
	switch {
	case IsEVMAddress(s):
		return models.FamilyEVM, true
	case IsSolanaAddress(s):
		return models.FamilySolana, true
	}
	return "", false
}
