package chain

import (
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// EntropyBits yields a 12-word mnemonic
const EntropyBits = 128

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// NewMnemonic generates a fresh BIP-39 recovery phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(EntropyBits)
	if err != nil {
		return "", fmt.Errorf("unable to generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("unable to generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// SeedFromMnemonic validates the phrase and returns its 64-byte BIP-39 seed.
func SeedFromMnemonic(mnemonic string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	return bip39.NewSeed(mnemonic, ""), nil
}
