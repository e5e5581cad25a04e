package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"chatwallet/internal/models"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultIterations = 10000
	DefaultBcryptCost = 10
	KeyLength         = 32
	SaltLength        = 16
)

var (
	ErrEmptyMasterKey = errors.New("master encryption key cannot be empty")
	ErrEmptyMnemonic  = errors.New("mnemonic cannot be empty")
	ErrEmptySecret    = errors.New("derivation secret cannot be empty")
)

// EncryptedSeed is the stored form of a mnemonic, both fields base64.
type EncryptedSeed struct {
	Ciphertext string
	Salt       string
}

// Vault hashes PINs and encrypts recovery seeds. Every derived key binds the
// user secret to the process-wide master key, so rotating the master key
// invalidates all stored ciphertexts and needs a re-encryption migration.
type Vault struct {
	masterKey  []byte
	iterations int
	bcryptCost int
}

func New(cfg models.VaultConfig) (*Vault, error) {
	if cfg.MasterKey == "" {
		return nil, ErrEmptyMasterKey
	}
	iterations := cfg.Pbkdf2Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return &Vault{masterKey: []byte(cfg.MasterKey), iterations: iterations, bcryptCost: cost}, nil
}

// HashPin returns a bcrypt hash of pin. The PIN grammar is checked first.
func (v *Vault) HashPin(pin string) (string, error) {
	if err := ValidatePin(pin); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), v.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("unable to hash pin: %w", err)
	}
	return string(hash), nil
}

// VerifyPin reports whether pin matches hash. Empty input is false without hashing.
func (v *Vault) VerifyPin(pin, hash string) bool {
	if pin == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// DeriveKey stretches masterKey||secret over salt into a 256-bit key.
func (v *Vault) DeriveKey(secret string, salt []byte) []byte {
	material := make([]byte, 0, len(v.masterKey)+len(secret))
	material = append(material, v.masterKey...)
	material = append(material, secret...)
	return pbkdf2.Key(material, salt, v.iterations, KeyLength, sha256.New)
}

// EncryptSeed encrypts mnemonic under a key derived from secret and a fresh salt.
func (v *Vault) EncryptSeed(mnemonic, secret string) (EncryptedSeed, error) {
	if mnemonic == "" {
		return EncryptedSeed{}, ErrEmptyMnemonic
	}
	if secret == "" {
		return EncryptedSeed{}, ErrEmptySecret
	}

	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return EncryptedSeed{}, fmt.Errorf("unable to generate salt: %w", err)
	}

	gcm, err := newGCM(v.DeriveKey(secret, salt))
	if err != nil {
		return EncryptedSeed{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedSeed{}, fmt.Errorf("unable to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(mnemonic), nil)
	return EncryptedSeed{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Salt:       base64.StdEncoding.EncodeToString(salt),
	}, nil
}

// DecryptSeed returns the mnemonic and true, or "" and false on any failure.
// A wrong secret is indistinguishable from corrupt input.
func (v *Vault) DecryptSeed(ciphertext, secret, salt string) (string, bool) {
	if ciphertext == "" || secret == "" || salt == "" {
		return "", false
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", false
	}
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", false
	}

	gcm, err := newGCM(v.DeriveKey(secret, rawSalt))
	if err != nil {
		return "", false
	}
	if len(data) < gcm.NonceSize() {
		return "", false
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", false
	}
	return string(plaintext), true
}

// DerivationSecret picks the key derivation secret of an account. Accounts
// without a PIN use their handle, which is a documented low-security mode.
func DerivationSecret(account *models.Account, pin string) string {
	if account.PinEnabled {
		return pin
	}
	return account.Handle
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("unable to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("unable to create gcm: %w", err)
	}
	return gcm, nil
}
