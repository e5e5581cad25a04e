package chain

import (
	"fmt"

	"chatwallet/internal/models"

	"github.com/blocto/solana-go-sdk/pkg/hdwallet"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// EVMPath is m/44'/60'/0'/0/index
func EVMPath(index uint32) string {
	return fmt.Sprintf("m/44'/60'/0'/0/%d", index)
}

// SolanaPath is m/44'/501'/index'/0'
func SolanaPath(index uint32) string {
	return fmt.Sprintf("m/44'/501'/%d'/0'", index)
}

// DeriveEVMKeypair derives a secp256k1 key along EVMPath(index).
func DeriveEVMKeypair(seed []byte, index uint32) (*Keypair, error) {
	strPath := EVMPath(index)
	path, err := accounts.ParseDerivationPath(strPath)
	if err != nil {
		return nil, err
	}

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("unable to create master key: %w", err)
	}
	for _, i := range path {
		key, err = key.Derive(i)
		if err != nil {
			return nil, fmt.Errorf("unable to derive %s: %w", strPath, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("unable to get private key: %w", err)
	}
	ecdsaKey := priv.ToECDSA()

	return &Keypair{
		Family:     models.FamilyEVM,
		Address:    ethcrypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex(),
		Path:       strPath,
		Index:      index,
		PrivateKey: ethcrypto.FromECDSA(ecdsaKey),
	}, nil
}

// DeriveSolanaKeypair derives an ed25519 key along SolanaPath(index) using
// SLIP-0010, the scheme Solana wallets use for BIP-44 paths.
func DeriveSolanaKeypair(seed []byte, index uint32) (*Keypair, error) {
	strPath := SolanaPath(index)
	key, err := hdwallet.Derived(strPath, seed)
	if err != nil {
		return nil, fmt.Errorf("unable to derive %s: %w", strPath, err)
	}
	account, err := types.AccountFromSeed(key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("unable to derive %s: %w", strPath, err)
	}

	return &Keypair{
		Family:     models.FamilySolana,
		Address:    account.PublicKey.ToBase58(),
		Path:       strPath,
		Index:      index,
		PrivateKey: account.PrivateKey,
	}, nil
}
