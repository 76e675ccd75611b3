package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
)

// LoadSigningKey resolves the account block into a raw ECDSA private key,
// supporting the keystore and private_key variants of spec.md §6's account
// config. The hdwallet variant is parsed but not implemented: no BIP39/
// HD-wallet mnemonic library is available in this module's dependency
// stack, so it returns ErrHDWalletUnsupported rather than a fabricated
// derivation.
func (a AccountConfig) LoadSigningKey() (*ecdsa.PrivateKey, error) {
	switch {
	case a.HDWallet != nil:
		return nil, ErrHDWalletUnsupported
	case a.Keystore != nil:
		return loadKeystoreKey(a.Keystore)
	case a.PrivateKey != nil:
		return loadRawPrivateKey(string(*a.PrivateKey))
	default:
		return nil, fmt.Errorf("config: account has no key source configured")
	}
}

// ErrHDWalletUnsupported is returned by LoadSigningKey for an hdwallet
// account block (spec.md §6 allows hdwallet as one of three account
// kinds, but no BIP39/HD-wallet derivation library is present anywhere
// in this module's example corpus).
var ErrHDWalletUnsupported = fmt.Errorf("config: hdwallet account is not supported: no BIP39/HD-wallet dependency available in this module's stack")

func loadKeystoreKey(ks *KeystoreConfig) (*ecdsa.PrivateKey, error) {
	jsonBytes, err := os.ReadFile(ks.Path)
	if err != nil {
		return nil, fmt.Errorf("config: read keystore file %s: %w", ks.Path, err)
	}
	key, err := keystore.DecryptKey(jsonBytes, string(ks.Password))
	if err != nil {
		return nil, fmt.Errorf("config: decrypt keystore file %s: %w", ks.Path, err)
	}
	return key.PrivateKey, nil
}

func loadRawPrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	hexKey := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("config: parse private_key: %w", err)
	}
	return key, nil
}
