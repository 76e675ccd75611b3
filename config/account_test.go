package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/config"
)

const validHexPrivateKey = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestLoadSigningKeyFromPrivateKey(t *testing.T) {
	raw := config.EnvString("0x" + validHexPrivateKey)
	a := config.AccountConfig{PrivateKey: &raw}

	key, err := a.LoadSigningKey()
	require.NoError(t, err)
	require.NotNil(t, key)
}

func TestLoadSigningKeyFromPrivateKeyWithout0xPrefix(t *testing.T) {
	raw := config.EnvString(validHexPrivateKey)
	a := config.AccountConfig{PrivateKey: &raw}

	key, err := a.LoadSigningKey()
	require.NoError(t, err)
	require.NotNil(t, key)
}

func TestLoadSigningKeyFromPrivateKeyWrongLength(t *testing.T) {
	raw := config.EnvString("0x" + validHexPrivateKey + "bb") // 33 bytes, invalid
	a := config.AccountConfig{PrivateKey: &raw}

	_, err := a.LoadSigningKey()
	require.Error(t, err)
}

func TestLoadSigningKeyFromInvalidPrivateKey(t *testing.T) {
	raw := config.EnvString("not-hex")
	a := config.AccountConfig{PrivateKey: &raw}

	_, err := a.LoadSigningKey()
	require.Error(t, err)
}

func TestLoadSigningKeyFromHDWalletIsUnsupported(t *testing.T) {
	a := config.AccountConfig{HDWallet: &config.HDWalletConfig{Mnemonic: "test test test"}}

	_, err := a.LoadSigningKey()
	require.ErrorIs(t, err, config.ErrHDWalletUnsupported)
}

func TestLoadSigningKeyFromKeystoreMissingFile(t *testing.T) {
	a := config.AccountConfig{Keystore: &config.KeystoreConfig{Path: filepath.Join(t.TempDir(), "missing.json")}}

	_, err := a.LoadSigningKey()
	require.Error(t, err)
}

func TestLoadSigningKeyFromKeystoreInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keystore.json")
	require.NoError(t, os.WriteFile(path, []byte("not valid json"), 0o600))

	a := config.AccountConfig{Keystore: &config.KeystoreConfig{Path: path, Password: "secret"}}
	_, err := a.LoadSigningKey()
	require.Error(t, err)
}

func TestLoadSigningKeyNoVariantConfigured(t *testing.T) {
	var a config.AccountConfig
	_, err := a.LoadSigningKey()
	require.Error(t, err)
}
