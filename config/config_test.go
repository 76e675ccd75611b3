package config_test

import (
	"os"
	"path/filepath"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/config"
)

const validYAML = `
provider_endpoint: "https://mainnet.example/rpc"
chain_id: 1
controller_address: "0x0000000000000000000000000000000000000001"
adapter_address: "0x0000000000000000000000000000000000000002"
account:
  private_key: "0xabc123"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1), cfg.ChainID)
	require.Equal(t, "./data", cfg.DataPath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsMissingProviderEndpoint(t *testing.T) {
	path := writeConfig(t, `
chain_id: 1
controller_address: "0x0000000000000000000000000000000000000001"
adapter_address: "0x0000000000000000000000000000000000000002"
account:
  private_key: "0xabc123"
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidHexAddress(t *testing.T) {
	path := writeConfig(t, `
provider_endpoint: "https://mainnet.example/rpc"
controller_address: "not-an-address"
adapter_address: "0x0000000000000000000000000000000000000002"
account:
  private_key: "0xabc123"
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsAccountWithNoVariant(t *testing.T) {
	path := writeConfig(t, `
provider_endpoint: "https://mainnet.example/rpc"
controller_address: "0x0000000000000000000000000000000000000001"
adapter_address: "0x0000000000000000000000000000000000000002"
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsAccountWithMultipleVariants(t *testing.T) {
	path := writeConfig(t, `
provider_endpoint: "https://mainnet.example/rpc"
controller_address: "0x0000000000000000000000000000000000000001"
adapter_address: "0x0000000000000000000000000000000000000002"
account:
  private_key: "0xabc123"
  keystore:
    path: "/tmp/keystore.json"
    password: "secret"
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestEnvStringResolvesEnvIndirection(t *testing.T) {
	t.Setenv("RANDCAST_TEST_TOKEN", "super-secret")
	path := writeConfig(t, validYAML+"\nnode_management_rpc_token: \"env:RANDCAST_TEST_TOKEN\"\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "super-secret", cfg.NodeManagementRPCToken.String())
}

func TestEnvStringMissingEnvVarFails(t *testing.T) {
	path := writeConfig(t, validYAML+"\nnode_management_rpc_token: \"env:RANDCAST_TEST_TOKEN_MISSING\"\n")
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestListenerDefaultsAppliedWhenOmitted(t *testing.T) {
	path := writeConfig(t, validYAML+"\nlisteners:\n  - l_type: \"block\"\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Listeners, 1)
	require.Equal(t, int64(10_000), cfg.Listeners[0].IntervalMillis)
}

func TestTimeLimitsDefaultsWhenOmitted(t *testing.T) {
	var t2 config.TimeLimitsConfig
	require.Equal(t, int64(15_000), t2.BlockTime().Milliseconds())
	require.Equal(t, int64(10_000), t2.ListenerInterval().Milliseconds())

	view := t2.ContractViewRetry()
	require.Equal(t, 5, view.MaxAttempts)

	tx := t2.ContractTransactionRetry()
	require.Equal(t, 3, tx.MaxAttempts)
}

func TestTimeLimitsRetryDescriptorOverridesDefault(t *testing.T) {
	t2 := config.TimeLimitsConfig{
		ContractViewRetryDescriptor: config.RetryDescriptorConfig{MaxAttempts: 9},
	}
	view := t2.ContractViewRetry()
	require.Equal(t, 9, view.MaxAttempts)
}

func TestRelayedChainAddressesOmitsMainChainOnlyFields(t *testing.T) {
	rc := config.RelayedChainConfig{
		ControllerRelayerAddress: "0x0000000000000000000000000000000000000003",
		AdapterAddress:           "0x0000000000000000000000000000000000000004",
	}
	addrs := rc.Addresses()
	require.NotEqual(t, ethcommon.Address{}, addrs.ControllerRelayer)
	require.Equal(t, ethcommon.Address{}, addrs.Controller)
}
