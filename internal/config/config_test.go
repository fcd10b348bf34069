package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Providers.LocalRPCURL = "https://sepolia.base.org"
	cfg.Wallet.PrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	return cfg
}

func TestDefaultsValidateWithProvider(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingProviders(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers:")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "backtest"
	cfg.Contracts.Market = "not-an-address"
	cfg.Market.FeeBps = 10_000
	cfg.Submit.ConfirmTimeout = cfg.Submit.ConfirmInterval

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "contracts: market")
	assert.Contains(t, err.Error(), "fee_bps")
	assert.Contains(t, err.Error(), "confirm_timeout")
}

func TestValidateRequiresKeyForLocalProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet:")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "serve"

[providers]
primary = "rabby"
local_rpc_url = "https://sepolia.base.org"

[[providers.ws]]
name = "rabby"
url = "wss://bridge.example/rpc"

[submit]
confirm_interval = "500ms"
confirm_timeout = "45s"

[server]
port = 9090
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("POOLBOT_WALLET_PRIVATE_KEY", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	t.Setenv("POOLBOT_SERVER_PORT", "7070")
	t.Setenv("POOLBOT_NOTIFY_EVENTS", "error, pool_resolved")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "rabby", cfg.Providers.Primary)
	require.Len(t, cfg.Providers.WS, 1)
	assert.Equal(t, "wss://bridge.example/rpc", cfg.Providers.WS[0].URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Submit.ConfirmInterval.Duration)
	assert.Equal(t, 45*time.Second, cfg.Submit.ConfirmTimeout.Duration)

	// Env beats file, and defaults survive where neither sets a value.
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"error", "pool_resolved"}, cfg.Notify.Events)
	assert.Equal(t, uint64(84532), cfg.Chain.ID)
}
