package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsYAMLAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
ledger:
  rpc_url: ws://node:8546
  gomoku_address: "0x00000000000000000000000000000000000000aa"
lobby:
  window_size: 20
  turn_timeout: 2m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	chdir(t, dir)
	t.Setenv("GOMOKU_LEDGER_VAULT_ADDRESS", "0x00000000000000000000000000000000000000bb")
	t.Setenv("GOMOKU_LOBBY_WATCHDOG_INTERVAL", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "ws://node:8546", cfg.Ledger.RPCURL)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", cfg.Ledger.GomokuAddress)
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", cfg.Ledger.VaultAddress)
	assert.Equal(t, 20, cfg.Lobby.WindowSize)
	assert.Equal(t, 2*time.Minute, cfg.Lobby.TurnTimeout)
	assert.Equal(t, 3*time.Second, cfg.Lobby.WatchdogInterval)
	assert.Equal(t, 15*time.Second, cfg.Lobby.RefreshInterval)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Ledger.GomokuAddress = "0x00000000000000000000000000000000000000aa"
		cfg.Ledger.VaultAddress = "0x00000000000000000000000000000000000000bb"
		cfg.Ledger.PrivateKey = "deadbeef"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"missing rpc url":      func(c *Config) { c.Ledger.RPCURL = "" },
		"missing gomoku":       func(c *Config) { c.Ledger.GomokuAddress = "" },
		"missing vault":        func(c *Config) { c.Ledger.VaultAddress = "" },
		"missing key":          func(c *Config) { c.Ledger.PrivateKey = "" },
		"zero window":          func(c *Config) { c.Lobby.WindowSize = 0 },
		"negative concurrency": func(c *Config) { c.Lobby.LookupConcurrency = -1 },
		"zero timeout":         func(c *Config) { c.Lobby.TurnTimeout = 0 },
		"zero watchdog":        func(c *Config) { c.Lobby.WatchdogInterval = 0 },
		"negative refresh":     func(c *Config) { c.Lobby.RefreshInterval = -time.Second },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
