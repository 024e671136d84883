package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `mode = "local"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Mode)
	assert.Equal(t, int64(137), cfg.Chain.ChainID)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Engine.LockTTL.Duration)
	assert.Equal(t, 24*time.Hour, cfg.Archive.Interval.Duration)
}

func TestLoadParsesDurationsAndMarkets(t *testing.T) {
	path := writeConfig(t, `
mode = "local"

[engine]
distributed_lock = true
lock_ttl = "45s"

[[markets]]
id = "m1"
question = "Will it rain tomorrow?"
options = ["Yes side", "No side"]
stakes = [10.0, 90.0]
deadline = "2026-12-31T23:59:59Z"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 45*time.Second, cfg.Engine.LockTTL.Duration)
	require.Len(t, cfg.Markets, 1)
	assert.Equal(t, "m1", cfg.Markets[0].ID)
	assert.Equal(t, []float64{10, 90}, cfg.Markets[0].Stakes)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `mode = "local"`)

	t.Setenv("MARKETD_MODE", "full")
	t.Setenv("MARKETD_CHAIN_ID", "80002")
	t.Setenv("MARKETD_SERVER_PORT", "9090")
	t.Setenv("MARKETD_CHAIN_ALLOWLIST", "0xabc, 0xdef")
	t.Setenv("MARKETD_ENGINE_LOCK_TTL", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, int64(80002), cfg.Chain.ChainID)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"0xabc", "0xdef"}, cfg.Chain.Allowlist)
	assert.Equal(t, time.Minute, cfg.Engine.LockTTL.Duration)
}

func TestValidateLocalMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "local"
	assert.NoError(t, cfg.Validate())
}

func TestValidateFullModeRequiresChainAndStores(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_url")
	assert.Contains(t, err.Error(), "postgres")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateMarketShape(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "local"
	cfg.Markets = []MarketConfig{
		{ID: "m1", Options: []string{"only one"}},
		{ID: "m2", Options: []string{"a", "b"}, Stakes: []float64{1}},
		{ID: "m3", Options: []string{"a", "b"}, Deadline: "tomorrow"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least two options")
	assert.Contains(t, err.Error(), "stakes length")
	assert.Contains(t, err.Error(), "RFC 3339")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Chain.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Server.APIKey = "hunter2"
	cfg.Notify.TelegramToken = "hunter2"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Chain.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// The original is untouched.
	assert.Equal(t, "deadbeef", cfg.Chain.PrivateKey)
}
