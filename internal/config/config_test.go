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
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("SCP_AUTH_SIGNING_KEY", "k")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "app.db", cfg.DB.Path)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 0.002, cfg.Drain.Rate)
	assert.Equal(t, time.Second, cfg.Drain.Interval)
	assert.Equal(t, 4, cfg.Drain.FlushConcurrency)
	assert.Equal(t, BackendLocal, cfg.Backend.Mode)
	assert.Equal(t, 100.0, cfg.Purchase.UnitPrice)
	assert.Equal(t, 100.0, cfg.Purchase.MinAmount)
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := writeConfig(t, `
port: "9090"
auth:
  signing_key: from-file
drain:
  rate: 0.01
  interval: 250ms
backend:
  mode: REMOTE
  remote:
    base_url: http://meters.local/api/v1
`)
	t.Setenv("SCP_PORT", "7070")
	t.Setenv("SCP_DRAIN_FLUSH_CONCURRENCY", "8")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "from-file", cfg.Auth.SigningKey)
	assert.Equal(t, 0.01, cfg.Drain.Rate)
	assert.Equal(t, 250*time.Millisecond, cfg.Drain.Interval)
	assert.Equal(t, 8, cfg.Drain.FlushConcurrency)
	assert.Equal(t, BackendRemote, cfg.Backend.Mode)
	assert.Equal(t, "http://meters.local/api/v1", cfg.Backend.Remote.BaseURL)
}

func TestLoad_Validation(t *testing.T) {
	tests := map[string]string{
		"missing signing key": `port: "1"`,
		"bad rate": `
auth: {signing_key: k}
drain: {rate: -1}`,
		"unknown mode": `
auth: {signing_key: k}
backend: {mode: carrier-pigeon}`,
		"remote without url": `
auth: {signing_key: k}
backend: {mode: remote}`,
		"free units": `
auth: {signing_key: k}
purchase: {unit_price: 0}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "port: [unterminated"))
	assert.Error(t, err)
}
