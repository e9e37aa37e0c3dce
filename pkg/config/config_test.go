package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoadAppliesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playdate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://file/playdate
  tx_retry:
    max_attempts: 9
auth:
  jwt_secret: `+secret+`
api:
  port: 9000
reconciler:
  interval: 30s
`), 0o600))

	t.Setenv(FileEnv, path)
	t.Setenv("API_PORT", "9100")
	t.Setenv("RECONCILER_OVERLAP", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/playdate", cfg.Database.URL)
	assert.Equal(t, uint(9), cfg.Database.TxRetry.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Database.TxRetry.InitialInterval, "defaults survive a partial file")
	assert.Equal(t, 9100, cfg.API.Port, "env overrides the file")
	assert.Equal(t, 30*time.Second, cfg.Reconciler.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Reconciler.Overlap)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET is required")

	cfg, err := LoadWithDefaults()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "at least 32"},
		{"port", func(c *Config) { c.API.Port = 70000 }, "out of range"},
		{"interval", func(c *Config) { c.Reconciler.Interval = 0 }, "RECONCILER_INTERVAL"},
		{"overlap", func(c *Config) { c.Reconciler.Overlap = -time.Second }, "RECONCILER_OVERLAP"},
		{"ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "between 0 and 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Auth.JWTSecret = secret
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
