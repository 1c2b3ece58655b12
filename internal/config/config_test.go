package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnvDefaults(t *testing.T) {
	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join("./data", "uploads"), cfg.Storage.UploadDir)
	assert.Equal(t, filepath.Join("./data", "temp"), cfg.Storage.TempDir)
	assert.Equal(t, filepath.Join("./data", "scribed.db"), cfg.Storage.DBPath)
	assert.Equal(t, "local", cfg.Transcribe.DefaultMethod)
	assert.Equal(t, "auto", cfg.Transcribe.DefaultLanguage)
	assert.True(t, cfg.Transcribe.AddTimestamps)
	assert.Equal(t, 0.006, cfg.Transcribe.RatePerMinute)
	assert.Equal(t, int64(500*1024*1024), cfg.Transcribe.MaxUploadBytes)
	assert.Equal(t, "0 3 * * *", cfg.Sweep.CronExpr)
	assert.Equal(t, 24, cfg.Sweep.TTLHours)
}

func TestNewFromEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/scribed")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("DEFAULT_METHOD", "remote")
	t.Setenv("DEFAULT_LANGUAGE", "uk")
	t.Setenv("REMOTE_RATE_PER_MINUTE", "0.01")
	t.Setenv("SWEEP_TTL_HOURS", "48")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, filepath.Join("/var/lib/scribed", "uploads"), cfg.Storage.UploadDir)
	assert.Equal(t, "remote", cfg.Transcribe.DefaultMethod)
	assert.Equal(t, "uk", cfg.Transcribe.DefaultLanguage)
	assert.Equal(t, 0.01, cfg.Transcribe.RatePerMinute)
	assert.Equal(t, 48, cfg.Sweep.TTLHours)
}

func TestValidateRejectsBadMethod(t *testing.T) {
	t.Setenv("DEFAULT_METHOD", "psychic")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFAULT_METHOD")
}

func TestValidateRejectsBadLanguage(t *testing.T) {
	t.Setenv("DEFAULT_LANGUAGE", "not-a-language-tag!!")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFAULT_LANGUAGE")
}

func TestValidateRejectsBadCron(t *testing.T) {
	t.Setenv("SWEEP_CRON", "every fortnight")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SWEEP_CRON")
}

func TestValidateRejectsNegativeRate(t *testing.T) {
	t.Setenv("REMOTE_RATE_PER_MINUTE", "-1")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REMOTE_RATE_PER_MINUTE")
}

func TestOptionsOverrideEnv(t *testing.T) {
	cfg, err := NewFromEnv(func(c *Config) {
		c.Server.ListenAddr = ":0"
	})
	require.NoError(t, err)
	assert.Equal(t, ":0", cfg.Server.ListenAddr)
}
