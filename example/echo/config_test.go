package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
)

var echoKeys = []string{
	"ECHO_ADDRESS", "ECHO_LOG_LEVEL", "ECHO_MAX_PEERS", "ECHO_IDLE_SECONDS",
	"ECHO_RUN_SECONDS", "ECHO_ALLOW_ANY", "ECHO_REUSE_PORT", "ECHO_PPROF",
}

// clearEnv unsets every ECHO_ variable for the test and restores them after.
func clearEnv(t *testing.T) {
	for _, k := range echoKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeEnv(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:58810", cfg.Address)
	assert.Equal(t, log.LevelInfo, cfg.LogLevel)
	assert.Equal(t, protocol.MaxPeers, cfg.MaxPeers)
	assert.Zero(t, cfg.IdleTime)
	assert.Zero(t, cfg.RunTime)
	assert.False(t, cfg.AllowAny)
	assert.Empty(t, cfg.Pprof)
	assert.Len(t, cfg.Options(), 5)
}

func TestConfigFromFile(t *testing.T) {
	clearEnv(t)
	path := writeEnv(t, `
ECHO_ADDRESS=0.0.0.0:6000
ECHO_LOG_LEVEL=debug
ECHO_MAX_PEERS=10
ECHO_IDLE_SECONDS=1.5
ECHO_RUN_SECONDS=60
ECHO_ALLOW_ANY=true
ECHO_REUSE_PORT=1
ECHO_PPROF=127.0.0.1:6060
`)
	// the process environment wins over the file
	t.Setenv("ECHO_MAX_PEERS", "20")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:6000", cfg.Address)
	assert.Equal(t, log.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 20, cfg.MaxPeers)
	assert.Equal(t, 1500*time.Millisecond, cfg.IdleTime)
	assert.Equal(t, time.Minute, cfg.RunTime)
	assert.True(t, cfg.AllowAny)
	assert.True(t, cfg.ReusePort)
	assert.Equal(t, "127.0.0.1:6060", cfg.Pprof)

	opts := protocol.NewOptions(cfg.Options()...)
	assert.Equal(t, 20, opts.MaxPeers)
	assert.Equal(t, "0.0.0.0:6000", opts.GetNet().Address)
	assert.NotNil(t, opts.GetAcceptFilter())
}

func TestConfigRejects(t *testing.T) {
	for key, value := range map[string]string{
		"ECHO_MAX_PEERS":    "1001",
		"ECHO_IDLE_SECONDS": "-1",
		"ECHO_RUN_SECONDS":  "soon",
		"ECHO_ALLOW_ANY":    "maybe",
		"ECHO_LOG_LEVEL":    "loud",
	} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := loadConfig(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
