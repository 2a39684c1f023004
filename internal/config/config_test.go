package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.eventcore.tech/engine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eventcore.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "absent.toml"))

	cfg, err := Load()
	require.NoError(t, err)

	ec := cfg.EngineConfig()
	assert.Equal(t, engine.DefaultConfig().DefaultQueueSize, ec.DefaultQueueSize)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	require.NoError(t, ec.Validate())
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
[engine]
scheduler_pool_size = 4
thread_dispatcher_assignment = [["fast", "slow"], ["slow"]]
default_queue_size = 2048
broadcast_rate_per_sec = 500.0

[engine.backoff]
base_delay = "50us"
multiplier = 2.5
max_delay = "20ms"

[http]
port = 9090

[log]
level = "debug"
`)
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load()
	require.NoError(t, err)

	ec := cfg.EngineConfig()
	assert.Equal(t, 4, ec.SchedulerPoolSize)
	assert.Equal(t, [][]string{{"fast", "slow"}, {"slow"}}, ec.ThreadDispatcherAssignment)
	assert.Equal(t, 2048, ec.DefaultQueueSize)
	assert.Equal(t, 50*time.Microsecond, ec.Backoff.BaseDelay)
	assert.Equal(t, 2.5, ec.Backoff.Multiplier)
	assert.Equal(t, 20*time.Millisecond, ec.Backoff.MaxDelay)
	assert.Equal(t, 500.0, ec.BroadcastRatePerSec)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalidEngineSettings(t *testing.T) {
	path := writeConfig(t, `
[engine]
scheduler_pool_size = 0
`)
	t.Setenv(EnvConfigPath, path)

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrConfigInvalid)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, `this is not toml = [`)
	t.Setenv(EnvConfigPath, path)

	_, err := Load()
	require.Error(t, err)
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("150ms")))
	assert.Equal(t, Duration(150*time.Millisecond), d)

	require.Error(t, d.UnmarshalText([]byte("soon")))
}
