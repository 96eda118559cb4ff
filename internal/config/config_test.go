package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func env(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	c, err := FromEnv(env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, 50*time.Millisecond, c.TickInterval())
}

func TestFromEnv_Overrides(t *testing.T) {
	c, err := FromEnv(env(map[string]string{
		"DRIFT_PLAYERS_REQUIRED":  "3",
		"DRIFT_COUNTDOWN":         "2s",
		"DRIFT_LOG_DEV":           "true",
		"DRIFT_LISTEN_ADDR":       ":9090",
		"DRIFT_ROOM_IDLE_TIMEOUT": "30s",
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, c.PlayersRequired)
	assert.Equal(t, 2*time.Second, c.Countdown)
	assert.True(t, c.LogDev)
	assert.Equal(t, ":9090", c.ListenAddr)
	assert.Equal(t, 30*time.Second, c.RoomIdleTimeout)
}

func TestFromEnv_AggregatesErrors(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"DRIFT_TICK_RATE": "fast",
		"DRIFT_GAMEPLAY":  "forever",
	}))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.PlayersRequired = 9
	c.SlotCount = 2
	c.TickRate = 0
	err := c.Validate()
	assert.Len(t, multierr.Errors(err), 3)
}

func TestLoad_ReadsDotEnvAndSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DRIFT_SLOT_COUNT=7\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DRIFT_SLOT_COUNT") })

	c, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 7, c.SlotCount)
}
