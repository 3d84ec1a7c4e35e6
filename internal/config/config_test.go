package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.ServerPort)
	assert.Equal(t, "https://api.teslemetry.com", cfg.APIHost)
	assert.Equal(t, 30*time.Second, cfg.VehicleInterval)
	assert.Equal(t, 15*time.Minute, cfg.VehicleSleepInterval)
	assert.Equal(t, 15*time.Minute, cfg.SleepAfterIdle)
	assert.Equal(t, 20*time.Minute, cfg.SleepRearmAfter)
	assert.Equal(t, 5*time.Second, cfg.WakeStep)
	assert.Equal(t, 30*time.Second, cfg.WakeBudget)
	assert.Empty(t, cfg.MQTTBroker)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DEBUG", "true")
	t.Setenv("VEHICLE_SLEEP_INTERVAL", "10m")
	t.Setenv("WAKE_BUDGET", "not-a-duration")
	t.Setenv("MQTT_BROKER", "mqtt://localhost:1883")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 10*time.Minute, cfg.VehicleSleepInterval)
	assert.Equal(t, 30*time.Second, cfg.WakeBudget)
	assert.Equal(t, "mqtt://localhost:1883", cfg.MQTTBroker)
}

func TestTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	token, err := LoadToken(path)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, SaveToken(path, "abc"))
	token, err = LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0600))
	_, err = LoadToken(path)
	assert.Error(t, err)
}
