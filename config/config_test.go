package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGoodCatalyst/chameleon/errors"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Transport.URL = "ws://localhost:8080/stream"
	return cfg
}

func TestDefaultValidatesWithURL(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	cfg := validConfig()
	cfg.Transport.Kind = "carrier-pigeon"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestValidateRequiresURL(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestValidateNATSNeedsSubscribePrefix(t *testing.T) {
	cfg := validConfig()
	cfg.Transport.Kind = TransportNATS
	cfg.Transport.URL = "nats://localhost:4222"

	err := cfg.Validate()
	require.Error(t, err)

	cfg.Transport.SubscribePrefix = "chameleon.events"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadTheme(t *testing.T) {
	cfg := validConfig()
	cfg.Theme.Density = "microscopic"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestValidateReconnectPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Reconnect.Multiplier = 0.5

	err := cfg.Validate()
	require.Error(t, err)

	// Disabled reconnect skips policy validation
	cfg.Reconnect.Disabled = true
	require.NoError(t, cfg.Validate())
}

func TestLoadFileWithDurationsAndPartialSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	payload := `{
		"session": "demo",
		"transport": {"kind": "websocket", "url": "ws://agent:9000/stream"},
		"reconnect": {"base_delay": "250ms", "max_attempts": 3},
		"theme": {"density": "compact"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Session)
	assert.Equal(t, "ws://agent:9000/stream", cfg.Transport.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconnect.BaseDelay)
	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	// Omitted fields take defaults
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 2.0, cfg.Reconnect.Multiplier)
	assert.Equal(t, "compact", cfg.Theme.Density)
}

func TestLoadFileMissingFile(t *testing.T) {
	_, err := NewLoader().LoadFile("/nonexistent/config.json")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHAMELEON_TRANSPORT_URL", "ws://override:7000/stream")
	t.Setenv("CHAMELEON_SESSION", "env-session")
	t.Setenv("CHAMELEON_MAX_ATTEMPTS", "9")

	cfg, err := NewLoader().LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "ws://override:7000/stream", cfg.Transport.URL)
	assert.Equal(t, "env-session", cfg.Session)
	assert.Equal(t, 9, cfg.Reconnect.MaxAttempts)
}

func TestBackoffPolicyConversion(t *testing.T) {
	cfg := validConfig()
	policy := cfg.BackoffPolicy()
	assert.Equal(t, 500*time.Millisecond, policy.BaseDelay)
	assert.Equal(t, 5, policy.MaxAttempts)
	require.NoError(t, policy.Validate())
}
