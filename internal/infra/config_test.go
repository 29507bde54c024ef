package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `server:
  port: 8181
engine:
  item: steel
  capability: steel_rolling
  quote_failure_rate: 0.25
  settle_delay: 50ms
  price_modifiers:
    supplier-b: 12.5
auth:
  operators:
    - username: ops
      password_hash: "$2a$12$abc"
      scopes: ["workflow:start"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, RedisChanEngineEvents, cfg.Redis.EventsChannel)
	assert.Equal(t, "info", cfg.Logger.Level)

	wf := cfg.Engine.Workflow()
	assert.Equal(t, "steel", wf.Item)
	assert.Equal(t, "steel_rolling", wf.Capability)
	assert.Equal(t, 5000, wf.Quantity)
	assert.Equal(t, 0.25, wf.QuoteFailureRate)
	assert.Equal(t, 50*time.Millisecond, wf.SettleDelay)
	assert.Equal(t, 12.5, wf.PriceModifiers["supplier-b"])

	require.Len(t, cfg.Auth.Operators, 1)
	assert.Equal(t, "ops", cfg.Auth.Operators[0].Username)
	assert.True(t, cfg.Auth.Operators[0].ScopeSet()["workflow:start"])

	assert.Equal(t, 100, cfg.Engine.Journal().BatchSize)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("ENGINE_ITEM", "batteries")
	t.Setenv("AUTH_PUBLIC_KEY_DATA", "-----BEGIN PUBLIC KEY-----")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "batteries", cfg.Engine.Item)
	assert.Equal(t, []byte("-----BEGIN PUBLIC KEY-----"), cfg.Auth.PublicKey)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "engine:\n  quote_failure_rate: 1.5\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "auth:\n  operators:\n    - username: ops\n"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = NewLogger(LoggerConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
