package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-launchpad/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7420", config.Server.Address)
	assert.Equal(t, 3*time.Second, config.Supervisor.GracePeriod)
	assert.Equal(t, 300*time.Millisecond, config.Supervisor.StartAllDelay)
	assert.Equal(t, 10*time.Second, config.Supervisor.PortKillTimeout)
	assert.Equal(t, "auto", config.Supervisor.PortLookup)
	assert.Equal(t, "NODE_OPTIONS", config.Supervisor.DebugEnvVar)
	assert.Equal(t, "--inspect", config.Supervisor.DebugFlag)
	assert.Equal(t, "raw", config.Output.Render)
	assert.Equal(t, 256, config.Output.SubscriberBuffer)
	assert.True(t, config.History.Enabled)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "launchpad.yaml", `
server:
  address: 127.0.0.1:9000
supervisor:
  grace_period: 5s
  port_lookup: native
output:
  render: html
log:
  level: debug
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", config.Server.Address)
	assert.Equal(t, 5*time.Second, config.Supervisor.GracePeriod)
	assert.Equal(t, "native", config.Supervisor.PortLookup)
	assert.Equal(t, "html", config.Output.Render)
	assert.Equal(t, "debug", config.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 300*time.Millisecond, config.Supervisor.StartAllDelay)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "launchpad.json", `{"history": {"enabled": false}}`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.False(t, config.History.Enabled)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "launchpad.yml", "supervisor:\n  grace_period: 5s\n")
	t.Setenv("LAUNCHPAD_SUPERVISOR__GRACE_PERIOD", "750ms")
	t.Setenv("LAUNCHPAD_SERVER__ADDRESS", "127.0.0.1:9100")

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, config.Supervisor.GracePeriod)
	assert.Equal(t, "127.0.0.1:9100", config.Server.Address)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(writeFile(t, "launchpad.toml", ""))
	assert.True(t, errors.IsValidationError(err))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsValidationError(err))

	_, err = Load(writeFile(t, "bad.yaml", "supervisor:\n  port_lookup: netstat\n"))
	assert.True(t, errors.IsValidationError(err))
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		config, err := Load("")
		require.NoError(t, err)
		return config
	}

	assert.NoError(t, ValidateConfig(valid()))
	assert.Error(t, ValidateConfig(nil))

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty address", func(c *Config) { c.Server.Address = " " }},
		{"zero grace", func(c *Config) { c.Supervisor.GracePeriod = 0 }},
		{"negative delay", func(c *Config) { c.Supervisor.StartAllDelay = -time.Second }},
		{"render mode", func(c *Config) { c.Output.Render = "ansi" }},
		{"subscriber buffer", func(c *Config) { c.Output.SubscriberBuffer = 0 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"data context", func(c *Config) { c.Data.Context = "system" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)
			assert.True(t, errors.IsValidationError(ValidateConfig(config)))
		})
	}
}
