package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.EDGAR.RequestsPerWindow)
	assert.Equal(t, 5.0, cfg.Pipeline.ThresholdPct)
	assert.Equal(t, 2, cfg.Pipeline.SilenceYears)
}

func TestValidateRejectsMisconfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing user agent", func(c *Config) { c.EDGAR.UserAgent = "" }, "user agent"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"zero rate limit", func(c *Config) { c.EDGAR.RequestsPerWindow = 0 }, "rate limit"},
		{"zero page cap", func(c *Config) { c.EDGAR.MaxPages = 0 }, "page cap"},
		{"zero workers", func(c *Config) { c.Pipeline.FetchWorkers = 0 }, "worker"},
		{"negative silence window", func(c *Config) { c.Pipeline.SilenceYears = -1 }, "silence window"},
		{"threshold out of range", func(c *Config) { c.Pipeline.ThresholdPct = 100 }, "threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMergePrefersEnvOverFile(t *testing.T) {
	file := *Default()
	file.Server.Port = 9000
	file.Cache.DSN = "postgres://file-host/db"
	file.EDGAR.UserAgent = "file agent"

	env := *Default()
	env.Server.Port = 0 // unset in env, file wins
	env.Cache.DSN = "postgres://env-host/db"

	merged := merge(file, env)
	assert.Equal(t, 9000, merged.Server.Port)
	assert.Equal(t, "postgres://env-host/db", merged.Cache.DSN)
	assert.NotEmpty(t, merged.EDGAR.UserAgent)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SDEA_SERVER_PORT", "9999")
	t.Setenv("SDEA_PIPELINE_THRESHOLD_PCT", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 10.0, cfg.Pipeline.ThresholdPct)
}
