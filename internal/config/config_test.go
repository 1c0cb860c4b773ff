package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 50, cfg.Limits.DefaultRowLimit)
	assert.Equal(t, 200, cfg.Limits.MaxRowLimit)
	assert.Equal(t, 200, cfg.Profile.SampleRows)
	assert.Equal(t, 5, cfg.Profile.TopValueCount)
	assert.True(t, cfg.Model.FallbackToRules)
	assert.Equal(t, 0.6, cfg.Viz.NumericThreshold)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
limits:
  default_row_limit: 25
  max_row_limit: 100
model:
  timeout: 5s
  fallback_to_rules: false
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 25, cfg.Limits.DefaultRowLimit)
	assert.Equal(t, 100, cfg.Limits.MaxRowLimit)
	assert.Equal(t, Duration(5*time.Second), cfg.Model.Timeout)
	assert.False(t, cfg.Model.FallbackToRules)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 200, cfg.Profile.SampleRows)
}

func TestLoad_APIKeyFromEnvironmentOnly(t *testing.T) {
	path := writeConfig(t, `
model:
  api_key: from-yaml
`)
	t.Setenv("DATASAGE_MODEL_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Model.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{name: "zero max limit", contents: "limits:\n  max_row_limit: 0\n"},
		{name: "default above max", contents: "limits:\n  default_row_limit: 500\n  max_row_limit: 100\n"},
		{name: "zero sample rows", contents: "profile:\n  sample_rows: 0\n"},
		{name: "zero model timeout", contents: "model:\n  timeout: 0s\n"},
		{name: "not yaml", contents: "{{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.contents)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
