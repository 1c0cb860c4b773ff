// Package config loads datasage configuration from YAML with sane defaults.
// Secrets (the model API key) are only ever read from the environment so they
// never end up in config files.
package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/datasage-io/datasage/internal/logger"
)

// Duration wraps time.Duration so YAML values can use the "5s" / "250ms"
// forms instead of raw nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Config is the root configuration object.
type Config struct {
	Server  Server        `yaml:"server"`
	Logging logger.Config `yaml:"logging"`
	Limits  Limits        `yaml:"limits"`
	Profile Profile       `yaml:"profile"`
	Model   Model         `yaml:"model"`
	Viz     Viz           `yaml:"viz"`
}

// Server holds HTTP boundary settings.
type Server struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Limits bounds query result sizes. MaxRowLimit caps every executed query;
// DefaultRowLimit is used when a query carries no limit of its own.
type Limits struct {
	DefaultRowLimit int `yaml:"default_row_limit"`
	MaxRowLimit     int `yaml:"max_row_limit"`
}

// Profile bounds column profiling at ingestion.
type Profile struct {
	SampleRows    int `yaml:"sample_rows"`
	TopValueCount int `yaml:"top_value_count"`
}

// Model configures the optional model-assisted translation path.
type Model struct {
	BaseURL string `yaml:"base_url"`
	Name    string `yaml:"name"`
	// APIKey is populated from DATASAGE_MODEL_API_KEY, never from YAML.
	APIKey          string   `yaml:"-"`
	Timeout         Duration `yaml:"timeout"`
	RetryTransient  bool     `yaml:"retry_transient"`
	FallbackToRules bool     `yaml:"fallback_to_rules"`
}

// Viz carries the chart-selection thresholds so the heuristic stays
// auditable from configuration rather than buried as literals.
type Viz struct {
	NumericThreshold    float64 `yaml:"numeric_threshold"`
	IntegralThreshold   float64 `yaml:"integral_threshold"`
	NumericSampleCap    int     `yaml:"numeric_sample_cap"`
	TemporalSampleCap   int     `yaml:"temporal_sample_cap"`
	PreAggregatedRowCap int     `yaml:"pre_aggregated_row_cap"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			MaxUploadBytes:  64 << 20,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: logger.Config{Level: "info", Format: "json"},
		Limits: Limits{
			DefaultRowLimit: 50,
			MaxRowLimit:     200,
		},
		Profile: Profile{
			SampleRows:    200,
			TopValueCount: 5,
		},
		Model: Model{
			BaseURL:         "https://api.openai.com/v1",
			Name:            "gpt-4o-mini",
			Timeout:         Duration(20 * time.Second),
			RetryTransient:  true,
			FallbackToRules: true,
		},
		Viz: Viz{
			NumericThreshold:    0.6,
			IntegralThreshold:   0.8,
			NumericSampleCap:    20,
			TemporalSampleCap:   10,
			PreAggregatedRowCap: 20,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults untouched (plus environment overrides).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if key := os.Getenv("DATASAGE_MODEL_API_KEY"); key != "" {
		cfg.Model.APIKey = key
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Limits.MaxRowLimit <= 0 {
		return fmt.Errorf("limits.max_row_limit must be positive, got %d", c.Limits.MaxRowLimit)
	}
	if c.Limits.DefaultRowLimit <= 0 || c.Limits.DefaultRowLimit > c.Limits.MaxRowLimit {
		return fmt.Errorf("limits.default_row_limit must be in (0, %d], got %d",
			c.Limits.MaxRowLimit, c.Limits.DefaultRowLimit)
	}
	if c.Profile.SampleRows <= 0 {
		return fmt.Errorf("profile.sample_rows must be positive, got %d", c.Profile.SampleRows)
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("model.timeout must be positive, got %s", c.Model.Timeout)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes)
	}
	return nil
}
