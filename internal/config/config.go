package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/rampart/internal/auth"
	"github.com/FairForge/rampart/internal/capacity"
	"github.com/FairForge/rampart/internal/report"
	"github.com/FairForge/rampart/internal/resource"
)

// Monitor modes
const (
	MonitorStatic = "static"
	MonitorHTTP   = "http"
)

// Config is the root of rampart's configuration.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Load    LoadConfig    `json:"load" yaml:"load"`
	Auth    auth.Config   `json:"auth" yaml:"auth"`
	Monitor MonitorConfig `json:"monitor" yaml:"monitor"`
	Plan    capacity.Plan `json:"plan" yaml:"plan"`
	Reports ReportsConfig `json:"reports" yaml:"reports"`
}

// ServerConfig holds the API server settings.
type ServerConfig struct {
	Port     int    `json:"port" yaml:"port"`
	LogLevel string `json:"logLevel" yaml:"log_level"`
}

// LoadConfig shapes the generated traffic.
type LoadConfig struct {
	TimeoutSeconds int     `json:"timeoutSeconds" yaml:"timeout_seconds"`
	MaxRPS         float64 `json:"maxRps" yaml:"max_rps"`
}

// MonitorConfig selects how target resources are observed during the
// endurance phase. Static mode reports the plan's resource defaults.
type MonitorConfig struct {
	Mode string              `json:"mode" yaml:"mode"`
	HTTP resource.HTTPConfig `json:"http,omitempty" yaml:"http,omitempty"`
}

// ReportsConfig enables report sinks. A nil entry disables that sink.
type ReportsConfig struct {
	File     *report.FileConfig     `json:"file,omitempty" yaml:"file,omitempty"`
	S3       *report.S3Config       `json:"s3,omitempty" yaml:"s3,omitempty"`
	Postgres *report.PostgresConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
}

// DefaultConfig returns the configuration rampart starts from before
// the file and environment are applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
		},
		Load: LoadConfig{
			TimeoutSeconds: 30,
		},
		Monitor: MonitorConfig{
			Mode: MonitorStatic,
		},
		Plan: capacity.Plan{
			HealthCheckSeconds: 1,
			Escalation:         capacity.DefaultEscalationConfig(),
			Endurance:          capacity.DefaultEnduranceConfig(),
			Spike:              capacity.DefaultSpikeConfig(),
		},
	}
}

// Load reads the config file at path (optional), applies environment
// overrides on top, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}

	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Server.LogLevel)
	}

	if c.Load.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout seconds must not be negative")
	}
	if c.Load.MaxRPS < 0 {
		return fmt.Errorf("max rps must not be negative")
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	switch c.Monitor.Mode {
	case "", MonitorStatic:
	case MonitorHTTP:
		if err := c.Monitor.HTTP.Validate(); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
	default:
		return fmt.Errorf("unknown monitor mode %q", c.Monitor.Mode)
	}

	// A target-less config can still serve the control API; runs then carry
	// their own plans. The phase settings must hold together either way.
	if c.Plan.Target.URL == "" {
		if err := c.Plan.Escalation.Validate(); err != nil {
			return fmt.Errorf("plan: escalation: %w", err)
		}
		if err := c.Plan.Endurance.Validate(); err != nil {
			return fmt.Errorf("plan: endurance: %w", err)
		}
		if err := c.Plan.Spike.Validate(); err != nil {
			return fmt.Errorf("plan: spike: %w", err)
		}
		return nil
	}

	if err := c.Plan.Validate(); err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	return nil
}
