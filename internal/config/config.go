package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultLimit               = 100
	DefaultBufSize             = 100
	DefaultLogLevel            = "info"
	DefaultMetricsAddr         = ":9501"
	DefaultMaintenanceSchedule = "0 0 4 * * *"
)

type Config struct {
	LogLevel    string            `json:"logLevel,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Metrics     MetricsConfig     `json:"metrics"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Teams       []TeamConfig      `json:"teams"`
}

// TeamConfig configures one bot instance. Name, Token and Connection are
// mandatory; a team missing any of them fails validation and that instance
// does not start.
type TeamConfig struct {
	Name       string `json:"name"`
	Token      string `json:"token"`
	Connection string `json:"connection"`
	Limit      int    `json:"limit,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

type MaintenanceConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Limit:    DefaultLimit,
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
		Maintenance: MaintenanceConfig{
			Enabled:  true,
			Schedule: DefaultMaintenanceSchedule,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".mimic")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if level := os.Getenv("MIMIC_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if limit := os.Getenv("MIMIC_LIMIT"); limit != "" {
		if parsed, err := strconv.Atoi(limit); err == nil && parsed > 0 {
			cfg.Limit = parsed
		}
	}
	if addr := os.Getenv("MIMIC_METRICS_ADDR"); addr != "" {
		cfg.Metrics.Addr = addr
		cfg.Metrics.Enabled = true
	}
	if token := os.Getenv("MIMIC_TOKEN"); token != "" && len(cfg.Teams) == 1 {
		cfg.Teams[0].Token = token
	}
	if conn := os.Getenv("MIMIC_CONNECTION"); conn != "" && len(cfg.Teams) == 1 {
		cfg.Teams[0].Connection = conn
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if cfg.Maintenance.Schedule == "" {
		cfg.Maintenance.Schedule = DefaultMaintenanceSchedule
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

// Validate reports the first missing mandatory field.
func (t TeamConfig) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("team name is required")
	}
	if t.Token == "" {
		return fmt.Errorf("team %s: token is required", t.Name)
	}
	if t.Connection == "" {
		return fmt.Errorf("team %s: connection is required", t.Name)
	}
	return nil
}

// EffectiveLimit resolves the per-team limit, falling back to the global
// default when the team does not set one.
func (t TeamConfig) EffectiveLimit(global int) int {
	if t.Limit > 0 {
		return t.Limit
	}
	if global > 0 {
		return global
	}
	return DefaultLimit
}
