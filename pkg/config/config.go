// Package config loads and validates the agent configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Log      LogConfig      `yaml:"log"`
	Backend  BackendConfig  `yaml:"backend"`
	Server   ServerConfig   `yaml:"server"`
	Sim      SimConfig      `yaml:"sim"`
	Tracking TrackingConfig `yaml:"tracking"`
	Vatsim   VatsimConfig   `yaml:"vatsim"`
}

// AgentConfig holds agent identity settings.
type AgentConfig struct {
	User    string `yaml:"user"`     // OpenSky user name
	DataDir string `yaml:"data_dir"` // Root for flight save files and the state db
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
	Events LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// BackendConfig holds OpenSky API client settings.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"` // Usually injected via OPENSKY_API_TOKEN
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	Attempts  int      `yaml:"attempts"`
	BaseDelay Duration `yaml:"base_delay"`
}

// ServerConfig holds the local status HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// SimConfig holds settings for the simulator connection.
type SimConfig struct {
	Provider string        `yaml:"provider"` // "mock" (SimConnect bridge is external)
	Mock     MockSimConfig `yaml:"mock"`
}

// MockSimConfig holds settings for the scripted mock simulator.
type MockSimConfig struct {
	StartLat     float64 `yaml:"start_lat"`
	StartLon     float64 `yaml:"start_lon"`
	StartHeading float64 `yaml:"start_heading"`
}

// TrackingConfig holds the tracking core's timing knobs.
type TrackingConfig struct {
	LoopInterval           Duration `yaml:"loop_interval"`            // Sleep between queue drains
	AutoSaveInterval       Duration `yaml:"auto_save_interval"`       // Local flight-log save cadence
	PositionReportInterval Duration `yaml:"position_report_interval"` // Backend position upload cadence
	CloudUploadInterval    Duration `yaml:"cloud_upload_interval"`    // Auto-save cloud upload cadence
	SaveMutexTimeout       Duration `yaml:"save_mutex_timeout"`       // Bound on save-lock acquisition
	SettleDelay            Duration `yaml:"settle_delay"`             // Wait after a forced model refresh
}

// VatsimConfig holds VATSIM datafeed polling settings.
type VatsimConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	CID     string `yaml:"cid"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			DataDir: "./data",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/agent.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		Backend: BackendConfig{
			URL:     "https://api.opensky.to",
			Timeout: Duration(30 * time.Second),
			Backoff: BackoffConfig{
				Attempts:  3,
				BaseDelay: Duration(500 * time.Millisecond),
			},
		},
		Server: ServerConfig{
			Address: "localhost:1921",
		},
		Sim: SimConfig{
			Provider: "mock",
			Mock: MockSimConfig{
				StartLat:     47.4647,
				StartLon:     8.5492,
				StartHeading: 160,
			},
		},
		Tracking: TrackingConfig{
			LoopInterval:           Duration(500 * time.Millisecond),
			AutoSaveInterval:       Duration(2 * time.Minute),
			PositionReportInterval: Duration(30 * time.Second),
			CloudUploadInterval:    Duration(10 * time.Minute),
			SaveMutexTimeout:       Duration(30 * time.Second),
			SettleDelay:            Duration(2 * time.Second),
		},
		Vatsim: VatsimConfig{
			Enabled: false,
			URL:     "https://data.vatsim.net/v3/vatsim-data.json",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Token fallback from environment, never saved back to disk.
	if cfg.Backend.Token == "" {
		if tok := os.Getenv("OPENSKY_API_TOKEN"); tok != "" {
			cfg.Backend.Token = tok
		}
	}

	return cfg, nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# OpenSky Agent Configuration
# ---------------------------
# Supported duration units: ns, us (or µs), ms, s, m, h, d (day), w (week)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
