// Package config loads the YAML configuration of the syspower command.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/GoSyspower/internal/flagging"
	"github.com/rjboer/GoSyspower/internal/logging"
	"github.com/rjboer/GoSyspower/internal/syspower"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type TablesConfig struct {
	SysPower string `yaml:"syspower"`
	Antenna  string `yaml:"antenna"`
	Gain     string `yaml:"gain"`
	// Template defaults to the gain table name plus ".template".
	Template string `yaml:"template"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	MetricsTextfile string `yaml:"metrics_textfile"`
	WebAddr         string `yaml:"web_addr"`
	HistoryLimit    int    `yaml:"history_limit"`
}

// Config is the full command configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Tables    TablesConfig    `yaml:"tables"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	// FluxTimeRange is a CASA "start~end" range; empty normalizes over the whole observation.
	FluxTimeRange string `yaml:"flux_timerange"`
	// OnlineFlags is a file of online flag commands, one per line.
	OnlineFlags string          `yaml:"online_flags"`
	Correction  syspower.Config `yaml:"correction"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store:   StoreConfig{Backend: BackendSQLite, Path: "syspower.db"},
		Tables:  TablesConfig{SysPower: "SYSPOWER", Antenna: "ANTENNA", Gain: "rq.cal"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{
			HistoryLimit: 4096,
		},
		Correction: syspower.DefaultConfig(),
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// FluxWindow parses FluxTimeRange; it returns nil when the range is empty.
func (c Config) FluxWindow() (*flagging.TimeRange, error) {
	if c.FluxTimeRange == "" {
		return nil, nil
	}
	r, err := flagging.ParseTimeRange(c.FluxTimeRange)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: sqlite store needs a path", ErrInvalid)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalid, c.Store.Backend)
	}
	if c.Tables.SysPower == "" || c.Tables.Antenna == "" || c.Tables.Gain == "" {
		return fmt.Errorf("%w: table names must be set", ErrInvalid)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.FluxWindow(); err != nil {
		return fmt.Errorf("%w: flux_timerange: %w", ErrInvalid, err)
	}
	if err := c.Correction.Validate(); err != nil {
		return fmt.Errorf("%w: correction: %w", ErrInvalid, err)
	}
	return nil
}
