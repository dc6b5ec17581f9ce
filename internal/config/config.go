// Package config provides configuration management for walship.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultWriteTimeout is the telemetry write deadline.
	DefaultWriteTimeout = 250 * time.Millisecond
	// DefaultConnectTimeout bounds connecting to the collector.
	DefaultConnectTimeout = 5 * time.Second

	// Destination usage levels at which a backup logs a low-space warning.
	DefaultDiskWarningPercent  = 80.0
	DefaultDiskCriticalPercent = 90.0
)

// DefaultConfigDir returns the default config directory (~/.walship).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".walship"), nil
}

// DefaultConfigPath returns the default config file path (~/.walship/config.yml).
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Config holds defaults for backup runs. Command line flags take precedence.
type Config struct {
	Collector           string        `yaml:"collector,omitempty"`
	Password            string        `yaml:"password,omitempty"`
	IndexName           string        `yaml:"index_name,omitempty"`
	Hostname            string        `yaml:"hostname,omitempty"`
	WriteTimeout        time.Duration `yaml:"write_timeout,omitempty"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout,omitempty"`
	BaseBackupPath      string        `yaml:"pg_basebackup_path,omitempty"`
	MetricsFile         string        `yaml:"metrics_file,omitempty"`
	LogLevel            string        `yaml:"log_level,omitempty"`
	LogFormat           string        `yaml:"log_format,omitempty"`
	DiskWarningPercent  float64       `yaml:"disk_warning_percent,omitempty"`
	DiskCriticalPercent float64       `yaml:"disk_critical_percent,omitempty"`
}

// Validate checks the values that are set. Required settings such as the
// collector are enforced by the pipeline, not here.
func (c *Config) Validate() error {
	if c.WriteTimeout < 0 {
		return errors.New("write_timeout must not be negative")
	}
	if c.ConnectTimeout < 0 {
		return errors.New("connect_timeout must not be negative")
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	for key, v := range map[string]float64{
		"disk_warning_percent":  c.DiskWarningPercent,
		"disk_critical_percent": c.DiskCriticalPercent,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be between 0 and 100, got %v", key, v)
		}
	}
	if c.DiskWarningPercent > 0 && c.DiskCriticalPercent > 0 && c.DiskWarningPercent > c.DiskCriticalPercent {
		return errors.New("disk_warning_percent must not exceed disk_critical_percent")
	}
	switch c.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Hostname == "" {
		if hostname, err := os.Hostname(); err == nil {
			c.Hostname = hostname
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = zerolog.InfoLevel.String()
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.DiskWarningPercent == 0 {
		c.DiskWarningPercent = DefaultDiskWarningPercent
	}
	if c.DiskCriticalPercent == 0 {
		c.DiskCriticalPercent = DefaultDiskCriticalPercent
	}
}

// Load reads the configuration from the given path.
// If the file does not exist, an empty config is returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads the configuration from the default path.
func LoadDefault() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Save writes the configuration to the given path, creating directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// The file holds the collector password.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}
