package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "empty config",
			cfg:     Config{},
			wantErr: false,
		},
		{
			name:    "negative write timeout",
			cfg:     Config{WriteTimeout: -time.Second},
			wantErr: true,
		},
		{
			name:    "negative connect timeout",
			cfg:     Config{ConnectTimeout: -time.Second},
			wantErr: true,
		},
		{
			name:    "bad log level",
			cfg:     Config{LogLevel: "loud"},
			wantErr: true,
		},
		{
			name:    "bad log format",
			cfg:     Config{LogFormat: "xml"},
			wantErr: true,
		},
		{
			name:    "disk percent above 100",
			cfg:     Config{DiskCriticalPercent: 120},
			wantErr: true,
		},
		{
			name:    "negative disk percent",
			cfg:     Config{DiskWarningPercent: -1},
			wantErr: true,
		},
		{
			name:    "disk warning above critical",
			cfg:     Config{DiskWarningPercent: 95, DiskCriticalPercent: 85},
			wantErr: true,
		},
		{
			name:    "disk thresholds",
			cfg:     Config{DiskWarningPercent: 70, DiskCriticalPercent: 85},
			wantErr: false,
		},
		{
			name: "valid config",
			cfg: Config{
				Collector:    "logstash:5000",
				Password:     "secret",
				WriteTimeout: 500 * time.Millisecond,
				LogLevel:     "debug",
				LogFormat:    "json",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.WriteTimeout != 250*time.Millisecond {
		t.Errorf("WriteTimeout = %v, want 250ms", cfg.WriteTimeout)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", cfg.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Errorf("log defaults = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.DiskWarningPercent != 80 || cfg.DiskCriticalPercent != 90 {
		t.Errorf("disk defaults = %v/%v, want 80/90", cfg.DiskWarningPercent, cfg.DiskCriticalPercent)
	}

	kept := &Config{WriteTimeout: time.Second, Hostname: "db01", DiskWarningPercent: 60}
	kept.ApplyDefaults()
	if kept.WriteTimeout != time.Second || kept.Hostname != "db01" || kept.DiskWarningPercent != 60 {
		t.Error("ApplyDefaults() overwrote explicit values")
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yml")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}
	if cfg.Collector != "" || cfg.Password != "" {
		t.Error("Load() expected empty config for non-existent file")
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yml")

	original := &Config{
		Collector:    "logstash.internal:5044",
		Password:     "secret-key-12345",
		IndexName:    "pg-wal",
		Hostname:     "testhost",
		WriteTimeout: 300 * time.Millisecond,
	}

	if err := original.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	// Check that file is not world-readable (0600 on Unix)
	if info.Mode().Perm()&0077 != 0 {
		t.Errorf("Config file has insecure permissions: %v", info.Mode())
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if *loaded != *original {
		t.Errorf("Load() = %+v, want %+v", loaded, original)
	}
}

func TestLoad_DurationStrings(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yml")
	data := "collector: logstash:5000\nwrite_timeout: 400ms\nconnect_timeout: 2s\ndisk_warning_percent: 75\n"
	if err := os.WriteFile(configPath, []byte(data), 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.WriteTimeout != 400*time.Millisecond || cfg.ConnectTimeout != 2*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.WriteTimeout, cfg.ConnectTimeout)
	}
	if cfg.DiskWarningPercent != 75 {
		t.Errorf("DiskWarningPercent = %v, want 75", cfg.DiskWarningPercent)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yml")

	// Write invalid YAML
	if err := os.WriteFile(configPath, []byte("not: valid: yaml: {{"), 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}
