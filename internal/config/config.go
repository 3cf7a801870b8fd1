// Package config defines the engine configuration and its validation.
// Values load from a YAML file and the environment through viper; see
// cmd/root.go for the binding.
package config

import (
	"fmt"

	"orchestrall-backup/internal/offsite"
)

// Config is the full engine configuration.
type Config struct {
	// BasePath is the root directory for backup storage and job records.
	BasePath string `mapstructure:"base_path"`

	// ApplicationDir and ConfigurationDir are optional source directories
	// copied into full backups.
	ApplicationDir   string `mapstructure:"application_dir"`
	ConfigurationDir string `mapstructure:"configuration_dir"`

	Database    DatabaseConfig   `mapstructure:"database"`
	Compression string           `mapstructure:"compression"`
	Encryption  EncryptionConfig `mapstructure:"encryption"`
	Retention   RetentionConfig  `mapstructure:"retention"`
	Schedule    ScheduleConfig   `mapstructure:"schedule"`
	Offsite     offsite.Config   `mapstructure:"offsite"`
	Log         LogConfig        `mapstructure:"log"`
}

// DatabaseConfig holds the MySQL connection settings.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// EncryptionConfig holds at-rest encryption settings.
type EncryptionConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Passphrase string `mapstructure:"passphrase"`
}

// RetentionConfig holds the retention window and sweep schedule.
type RetentionConfig struct {
	Days          int    `mapstructure:"days"`
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// ScheduleConfig holds the cron expressions for automatic backups.
type ScheduleConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Full        string `mapstructure:"full"`
	Incremental string `mapstructure:"incremental"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// DefaultConfig returns a configuration with sensible defaults. The base
// path and database DSN still have to be provided.
func DefaultConfig() *Config {
	return &Config{
		BasePath:    "./backups",
		Compression: "gzip",
		Retention: RetentionConfig{
			Days:          30,
			SweepSchedule: "0 3 * * *",
		},
		Schedule: ScheduleConfig{
			Full:        "0 2 * * *",
			Incremental: "0 */6 * * *",
		},
		Log: LogConfig{
			Level:  "normal",
			Format: "text",
		},
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("base_path is required")
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be positive, got %d", c.Retention.Days)
	}
	switch c.Compression {
	case "", "none", "gzip", "lz4", "zstd":
	default:
		return fmt.Errorf("unsupported compression algorithm: %s", c.Compression)
	}
	if c.Encryption.Enabled && c.Encryption.Passphrase == "" {
		return fmt.Errorf("encryption.passphrase is required when encryption is enabled")
	}
	switch c.Offsite.Provider {
	case "", "s3", "gcs", "azure":
	default:
		return fmt.Errorf("unsupported offsite provider: %s", c.Offsite.Provider)
	}
	if c.Schedule.Enabled && c.Schedule.Full == "" && c.Schedule.Incremental == "" {
		return fmt.Errorf("schedule.enabled requires at least one of schedule.full or schedule.incremental")
	}
	return nil
}
