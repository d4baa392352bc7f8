// Package config loads the structured options consumed by the
// lifecycle engine. The engine itself never parses files; everything
// reaches it as plain option values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/quantlake/histkeeper/internal/model"
)

// Config is the root configuration tree.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Retention RetentionConfig `mapstructure:"retention"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Backup    BackupConfig    `mapstructure:"backup"`
}

// DatabaseConfig locates the record store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls the global slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RetentionConfig drives the cleanup job.
type RetentionConfig struct {
	MaxAgeDays        int    `mapstructure:"max_age_days"`
	FailedMaxAgeHours int    `mapstructure:"failed_max_age_hours"`
	BatchSize         int    `mapstructure:"batch_size"`
	Schedule          string `mapstructure:"schedule"`
}

// Policy converts the retention settings into an engine policy.
func (r RetentionConfig) Policy() model.RetentionPolicy {
	return model.RetentionPolicy{
		MaxAge:    time.Duration(r.MaxAgeDays) * 24 * time.Hour,
		BatchSize: r.BatchSize,
	}
}

// FailedMaxAge returns the horizon for failed-record cleanup.
func (r RetentionConfig) FailedMaxAge() time.Duration {
	return time.Duration(r.FailedMaxAgeHours) * time.Hour
}

// MonitorConfig drives statistics collection and alerting.
type MonitorConfig struct {
	MaxSizeMB        int64   `mapstructure:"max_size_mb"`
	MaxDocuments     int64   `mapstructure:"max_documents"`
	MaxDailyGrowth   float64 `mapstructure:"max_daily_growth"`
	WarningRatio     float64 `mapstructure:"warning_ratio"`
	GrowthWindowDays int     `mapstructure:"growth_window_days"`
	Schedule         string  `mapstructure:"schedule"`
}

// Thresholds converts the monitor settings into alert thresholds.
func (m MonitorConfig) Thresholds() model.AlertThresholds {
	return model.AlertThresholds{
		MaxSizeBytes:   m.MaxSizeMB * 1024 * 1024,
		MaxDocuments:   m.MaxDocuments,
		MaxDailyGrowth: m.MaxDailyGrowth,
		WarningRatio:   m.WarningRatio,
	}
}

// BackupConfig drives snapshot exports.
type BackupConfig struct {
	Dir           string       `mapstructure:"dir"`
	Compress      bool         `mapstructure:"compress"`
	KeepBackups   int          `mapstructure:"keep_backups"`
	FrequencyDays int          `mapstructure:"frequency_days"`
	Schedule      string       `mapstructure:"schedule"`
	Upload        UploadConfig `mapstructure:"upload"`
}

// Frequency returns the minimum age of the newest snapshot before a
// scheduled backup runs again.
func (b BackupConfig) Frequency() time.Duration {
	return time.Duration(b.FrequencyDays) * 24 * time.Hour
}

// UploadConfig connects snapshot uploads to an S3-compatible bucket.
type UploadConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// SetDefaults installs the default option values on viper.
func SetDefaults() {
	viper.SetDefault("database.path", DefaultDatabasePath())
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	viper.SetDefault("retention.max_age_days", 365)
	viper.SetDefault("retention.failed_max_age_hours", 24)
	viper.SetDefault("retention.batch_size", 100)
	viper.SetDefault("retention.schedule", "0 3 * * *")

	viper.SetDefault("monitor.max_size_mb", 1000)
	viper.SetDefault("monitor.max_documents", 100000)
	viper.SetDefault("monitor.max_daily_growth", 1000)
	viper.SetDefault("monitor.warning_ratio", model.DefaultWarningRatio)
	viper.SetDefault("monitor.growth_window_days", 7)
	viper.SetDefault("monitor.schedule", "0 * * * *")

	viper.SetDefault("backup.dir", "data/backups/history")
	viper.SetDefault("backup.compress", true)
	viper.SetDefault("backup.keep_backups", 4)
	viper.SetDefault("backup.frequency_days", 7)
	viper.SetDefault("backup.schedule", "0 4 * * *")
}

// Load materializes the configuration from viper's current state.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return &cfg, nil
}

// DefaultDatabasePath returns the XDG-style default store location.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "histkeeper.db"
	}
	return filepath.Join(home, ".local", "share", "histkeeper", "history.db")
}
