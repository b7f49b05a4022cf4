package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Backend  BackendConfig  `mapstructure:"backend" validate:"required"`
	Poller   PollerConfig   `mapstructure:"poller" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// BackendConfig contains settings for the remote search/import backend.
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url" validate:"required,url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
}

// PollerConfig contains tuning knobs for the poll scheduler and the
// task store janitor. Zero values fall back to the defaults applied
// by the respective components.
type PollerConfig struct {
	IntervalSeconds     int    `mapstructure:"interval_seconds" validate:"gte=0"`
	MaxAttempts         int    `mapstructure:"max_attempts" validate:"gte=0"`
	StuckTimeoutMinutes int    `mapstructure:"stuck_timeout_minutes" validate:"gte=0"`
	HistoryLimit        int    `mapstructure:"history_limit" validate:"gte=0"`
	CleanupSchedule     string `mapstructure:"cleanup_schedule"`
}

// Interval returns the poll interval as a duration.
func (c PollerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// StuckTimeout returns the stuck-task timeout as a duration.
func (c PollerConfig) StuckTimeout() time.Duration {
	return time.Duration(c.StuckTimeoutMinutes) * time.Minute
}
