package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required"`
	Auth         AuthConfig         `mapstructure:"auth" validate:"required"`
	Worker       WorkerConfig       `mapstructure:"worker" validate:"required"`
	Delivery     DeliveryConfig     `mapstructure:"delivery" validate:"required"`
	Subscription SubscriptionConfig `mapstructure:"subscription" validate:"required"`
	SRS          SRSConfig          `mapstructure:"srs" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// Feedback submissions allowed per user per minute
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute" validate:"gte=0"`

	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// WorkerConfig holds the credentials of the external delivery worker.
type WorkerConfig struct {
	// bcrypt hash of the key the worker sends in X-Worker-Key
	APIKeyHash string `mapstructure:"api_key_hash" validate:"required"`
}

// DeliveryConfig controls the retry policy for failed sends.
type DeliveryConfig struct {
	RetryBaseSeconds       int `mapstructure:"retry_base_seconds" validate:"gt=0"`
	RetryMaxBackoffSeconds int `mapstructure:"retry_max_backoff_seconds" validate:"gtefield=RetryBaseSeconds"`
	MaxRetries             int `mapstructure:"max_retries" validate:"gte=0"`
}

// RetryBase returns the first retry delay.
func (c DeliveryConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseSeconds) * time.Second
}

// RetryMaxBackoff returns the longest retry delay.
func (c DeliveryConfig) RetryMaxBackoff() time.Duration {
	return time.Duration(c.RetryMaxBackoffSeconds) * time.Second
}

// SubscriptionConfig holds the first-nudge delay per subscription tier.
type SubscriptionConfig struct {
	BasicDelaySeconds   int `mapstructure:"basic_delay_seconds" validate:"gte=0"`
	PremiumDelaySeconds int `mapstructure:"premium_delay_seconds" validate:"gte=0"`
	VIPDelaySeconds     int `mapstructure:"vip_delay_seconds" validate:"gte=0"`
}

// SRSConfig tunes the SM-2 review scheduler.
type SRSConfig struct {
	// Stored easiness is never below 1.3, so the floor cannot go lower.
	MinEasiness        float64 `mapstructure:"min_easiness" validate:"gte=1.3"`
	FirstIntervalDays  int     `mapstructure:"first_interval_days" validate:"gte=1"`
	SecondIntervalDays int     `mapstructure:"second_interval_days" validate:"gte=1"`
	LapseIntervalDays  int     `mapstructure:"lapse_interval_days" validate:"gte=1"`
}
