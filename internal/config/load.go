package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. NUDGE_SERVER_PORT.
const EnvPrefix = "NUDGE"

// Options tune where Load looks for configuration.
type Options struct {
	// Path of a YAML config file. Empty means ./config.yaml if it exists.
	ConfigFile string
	// Path of a dotenv file. Empty means ./.env if it exists.
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.rate_limit_per_minute", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("delivery.retry_base_seconds", 60)
	v.SetDefault("delivery.retry_max_backoff_seconds", 3600)
	v.SetDefault("delivery.max_retries", 5)

	v.SetDefault("subscription.basic_delay_seconds", 7200)
	v.SetDefault("subscription.premium_delay_seconds", 300)
	v.SetDefault("subscription.vip_delay_seconds", 0)

	v.SetDefault("srs.min_easiness", 1.3)
	v.SetDefault("srs.first_interval_days", 1)
	v.SetDefault("srs.second_interval_days", 6)
	v.SetDefault("srs.lapse_interval_days", 1)
}

// keys without defaults still need binding so Unmarshal sees their env vars.
var boundKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"worker.api_key_hash",
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadWithOptions(Options{})
}

// LoadWithOptions is Load with explicit file locations.
func LoadWithOptions(opts Options) (*Config, error) {
	if err := loadDotEnv(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range boundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// loadDotEnv populates the process environment from a dotenv file.
// Variables already set in the environment win.
func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error loading env file %s: %w", path, err)
	}
	return nil
}
