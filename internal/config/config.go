// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	productionPollInterval = 60 * time.Minute
	defaultPollInterval    = 120 * time.Minute
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel                string        `mapstructure:"LOG_LEVEL"`
	AppEnv                  string        `mapstructure:"APP_ENV"`
	DBURL                   string        `mapstructure:"DB_URL"`
	HTTPAddr                string        `mapstructure:"HTTP_ADDR"`
	GithubToken             string        `mapstructure:"GITHUB_TOKEN"`
	GithubBaseURL           string        `mapstructure:"GITHUB_BASE_URL"`
	GithubRequestsPerSecond float64       `mapstructure:"GITHUB_REQUESTS_PER_SECOND"`
	PollIntervalOverride    time.Duration `mapstructure:"POLL_INTERVAL"`
	PollConcurrency         int           `mapstructure:"POLL_CONCURRENCY"`
	ReleasesPerCheck        int           `mapstructure:"RELEASES_PER_CHECK"`
	InitialReleases         int           `mapstructure:"INITIAL_RELEASES"`
	RefreshReleases         int           `mapstructure:"REFRESH_RELEASES"`
	AutoStart               bool          `mapstructure:"AUTO_START"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GITHUB_TOKEN", "")
	v.SetDefault("GITHUB_BASE_URL", "")
	v.SetDefault("GITHUB_REQUESTS_PER_SECOND", 1.0)
	v.SetDefault("POLL_INTERVAL", "0s")
	v.SetDefault("POLL_CONCURRENCY", 1)
	v.SetDefault("RELEASES_PER_CHECK", 10)
	v.SetDefault("INITIAL_RELEASES", 20)
	v.SetDefault("REFRESH_RELEASES", 50)
	v.SetDefault("AUTO_START", true)
	v.SetDefault("DB_URL", "")

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.PollIntervalOverride < 0 {
		return nil, errors.New("POLL_INTERVAL must not be negative")
	}
	if cfg.PollConcurrency < 1 {
		return nil, errors.New("POLL_CONCURRENCY must be at least 1")
	}
	if cfg.ReleasesPerCheck < 1 || cfg.ReleasesPerCheck > 100 {
		return nil, errors.New("RELEASES_PER_CHECK must be between 1 and 100")
	}
	if cfg.GithubRequestsPerSecond <= 0 {
		return nil, errors.New("GITHUB_REQUESTS_PER_SECOND must be positive")
	}

	return &cfg, nil
}

// IsProduction reports whether the service runs in a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// PollInterval returns the sweep cadence: the explicit override when set,
// otherwise hourly in production and every two hours elsewhere.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalOverride > 0 {
		return c.PollIntervalOverride
	}
	if c.IsProduction() {
		return productionPollInterval
	}
	return defaultPollInterval
}
