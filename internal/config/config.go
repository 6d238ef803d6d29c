package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the ledger service.
type Config struct {
	ServerPort      string        `mapstructure:"SERVER_PORT"`
	StoreDriver     string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int           `mapstructure:"REDIS_DB"`
	BalanceCacheTTL time.Duration `mapstructure:"BALANCE_CACHE_TTL"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogFormat       string        `mapstructure:"LOG_FORMAT"`
	GinMode         string        `mapstructure:"GIN_MODE"`
}

var defaults = map[string]any{
	"SERVER_PORT":       "8080",
	"STORE_DRIVER":      DriverPostgres,
	"DATABASE_URL":      "",
	"REDIS_ADDR":        "",
	"REDIS_PASSWORD":    "",
	"REDIS_DB":          0,
	"BALANCE_CACHE_TTL": "30s",
	"JWT_SECRET":        "",
	"LOG_LEVEL":         "info",
	"LOG_FORMAT":        "json",
	"GIN_MODE":          "release",
}

// Load reads configuration from the environment, with envFile as an optional
// base layer. Environment variables win over the file.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %s or %s, got %q", DriverPostgres, DriverMemory, c.StoreDriver)
	}
	if c.ServerPort == "" {
		return errors.New("SERVER_PORT is required")
	}
	if c.BalanceCacheTTL <= 0 {
		return fmt.Errorf("BALANCE_CACHE_TTL must be positive, got %s", c.BalanceCacheTTL)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must not be negative, got %d", c.RedisDB)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be debug, release or test, got %q", c.GinMode)
	}
	return nil
}

// RedisEnabled reports whether the balance cache and event stream are on.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// AuthEnabled reports whether bearer tokens are required.
func (c *Config) AuthEnabled() bool { return c.JWTSecret != "" }
