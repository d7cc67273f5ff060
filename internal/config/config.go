// Package config loads application settings from configs/config.yml,
// a local .env file and SCP_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SCP"

// Backend modes.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

type Config struct {
	Port     string
	Log      LogConfig
	DB       DBConfig
	Auth     AuthConfig
	Drain    DrainConfig
	Backend  BackendConfig
	Purchase PurchaseConfig
}

type LogConfig struct {
	Level string
}

type DBConfig struct {
	Path string
}

type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

type DrainConfig struct {
	Rate             float64
	Interval         time.Duration
	WriteTimeout     time.Duration
	FlushConcurrency int
	FetchTimeout     time.Duration
}

type BackendConfig struct {
	Mode   string
	Remote RemoteConfig
}

// RemoteConfig points at a remote meter backend. Each request carries the
// calling user's own bearer token.
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

// PurchaseConfig prices units in the payment currency.
type PurchaseConfig struct {
	UnitPrice float64
	MinAmount float64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("db.path", "app.db")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("drain.rate", 0.002)
	v.SetDefault("drain.interval", time.Second)
	v.SetDefault("drain.write_timeout", 5*time.Second)
	v.SetDefault("drain.flush_concurrency", 4)
	v.SetDefault("drain.fetch_timeout", 10*time.Second)
	v.SetDefault("backend.mode", BackendLocal)
	v.SetDefault("backend.remote.base_url", "")
	v.SetDefault("backend.remote.timeout", 10*time.Second)
	v.SetDefault("purchase.unit_price", 100.0)
	v.SetDefault("purchase.min_amount", 100.0)
}

// Load reads configuration. Priority, highest first: SCP_ environment
// variables (a .env file in the working directory is loaded into the
// environment first), the config file, built-in defaults. A missing config
// file is not an error.
func Load(configPaths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(configPaths) == 0 {
		configPaths = []string{"configs"}
	}
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Port: v.GetString("port"),
		Log:  LogConfig{Level: strings.ToLower(v.GetString("log.level"))},
		DB:   DBConfig{Path: v.GetString("db.path")},
		Auth: AuthConfig{
			SigningKey: v.GetString("auth.signing_key"),
			TokenTTL:   v.GetDuration("auth.token_ttl"),
		},
		Drain: DrainConfig{
			Rate:             v.GetFloat64("drain.rate"),
			Interval:         v.GetDuration("drain.interval"),
			WriteTimeout:     v.GetDuration("drain.write_timeout"),
			FlushConcurrency: v.GetInt("drain.flush_concurrency"),
			FetchTimeout:     v.GetDuration("drain.fetch_timeout"),
		},
		Backend: BackendConfig{
			Mode: strings.ToLower(v.GetString("backend.mode")),
			Remote: RemoteConfig{
				BaseURL: v.GetString("backend.remote.base_url"),
				Timeout: v.GetDuration("backend.remote.timeout"),
			},
		},
		Purchase: PurchaseConfig{
			UnitPrice: v.GetFloat64("purchase.unit_price"),
			MinAmount: v.GetFloat64("purchase.min_amount"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.SigningKey == "" {
		return errors.New("auth.signing_key is required (set SCP_AUTH_SIGNING_KEY)")
	}
	if c.Drain.Rate <= 0 {
		return fmt.Errorf("drain.rate must be > 0, got %v", c.Drain.Rate)
	}
	if c.Drain.Interval <= 0 {
		return fmt.Errorf("drain.interval must be > 0, got %v", c.Drain.Interval)
	}
	if c.Purchase.UnitPrice <= 0 {
		return fmt.Errorf("purchase.unit_price must be > 0, got %v", c.Purchase.UnitPrice)
	}
	if c.Purchase.MinAmount <= 0 {
		return fmt.Errorf("purchase.min_amount must be > 0, got %v", c.Purchase.MinAmount)
	}
	switch c.Backend.Mode {
	case BackendLocal:
	case BackendRemote:
		if c.Backend.Remote.BaseURL == "" {
			return errors.New("backend.remote.base_url is required in remote mode")
		}
	default:
		return fmt.Errorf("backend.mode must be %q or %q, got %q", BackendLocal, BackendRemote, c.Backend.Mode)
	}
	return nil
}
