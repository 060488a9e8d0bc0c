// Package config loads the engine configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file omits a value.
const (
	DefaultListenAddr   = ":8318"
	DefaultDatabaseDSN  = "file:data/mps.db"
	DefaultJWTExpiry    = 24 * time.Hour
	DefaultQRDefaultTTL = 900 * time.Second
	DefaultQRSweepTTL   = 300 * time.Second
	DefaultQRSweepEvery = 6 * time.Hour
)

// JWTConfig holds session token settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// RedisConfig holds the optional QR token cache settings. An empty Addr
// disables the cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // logrus level name, default info.
	File  string `yaml:"file"`  // Rotating log file path; empty logs to stderr only.
}

// PolicyConfig holds default values for runtime-tunable policies. The
// settings table overrides these once populated.
type PolicyConfig struct {
	QRSingleUse          bool `yaml:"qr_single_use"`
	RechargeAwardsPoints bool `yaml:"recharge_awards_points"`
}

// QRConfig holds QR token lifecycle settings.
type QRConfig struct {
	DefaultTTL    time.Duration `yaml:"default_ttl"`    // TTL when the caller passes none.
	SweepTTL      time.Duration `yaml:"sweep_ttl"`      // TTL for tokens minted by the batch sweep.
	SweepInterval time.Duration `yaml:"sweep_interval"` // Negative disables the sweeper.
}

// Config is the root engine configuration.
type Config struct {
	ListenAddr  string       `yaml:"listen_addr"`
	DatabaseDSN string       `yaml:"database_dsn"`
	JWT         JWTConfig    `yaml:"jwt"`
	Redis       RedisConfig  `yaml:"redis"`
	Log         LogConfig    `yaml:"log"`
	Policy      PolicyConfig `yaml:"policy"`
	QR          QRConfig     `yaml:"qr"`

	// Bootstrap admin created on first migration when no admin exists.
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

// Load reads the configuration file at path. A missing file yields the
// defaults; environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, errRead := os.ReadFile(path)
		switch {
		case errRead == nil:
			if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
			}
		case os.IsNotExist(errRead):
			// Fall through to defaults.
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, errRead)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, fmt.Errorf("config: jwt secret is required")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MPS_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("MPS_DATABASE_DSN")); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("MPS_JWT_SECRET")); v != "" {
		cfg.JWT.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("MPS_REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("MPS_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		cfg.DatabaseDSN = DefaultDatabaseDSN
	}
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = DefaultJWTExpiry
	}
	if cfg.QR.DefaultTTL <= 0 {
		cfg.QR.DefaultTTL = DefaultQRDefaultTTL
	}
	if cfg.QR.SweepTTL <= 0 {
		cfg.QR.SweepTTL = DefaultQRSweepTTL
	}
	if cfg.QR.SweepInterval < 0 {
		cfg.QR.SweepInterval = 0
	} else if cfg.QR.SweepInterval == 0 {
		cfg.QR.SweepInterval = DefaultQRSweepEvery
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
}
