// Package config loads cdoc.yaml through viper. Every key can be overridden
// by a CDOC_ environment variable (store.dsn → CDOC_STORE_DSN) or a bound
// command-line flag.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
// It must never be committed with real secrets; prefer CDOC_STORE_DSN.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	AWS    AWSConfig    `mapstructure:"aws"`
	Store  StoreConfig  `mapstructure:"store"`
	Server ServerConfig `mapstructure:"server"`
	Events EventsConfig `mapstructure:"events"`
	Scan   ScanConfig   `mapstructure:"scan"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Format is "text" or "json".
	Format string `mapstructure:"format"`
}

// AWSConfig holds credential and collection defaults for the aws source.
type AWSConfig struct {
	// Profile is the shared-config profile; empty uses the default chain.
	Profile string `mapstructure:"profile"`

	// Region is the home region used for global services.
	Region string `mapstructure:"region"`

	// Regions limits collection; empty means every enabled region.
	Regions []string `mapstructure:"regions"`

	// RoleARN, when set, is assumed before collecting.
	RoleARN    string `mapstructure:"role_arn"`
	ExternalID string `mapstructure:"external_id"`

	// Concurrency bounds parallel regions.
	Concurrency int `mapstructure:"concurrency"`

	// RateLimit caps API calls per second across the collector.
	RateLimit float64 `mapstructure:"rate_limit"`
}

// StoreConfig selects the report store.
type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `mapstructure:"driver"`

	DSN string `mapstructure:"dsn"`

	// CacheSize is the number of reports kept in the read cache; 0 disables it.
	CacheSize int `mapstructure:"cache_size"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// EventsConfig configures report notifications. An empty NATSURL disables
// publishing.
type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// ScanConfig tunes the scan pipeline.
type ScanConfig struct {
	// Workers bounds parallel rule evaluation; 0 uses GOMAXPROCS.
	Workers int `mapstructure:"workers"`

	Timeout time.Duration `mapstructure:"timeout"`

	// EvidenceDir, when set, receives a compressed evidence dump per scan.
	EvidenceDir string `mapstructure:"evidence_dir"`

	// Policy is the path of the policy file; empty reads cdoc-policy.yaml
	// from the working directory when present.
	Policy string `mapstructure:"policy"`
}

const (
	// EnvPrefix is prepended to every environment override.
	EnvPrefix = "CDOC"

	configName = "cdoc"
)

// New returns a viper instance with defaults and environment overrides set.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.regions", []string{})
	v.SetDefault("aws.role_arn", "")
	v.SetDefault("aws.external_id", "")
	v.SetDefault("aws.concurrency", 4)
	v.SetDefault("aws.rate_limit", 10.0)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.cache_size", 256)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject", "cdoc.report.stored")
	v.SetDefault("scan.workers", 0)
	v.SetDefault("scan.timeout", 15*time.Minute)
	v.SetDefault("scan.evidence_dir", "")
	v.SetDefault("scan.policy", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// DefaultDir returns ~/.config/cloud-doctor.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cloud-doctor")
}

// Load reads the config file into v and decodes it. When path is empty,
// cdoc.yaml is searched in the working directory and DefaultDir; a missing
// file there is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := DefaultDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn: required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q; valid values: memory, postgres", c.Store.Driver))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: invalid value %q; valid values: text, json", c.Log.Format))
	}
	if c.AWS.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("aws.concurrency: must be at least 1"))
	}
	if c.AWS.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("aws.rate_limit: must be positive"))
	}
	if c.Scan.Workers < 0 {
		errs = append(errs, fmt.Errorf("scan.workers: must not be negative"))
	}
	if c.Store.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("store.cache_size: must not be negative"))
	}
	return errors.Join(errs...)
}
