// Package config loads the hawkd configuration file.
//
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Durations are written as Go duration strings ("60s", "5m").
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/forcebit/hawk-go/pkg/artifacts"
	"github.com/forcebit/hawk-go/pkg/base"
	"github.com/forcebit/hawk-go/pkg/hawk"
)

// Credential backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Nonce guard backends.
const (
	NonceMemory  = "memory"
	NonceLevelDB = "leveldb"
)

type Config struct {
	ListenAddress string        `yaml:"listen" toml:"listen"`
	ReadTimeout   time.Duration `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout" toml:"writeTimeout"`
	IdleTimeout   time.Duration `yaml:"idleTimeout" toml:"idleTimeout"`

	Hawk        HawkConfig        `yaml:"hawk" toml:"hawk"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Nonce       NonceConfig       `yaml:"nonce" toml:"nonce"`
	RateLimit   RateLimitConfig   `yaml:"rateLimit" toml:"rateLimit"`
	Metrics     MetricsConfig     `yaml:"metrics" toml:"metrics"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// HawkConfig maps onto hawk.ServerOptions. ServerAuthorization and Bewit
// default to true when omitted.
type HawkConfig struct {
	Skew                time.Duration `yaml:"skew" toml:"skew"`
	LocalOffset         time.Duration `yaml:"localOffset" toml:"localOffset"`
	ServerAuthorization *bool         `yaml:"serverAuthorization" toml:"serverAuthorization"`
	Bewit               *bool         `yaml:"bewit" toml:"bewit"`
	RequirePayloadHash  bool          `yaml:"requirePayloadHash" toml:"requirePayloadHash"`
	HashResponses       bool          `yaml:"hashResponses" toml:"hashResponses"`
	TrustForwarded      bool          `yaml:"trustForwarded" toml:"trustForwarded"`
	MaxHeaderLength     int           `yaml:"maxHeaderLength" toml:"maxHeaderLength"`
	MaxValueLength      int           `yaml:"maxValueLength" toml:"maxValueLength"`
}

type CredentialsConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	File    string `yaml:"file" toml:"file"`
	DSN     string `yaml:"dsn" toml:"dsn"`
	Migrate bool   `yaml:"migrate" toml:"migrate"`
}

type NonceConfig struct {
	Backend       string        `yaml:"backend" toml:"backend"`
	Path          string        `yaml:"path" toml:"path"`
	Capacity      int           `yaml:"capacity" toml:"capacity"`
	SweepInterval time.Duration `yaml:"sweepInterval" toml:"sweepInterval"`
}

type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requestsPerMinute" toml:"requestsPerMinute"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

type LogConfig struct {
	Service string `yaml:"service" toml:"service"`
	Env     string `yaml:"env" toml:"env"`
	Level   string `yaml:"level" toml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddress: ":8080",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		Hawk: HawkConfig{
			Skew: hawk.DefaultSkew,
		},
		Credentials: CredentialsConfig{
			Backend: BackendFile,
			File:    "credentials.yaml",
		},
		Nonce: NonceConfig{
			Backend: NonceMemory,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Service: "hawkd",
			Level:   "info",
		},
	}
}

// Load reads path over Default and validates the result. An empty path
// returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if err := cfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("decode config: unknown key %q", undecoded[0].String())
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints and fills in dependent defaults.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("listen address is required")
	}

	if cfg.Hawk.Skew < 0 {
		return fmt.Errorf("hawk.skew must not be negative")
	}
	if cfg.Hawk.Skew == 0 {
		cfg.Hawk.Skew = hawk.DefaultSkew
	}
	if cfg.Hawk.Skew%time.Second != 0 {
		return fmt.Errorf("hawk.skew must be a whole number of seconds")
	}
	if cfg.Hawk.MaxHeaderLength < 0 || cfg.Hawk.MaxValueLength < 0 {
		return fmt.Errorf("hawk header limits must not be negative")
	}

	switch cfg.Credentials.Backend {
	case BackendFile:
		if cfg.Credentials.File == "" {
			return fmt.Errorf("credentials.file is required for the file backend")
		}
	case BackendSQLite, BackendPostgres:
		if cfg.Credentials.DSN == "" {
			return fmt.Errorf("credentials.dsn is required for the %s backend", cfg.Credentials.Backend)
		}
	default:
		return fmt.Errorf("unknown credentials.backend %q", cfg.Credentials.Backend)
	}

	switch cfg.Nonce.Backend {
	case NonceMemory:
	case NonceLevelDB:
		if cfg.Nonce.Path == "" {
			return fmt.Errorf("nonce.path is required for the leveldb backend")
		}
	default:
		return fmt.Errorf("unknown nonce.backend %q", cfg.Nonce.Backend)
	}
	if cfg.Nonce.Capacity < 0 {
		return fmt.Errorf("nonce.capacity must not be negative")
	}
	if cfg.Nonce.SweepInterval == 0 {
		cfg.Nonce.SweepInterval = cfg.Hawk.Skew
	}

	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rateLimit values must not be negative")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

// ServerOptions maps the hawk section onto opts. Resolver, Guard, Logger
// and Registerer are left to the caller.
func (h HawkConfig) ServerOptions(opts *hawk.ServerOptions) {
	opts.Skew = h.Skew
	opts.LocalOffset = h.LocalOffset
	opts.DisableServerAuthorization = h.ServerAuthorization != nil && !*h.ServerAuthorization
	opts.DisableBewit = h.Bewit != nil && !*h.Bewit
	opts.RequirePayloadHash = h.RequirePayloadHash
	if h.HashResponses {
		opts.HashResponse = func(base.ResponseMessage) bool { return true }
	}
	if h.TrustForwarded {
		opts.Hosts = base.ForwardedHostResolver{}
	}
	if h.MaxHeaderLength > 0 || h.MaxValueLength > 0 {
		limits := artifacts.DefaultLimits()
		if h.MaxHeaderLength > 0 {
			limits.MaxHeaderLength = h.MaxHeaderLength
		}
		if h.MaxValueLength > 0 {
			limits.MaxValueLength = h.MaxValueLength
		}
		opts.Limits = &limits
	}
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q", name)
	}
	return level, nil
}
