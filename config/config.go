// Package config loads a NOMAD host's deployment configuration: where
// its static identity lives, where it listens, and how it logs and
// exposes metrics. None of this is wire-format policy — every field
// here is local to one endpoint and never negotiated with a peer.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the complete host configuration for a NOMAD endpoint.
type Config struct {
	Identity IdentityConfig `koanf:"identity"`
	Network  NetworkConfig  `koanf:"network"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
}

// IdentityConfig locates the endpoint's long-term static X25519 keypair.
type IdentityConfig struct {
	// StaticKeyPath is the file holding the 32-byte private key, as
	// written by cmd/nomad-keygen.
	StaticKeyPath string `koanf:"static_key_path"`
}

// NetworkConfig holds the UDP listener and migration-tracking settings.
type NetworkConfig struct {
	// ListenAddr is the local UDP address to bind (e.g., ":4433").
	ListenAddr string `koanf:"listen_addr"`

	// MaxAddressAge bounds how long after first seeing a remote address
	// (other than the current validated one) the migration validator
	// retains its bookkeeping, before garbage-collecting it.
	MaxAddressAge time.Duration `koanf:"max_address_age"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint.
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// DefaultConfig returns a Config populated with sensible production
// defaults. StaticKeyPath is left empty: a host must supply one.
func DefaultConfig() *Config {
	return &Config{
		Identity: IdentityConfig{
			StaticKeyPath: "",
		},
		Network: NetworkConfig{
			ListenAddr:    ":4433",
			MaxAddressAge: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Addr: ":9433",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// envPrefix is the environment variable prefix for NOMAD host
// configuration. Variables are named NOMAD_<section>_<key>, e.g.
// NOMAD_NETWORK_LISTEN_ADDR.
const envPrefix = "NOMAD_"

// Load reads configuration from a YAML file at path, overlays
// environment variable overrides (NOMAD_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: load from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("config: load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validate %s: %w", path, err)
	}
	return cfg, nil
}

// envKeyMapper transforms NOMAD_NETWORK_LISTEN_ADDR -> network.listen_addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"identity.static_key_path": defaults.Identity.StaticKeyPath,
		"network.listen_addr":      defaults.Network.ListenAddr,
		"network.max_address_age":  defaults.Network.MaxAddressAge.String(),
		"metrics.addr":             defaults.Metrics.Addr,
		"metrics.path":             defaults.Metrics.Path,
		"log.level":                defaults.Log.Level,
		"log.format":               defaults.Log.Format,
	}
	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

// Validation errors.
var (
	ErrEmptyStaticKeyPath = errors.New("identity.static_key_path must not be empty")
	ErrEmptyListenAddr    = errors.New("network.listen_addr must not be empty")
	ErrInvalidMaxAddressAge = errors.New("network.max_address_age must be > 0")
)

// Validate checks the configuration for logical errors.
func Validate(cfg *Config) error {
	if cfg.Identity.StaticKeyPath == "" {
		return ErrEmptyStaticKeyPath
	}
	if cfg.Network.ListenAddr == "" {
		return ErrEmptyListenAddr
	}
	if cfg.Network.MaxAddressAge <= 0 {
		return ErrInvalidMaxAddressAge
	}
	return nil
}

// ParseLogLevel maps a configuration log level string to the
// corresponding slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
