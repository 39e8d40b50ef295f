package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultMaxFrameBytes  = 64 * 1024
	defaultJoinTimeoutSec = 10
)

// Config holds the relay daemon configuration, loaded from a YAML file.
type Config struct {
	ListenAddress      string   `yaml:"listenAddress"`
	AllowedOrigins     []string `yaml:"allowedOrigins"`
	IdleTimeoutSeconds int      `yaml:"idleTimeoutSeconds"`
	JoinTimeoutSeconds int      `yaml:"joinTimeoutSeconds"`
	MaxFrameBytes      int64    `yaml:"maxFrameBytes"`

	// MaxSessionMembers caps the membership of a single session room.
	// Zero means unlimited.
	MaxSessionMembers int `yaml:"maxSessionMembers"`

	// AdmissionJWTSecret gates connections behind signed tokens.
	// Empty means an open relay: session secrecy then rests entirely
	// on the capability links, which never pass through the relay.
	AdmissionJWTSecret string `yaml:"admissionJWTSecret"`

	// RedisAddress enables the cross-node session bridge.
	RedisAddress string `yaml:"redisAddress"`

	// Manual TLS configuration
	TLSCertFile string `yaml:"tlsCertFile"`
	TLSKeyFile  string `yaml:"tlsKeyFile"`

	// Automatic TLS configuration via ACME
	PublicHostname string `yaml:"publicHostname"`
	AcmeCacheDir   string `yaml:"acmeCacheDir"`
}

// IdleTimeout returns the idle timeout as a time.Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// JoinTimeout returns how long a connection may sit without sending its
// join frame.
func (c *Config) JoinTimeout() time.Duration {
	if c.JoinTimeoutSeconds <= 0 {
		return defaultJoinTimeoutSec * time.Second
	}
	return time.Duration(c.JoinTimeoutSeconds) * time.Second
}

// ManualTLS reports whether a cert/key pair is configured.
func (c *Config) ManualTLS() bool {
	return c.TLSCertFile != "" || c.TLSKeyFile != ""
}

// AutomaticTLS reports whether ACME certificates are configured.
func (c *Config) AutomaticTLS() bool {
	return c.PublicHostname != ""
}

// validate performs comprehensive validation of the loaded configuration.
func (c *Config) validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listenAddress must be set")
	}
	if c.IdleTimeoutSeconds < 0 {
		return fmt.Errorf("idleTimeoutSeconds cannot be negative")
	}
	if c.JoinTimeoutSeconds < 0 {
		return fmt.Errorf("joinTimeoutSeconds cannot be negative")
	}
	if c.MaxFrameBytes < 0 {
		return fmt.Errorf("maxFrameBytes cannot be negative")
	}
	if c.MaxSessionMembers < 0 {
		return fmt.Errorf("maxSessionMembers cannot be negative")
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = defaultMaxFrameBytes
	}

	// TLS may be manual, automatic, or absent (plain HTTP for local
	// and dev deployments), but never both at once.
	if c.ManualTLS() && c.AutomaticTLS() {
		return fmt.Errorf("cannot specify both manual TLS (tlsCertFile/tlsKeyFile) and automatic TLS (publicHostname) settings")
	}
	if c.ManualTLS() && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		return fmt.Errorf("both tlsCertFile and tlsKeyFile must be set for manual TLS")
	}

	return nil
}

// LoadConfig reads the configuration from the given file path,
// unmarshals it, and performs validation.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
