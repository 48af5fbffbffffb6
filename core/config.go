package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultKeyServiceBaseURL = "https://api.mittwald.de"
	DefaultKeyServiceTimeout = 10 * time.Second
	DefaultKeyCacheTTL       = 30 * 24 * time.Hour
	DefaultReplayLease       = 2 * time.Minute
	DefaultLogLevel          = "debug"
)

type KeyServiceConfig struct {
	BaseURL  string        `koanf:"base_url" mapstructure:"base_url"`
	Timeout  time.Duration `koanf:"timeout" mapstructure:"timeout"`
	CacheTTL time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
}

type LoggingConfig struct {
	Disabled bool   `koanf:"disabled" mapstructure:"disabled"`
	Level    string `koanf:"level" mapstructure:"level"`
}

type VerificationConfig struct {
	Disabled bool `koanf:"disabled" mapstructure:"disabled"`
}

type ReplayConfig struct {
	Enabled bool          `koanf:"enabled" mapstructure:"enabled"`
	Lease   time.Duration `koanf:"lease" mapstructure:"lease"`
}

type Config struct {
	ServiceName  string             `koanf:"service_name" mapstructure:"service_name"`
	ExtensionID  string             `koanf:"extension_id" mapstructure:"extension_id"`
	KeyService   KeyServiceConfig   `koanf:"key_service" mapstructure:"key_service"`
	Logging      LoggingConfig      `koanf:"logging" mapstructure:"logging"`
	Verification VerificationConfig `koanf:"verification" mapstructure:"verification"`
	Replay       ReplayConfig       `koanf:"replay" mapstructure:"replay"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "marketplace-hooks",
		KeyService: KeyServiceConfig{
			BaseURL:  DefaultKeyServiceBaseURL,
			Timeout:  DefaultKeyServiceTimeout,
			CacheTTL: DefaultKeyCacheTTL,
		},
		Logging: LoggingConfig{Level: DefaultLogLevel},
		Replay:  ReplayConfig{Lease: DefaultReplayLease},
	}
}

// Validate checks the configuration. ExtensionID is not required here since a
// pipeline may receive it separately.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if base := strings.TrimSpace(c.KeyService.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: key_service.base_url must be an absolute url")
		}
	}
	if c.KeyService.Timeout < 0 {
		return fmt.Errorf("core: key_service.timeout must not be negative")
	}
	if c.KeyService.CacheTTL < 0 {
		return fmt.Errorf("core: key_service.cache_ttl must not be negative")
	}
	if c.Replay.Lease < 0 {
		return fmt.Errorf("core: replay.lease must not be negative")
	}
	if _, ok := ParseLogLevel(c.Logging.Level); !ok && strings.TrimSpace(c.Logging.Level) != "" {
		return fmt.Errorf("core: unsupported logging.level %q", c.Logging.Level)
	}
	return nil
}
