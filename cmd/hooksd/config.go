package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/goliatone/go-marketplace-hooks/core"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite3"
)

// Config is read from the environment. Fields that mirror core.Config are
// left unset by default so the library defaults apply.
type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	WebhookPath string `env:"WEBHOOK_PATH" envDefault:"/webhooks/marketplace"`
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`
	ConfigFile  string `env:"HOOKS_CONFIG_FILE"`

	ExtensionID         string        `env:"EXTENSION_ID"`
	LogLevel            string        `env:"LOG_LEVEL"`
	LogFormat           string        `env:"LOG_FORMAT" envDefault:"json"`
	DisableLogging      bool          `env:"DISABLE_WEBHOOK_LOGGING"`
	KeyServiceURL       string        `env:"KEY_SERVICE_URL"`
	KeyServiceTimeout   time.Duration `env:"KEY_SERVICE_TIMEOUT"`
	KeyCacheTTL         time.Duration `env:"KEY_CACHE_TTL"`
	DisableVerification bool          `env:"DISABLE_SIGNATURE_VERIFICATION"`
	ReplayProtection    bool          `env:"REPLAY_PROTECTION"`
	ReplayLease         time.Duration `env:"REPLAY_LEASE"`
	BurstWindow         time.Duration `env:"BURST_WINDOW"`
	MaxBodyBytes        int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	// AdminRoutes serves the unauthenticated extension read endpoints. Keep
	// it off unless the listener is private.
	AdminRoutes bool `env:"ADMIN_ROUTES_ENABLED"`

	RedisURL string `env:"REDIS_URL"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`
	DatabaseURL   string `env:"DATABASE_URL"`

	SecretKey          string            `env:"SECRET_ENCRYPTION_KEY"`
	SecretKeyID        string            `env:"SECRET_ENCRYPTION_KEY_ID" envDefault:"primary"`
	PreviousSecretKeys map[string]string `env:"SECRET_ENCRYPTION_PREVIOUS_KEYS"`
	SecretSalt         string            `env:"SECRET_ENCRYPTION_SALT"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func LoadEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("hooksd: PORT must be positive")
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		return fmt.Errorf("hooksd: WEBHOOK_PATH must start with /")
	}
	switch c.storageDriver() {
	case StorageMemory:
	case StoragePostgres, StorageSQLite:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("hooksd: DATABASE_URL is required for %s storage", c.storageDriver())
		}
	default:
		return fmt.Errorf("hooksd: unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	return nil
}

func (c Config) storageDriver() string {
	driver := strings.ToLower(strings.TrimSpace(c.StorageDriver))
	if driver == "sqlite" {
		return StorageSQLite
	}
	return driver
}

// Runtime maps the environment onto the runtime layer of core.Config.
func (c Config) Runtime() core.Config {
	return core.Config{
		ExtensionID: strings.TrimSpace(c.ExtensionID),
		KeyService: core.KeyServiceConfig{
			BaseURL:  strings.TrimSpace(c.KeyServiceURL),
			Timeout:  c.KeyServiceTimeout,
			CacheTTL: c.KeyCacheTTL,
		},
		Logging: core.LoggingConfig{
			Disabled: c.DisableLogging,
			Level:    strings.TrimSpace(c.LogLevel),
		},
		Verification: core.VerificationConfig{Disabled: c.DisableVerification},
		Replay: core.ReplayConfig{
			Enabled: c.ReplayProtection,
			Lease:   c.ReplayLease,
		},
	}
}

// HooksConfig resolves defaults, the optional config file and the
// environment, in that order of precedence.
func (c Config) HooksConfig(ctx context.Context) (core.Config, error) {
	var loader core.RawConfigLoader
	if path := strings.TrimSpace(c.ConfigFile); path != "" {
		loader = fileLoader(path)
	}
	resolved, err := core.LoadConfig(ctx, loader, c.Runtime())
	if err != nil {
		return core.Config{}, err
	}
	if strings.TrimSpace(resolved.ExtensionID) == "" {
		return core.Config{}, fmt.Errorf("hooksd: extension id is required (EXTENSION_ID or extension_id)")
	}
	return resolved, nil
}

func fileLoader(path string) core.RawConfigLoader {
	return core.RawConfigLoaderFunc(func(context.Context) (map[string]any, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		raw := map[string]any{}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("hooksd: parse %s: %w", path, err)
		}
		return raw, nil
	})
}
