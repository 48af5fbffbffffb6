package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type RawConfigLoaderFunc func(ctx context.Context) (map[string]any, error)

func (fn RawConfigLoaderFunc) LoadRaw(ctx context.Context) (map[string]any, error) {
	if fn == nil {
		return map[string]any{}, nil
	}
	return fn(ctx)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// LoadConfig builds the configuration from the raw loader over DefaultConfig
// and then layers runtime overrides on top. Zero runtime fields are ignored.
func LoadConfig(ctx context.Context, loader RawConfigLoader, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, fmt.Errorf("core: load raw config: %w", err)
	}
	loaded, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return ResolveConfig(defaults, loaded, runtime)
}

// ResolveConfig merges defaults, loaded and runtime layers, runtime winning.
func ResolveConfig(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.ExtensionID) != "" {
		layer["extension_id"] = cfg.ExtensionID
	}

	keyService := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.KeyService.BaseURL) != "" {
		keyService["base_url"] = cfg.KeyService.BaseURL
	}
	if includeZero || cfg.KeyService.Timeout > 0 {
		keyService["timeout"] = cfg.KeyService.Timeout
	}
	if includeZero || cfg.KeyService.CacheTTL > 0 {
		keyService["cache_ttl"] = cfg.KeyService.CacheTTL
	}
	if len(keyService) > 0 {
		layer["key_service"] = keyService
	}

	logging := map[string]any{}
	if includeZero || cfg.Logging.Disabled {
		logging["disabled"] = cfg.Logging.Disabled
	}
	if includeZero || strings.TrimSpace(cfg.Logging.Level) != "" {
		logging["level"] = cfg.Logging.Level
	}
	if len(logging) > 0 {
		layer["logging"] = logging
	}

	if includeZero || cfg.Verification.Disabled {
		layer["verification"] = map[string]any{"disabled": cfg.Verification.Disabled}
	}

	replay := map[string]any{}
	if includeZero || cfg.Replay.Enabled {
		replay["enabled"] = cfg.Replay.Enabled
	}
	if includeZero || cfg.Replay.Lease > 0 {
		replay["lease"] = cfg.Replay.Lease
	}
	if len(replay) > 0 {
		layer["replay"] = replay
	}
	return layer
}
