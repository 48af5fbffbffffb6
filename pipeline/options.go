package pipeline

import (
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/inbound"
	"github.com/goliatone/go-marketplace-hooks/keys"
	"github.com/goliatone/go-marketplace-hooks/webhooks"
)

// Option adjusts builder settings. Options only ever touch the copy they are
// applied to.
type Option func(*settings)

type settings struct {
	extensionID string

	logger          core.Logger
	loggingDisabled bool
	logLevel        string

	keyServiceURL string
	keyTimeout    time.Duration
	keyCacheTTL   time.Duration
	httpClient    keys.HTTPDoer
	keyProvider   keys.PublicKeyProvider
	keyCache      repositorycache.CacheService
	redis         keys.RedisClient

	verificationDisabled bool
	verifier             webhooks.SignatureVerifier

	prefix []inbound.Handler
	suffix []inbound.Handler

	burst webhooks.BurstController

	replayEnabled bool
	claims        inbound.ClaimStore
	replay        webhooks.ReplayOptions

	metrics core.MetricsRecorder
	tracer  trace.Tracer
}

func defaultSettings() settings {
	defaults := core.DefaultConfig()
	return settings{
		logLevel:      defaults.Logging.Level,
		keyServiceURL: defaults.KeyService.BaseURL,
		keyTimeout:    defaults.KeyService.Timeout,
		keyCacheTTL:   defaults.KeyService.CacheTTL,
		replay:        webhooks.ReplayOptions{Lease: defaults.Replay.Lease},
	}
}

func (s settings) clone() settings {
	out := s
	out.prefix = append([]inbound.Handler(nil), s.prefix...)
	out.suffix = append([]inbound.Handler(nil), s.suffix...)
	return out
}

// WithLogger sets the step logger. It does not re-enable logging turned
// off by WithoutLogging or the config.
func WithLogger(logger core.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithoutLogging silences every step, not only the logging step.
func WithoutLogging() Option {
	return func(s *settings) {
		s.loggingDisabled = true
	}
}

func WithLogLevel(level string) Option {
	return func(s *settings) {
		if trimmed := strings.TrimSpace(level); trimmed != "" {
			s.logLevel = trimmed
		}
	}
}

// WithKeyServiceURL overrides the base URL of the key issuance API.
func WithKeyServiceURL(baseURL string) Option {
	return func(s *settings) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			s.keyServiceURL = trimmed
		}
	}
}

func WithHTTPClient(client keys.HTTPDoer) Option {
	return func(s *settings) {
		s.httpClient = client
	}
}

// WithPublicKeyProvider replaces the API provider. The builder still puts its
// cache layers in front of it.
func WithPublicKeyProvider(provider keys.PublicKeyProvider) Option {
	return func(s *settings) {
		s.keyProvider = provider
	}
}

// WithKeyCache stores resolved keys in the given cache service instead of a
// private in-memory one.
func WithKeyCache(cacheService repositorycache.CacheService) Option {
	return func(s *settings) {
		s.keyCache = cacheService
	}
}

// WithRedisKeyCache shares resolved keys between replicas through Redis.
func WithRedisKeyCache(client keys.RedisClient) Option {
	return func(s *settings) {
		s.redis = client
	}
}

func WithoutSignatureVerification() Option {
	return func(s *settings) {
		s.verificationDisabled = true
	}
}

// WithVerifier replaces the signature verifier and the whole key provider
// stack behind it.
func WithVerifier(verifier webhooks.SignatureVerifier) Option {
	return func(s *settings) {
		s.verifier = verifier
		s.verificationDisabled = false
	}
}

// WithPrefix adds steps that run before the default steps.
func WithPrefix(handlers ...inbound.Handler) Option {
	return func(s *settings) {
		s.prefix = append(s.prefix, handlers...)
	}
}

// WithSuffix adds steps that run after persistence.
func WithSuffix(handlers ...inbound.Handler) Option {
	return func(s *settings) {
		s.suffix = append(s.suffix, handlers...)
	}
}

// WithBurstControl places controller after signature verification and
// before the replay guard.
func WithBurstControl(controller webhooks.BurstController) Option {
	return func(s *settings) {
		s.burst = controller
	}
}

// WithReplayProtection enables the replay guard over store. A nil store falls
// back to a process-local InMemoryClaimStore at build time.
func WithReplayProtection(store inbound.ClaimStore) Option {
	return func(s *settings) {
		s.replayEnabled = true
		s.claims = store
	}
}

func WithReplayOptions(opts webhooks.ReplayOptions) Option {
	return func(s *settings) {
		if opts.Lease <= 0 {
			opts.Lease = s.replay.Lease
		}
		s.replay = opts
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(s *settings) {
		s.metrics = recorder
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *settings) {
		s.tracer = tracer
	}
}

// WithConfig applies the extension id (when none was given), logging, key service, verification and replay
// sections of cfg. Zero values keep the current setting.
func WithConfig(cfg core.Config) Option {
	return func(s *settings) {
		if s.extensionID == "" {
			s.extensionID = strings.TrimSpace(cfg.ExtensionID)
		}
		if cfg.Logging.Disabled {
			s.loggingDisabled = true
		}
		WithLogLevel(cfg.Logging.Level)(s)
		WithKeyServiceURL(cfg.KeyService.BaseURL)(s)
		if cfg.KeyService.Timeout > 0 {
			s.keyTimeout = cfg.KeyService.Timeout
		}
		if cfg.KeyService.CacheTTL > 0 {
			s.keyCacheTTL = cfg.KeyService.CacheTTL
		}
		if cfg.Verification.Disabled {
			s.verificationDisabled = true
		}
		if cfg.Replay.Enabled {
			s.replayEnabled = true
		}
		if cfg.Replay.Lease > 0 {
			s.replay.Lease = cfg.Replay.Lease
		}
	}
}
