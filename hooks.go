// Package hooks receives marketplace extension lifecycle webhooks, verifies
// their Ed25519 signatures against remotely issued public keys and persists
// the resulting extension instance state.
//
// Most callers only need New and an ExtensionStorage implementation:
//
//	chain, err := hooks.New(storage, extensionID).BuildCombined()
//	http.Handle("/webhooks", hooks.NewHTTPHandler(chain))
package hooks

import (
	"net/http"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/pipeline"
	"github.com/goliatone/go-marketplace-hooks/transport"
)

type Config = core.Config

type ContextKind = core.ContextKind
type ExtensionInstance = core.ExtensionInstance
type ExtensionToBeAdded = core.ExtensionToBeAdded
type ExtensionToBeUpdated = core.ExtensionToBeUpdated
type ExtensionStorage = core.ExtensionStorage
type SecretProvider = core.SecretProvider
type MetricsRecorder = core.MetricsRecorder
type Logger = core.Logger

type WebhookRequest = core.WebhookRequest

type Option = pipeline.Option
type Builder = pipeline.Builder
type Chains = pipeline.Chains

const (
	ContextKindCustomer = core.ContextKindCustomer
	ContextKindProject  = core.ContextKindProject

	HeaderSignature          = core.HeaderSignature
	HeaderSignatureSerial    = core.HeaderSignatureSerial
	HeaderSignatureAlgorithm = core.HeaderSignatureAlgorithm
)

var (
	WithLogger                   = pipeline.WithLogger
	WithoutLogging               = pipeline.WithoutLogging
	WithLogLevel                 = pipeline.WithLogLevel
	WithKeyServiceURL            = pipeline.WithKeyServiceURL
	WithHTTPClient               = pipeline.WithHTTPClient
	WithPublicKeyProvider        = pipeline.WithPublicKeyProvider
	WithKeyCache                 = pipeline.WithKeyCache
	WithRedisKeyCache            = pipeline.WithRedisKeyCache
	WithoutSignatureVerification = pipeline.WithoutSignatureVerification
	WithVerifier                 = pipeline.WithVerifier
	WithPrefix                   = pipeline.WithPrefix
	WithSuffix                   = pipeline.WithSuffix
	WithReplayProtection         = pipeline.WithReplayProtection
	WithReplayOptions            = pipeline.WithReplayOptions
	WithBurstControl             = pipeline.WithBurstControl
	WithMetricsRecorder          = pipeline.WithMetricsRecorder
	WithTracer                   = pipeline.WithTracer
	WithConfig                   = pipeline.WithConfig
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// New starts a pipeline builder for extensionID over storage.
func New(storage ExtensionStorage, extensionID string, opts ...Option) *Builder {
	return pipeline.New(storage, extensionID, opts...)
}

// Setup builds the combined chain from a resolved configuration.
func Setup(storage ExtensionStorage, cfg Config, opts ...Option) (transport.Dispatcher, error) {
	all := append([]Option{pipeline.WithConfig(cfg)}, opts...)
	chain, err := pipeline.New(storage, cfg.ExtensionID, all...).BuildCombined()
	if err != nil {
		return nil, err
	}
	return chain, nil
}

func NewHTTPHandler(dispatcher transport.Dispatcher, opts ...transport.HandlerOption) http.Handler {
	return transport.NewHTTPHandler(dispatcher, opts...)
}
