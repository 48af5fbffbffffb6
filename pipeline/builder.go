// Package pipeline assembles webhook chains from the steps in package
// webhooks.
package pipeline

import (
	"context"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/events"
	"github.com/goliatone/go-marketplace-hooks/inbound"
	"github.com/goliatone/go-marketplace-hooks/keys"
	"github.com/goliatone/go-marketplace-hooks/verification"
	"github.com/goliatone/go-marketplace-hooks/webhooks"
)

// Builder holds chain configuration. It is a value: With returns an updated
// copy and built chains never observe later changes.
type Builder struct {
	storage  core.ExtensionStorage
	settings settings
}

func New(storage core.ExtensionStorage, extensionID string, opts ...Option) *Builder {
	b := &Builder{storage: storage, settings: defaultSettings()}
	b.settings.extensionID = strings.TrimSpace(extensionID)
	for _, opt := range opts {
		if opt != nil {
			opt(&b.settings)
		}
	}
	return b
}

func (b *Builder) With(opts ...Option) *Builder {
	next := &Builder{}
	if b != nil {
		next.storage = b.storage
		next.settings = b.settings.clone()
	} else {
		next.settings = defaultSettings()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&next.settings)
		}
	}
	return next
}

// BuildCombined returns one chain that persists every kind:
// prefix, tracing, metrics, logging, extension id check, verification,
// burst control, replay guard, combined persistence, suffix. Optional steps are left out
// when not configured.
func (b *Builder) BuildCombined() (*inbound.Chain, error) {
	base, err := b.buildBase()
	if err != nil {
		return nil, err
	}
	s := b.settings
	return base.WithAdditionalHandlers(webhooks.CombinedPersistence(b.storage, s.stepLogger())).
		WithAdditionalHandlers(s.suffix...), nil
}

// BuildSeparate returns one chain per kind. The shared prefix, and with it the
// verifier and key cache, is built once and forked four times.
func (b *Builder) BuildSeparate() (Chains, error) {
	base, err := b.buildBase()
	if err != nil {
		return nil, err
	}
	logger := b.settings.stepLogger()
	steps := map[events.Kind]*webhooks.PersistenceStep{
		events.KindExtensionAddedToContext:    webhooks.AddedToContextPersistence(b.storage, logger),
		events.KindInstanceUpdated:            webhooks.InstanceUpdatedPersistence(b.storage, logger),
		events.KindSecretRotated:              webhooks.SecretRotatedPersistence(b.storage, logger),
		events.KindInstanceRemovedFromContext: webhooks.InstanceRemovedPersistence(b.storage, logger),
	}
	chains := make(Chains, len(steps))
	for kind, step := range steps {
		handlers := append([]inbound.Handler{step}, b.settings.suffix...)
		chains[kind] = base.WithAdditionalHandlers(handlers...)
	}
	return chains, nil
}

func (b *Builder) buildBase() (*inbound.Chain, error) {
	if b == nil {
		return nil, core.NewBadInputError("pipeline: builder is nil", nil)
	}
	if b.storage == nil {
		return nil, core.NewBadInputError("pipeline: extension storage is required", nil)
	}
	s := b.settings
	if s.extensionID == "" {
		return nil, core.NewBadInputError("pipeline: extension id is required", nil)
	}
	logger := s.stepLogger()

	handlers := append([]inbound.Handler(nil), s.prefix...)
	if s.tracer != nil {
		handlers = append(handlers, webhooks.Tracing(s.tracer))
	}
	if s.metrics != nil {
		handlers = append(handlers, webhooks.Metrics(s.metrics))
	}
	if !s.loggingDisabled {
		handlers = append(handlers, webhooks.Logging(logger, s.logLevel))
	}
	handlers = append(handlers, webhooks.ExtensionIDCheck(s.extensionID, logger))
	if !s.verificationDisabled {
		verifier, err := s.resolveVerifier(logger)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, webhooks.Verifying(verifier, logger))
	}
	if s.burst != nil {
		handlers = append(handlers, webhooks.BurstControl(s.burst, logger))
	}
	if s.replayEnabled {
		claims := s.claims
		if claims == nil {
			claims = inbound.NewInMemoryClaimStore()
		}
		opts := s.replay
		if opts.Logger == nil {
			opts.Logger = logger
		}
		handlers = append(handlers, webhooks.ReplayGuard(claims, opts))
	}
	return inbound.NewChain(handlers...), nil
}

func (s settings) stepLogger() core.Logger {
	if s.loggingDisabled || s.logger == nil {
		return glog.Nop()
	}
	return s.logger
}

// resolveVerifier builds provider, then the optional Redis layer, then the
// in-process cache, then the verifier.
func (s settings) resolveVerifier(logger core.Logger) (webhooks.SignatureVerifier, error) {
	if s.verifier != nil {
		return s.verifier, nil
	}
	provider := s.keyProvider
	if provider == nil {
		provider = keys.NewAPIPublicKeyProvider(
			keys.WithBaseURL(s.keyServiceURL),
			keys.WithHTTPClient(s.httpClient),
			keys.WithTimeout(s.keyTimeout),
			keys.WithAPILogger(logger),
		)
	}
	if s.redis != nil {
		shared, err := keys.NewRedisPublicKeyProvider(provider, s.redis, logger)
		if err != nil {
			return nil, err
		}
		provider = shared
	}
	var (
		cached *keys.CachingPublicKeyProvider
		err    error
	)
	if s.keyCache != nil {
		cached, err = keys.NewCachingPublicKeyProvider(provider, s.keyCache)
	} else {
		cached, err = keys.NewInMemoryCachingPublicKeyProvider(provider, s.keyCacheTTL)
	}
	if err != nil {
		return nil, err
	}
	return verification.NewVerifier(cached, verification.WithLogger(logger)), nil
}

// Chains maps each kind to its chain.
type Chains map[events.Kind]*inbound.Chain

func (c Chains) For(kind events.Kind) (*inbound.Chain, bool) {
	chain, ok := c[kind]
	return chain, ok && chain != nil
}

// Dispatch reads the kind from the envelope and runs the matching chain. An
// undecodable body fails with INVALID_BODY before any chain runs.
func (c Chains) Dispatch(ctx context.Context, req core.WebhookRequest) error {
	envelope, err := events.DecodeEnvelope(req.RawBody)
	if err != nil {
		return err
	}
	chain, ok := c.For(envelope.Kind)
	if !ok {
		return core.NewInvalidBodyError(nil, "no chain for webhook kind "+string(envelope.Kind))
	}
	return chain.Dispatch(ctx, req)
}
