// Package verification checks that a webhook was signed by the marketplace.
package verification

import (
	"context"
	"encoding/base64"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/keys"
)

type Verifier struct {
	provider keys.PublicKeyProvider
	registry Registry
	logger   core.Logger
}

type Option func(*Verifier)

func WithLogger(logger core.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithRegistry(registry Registry) Option {
	return func(v *Verifier) {
		v.registry = registry
	}
}

func NewVerifier(provider keys.PublicKeyProvider, opts ...Option) *Verifier {
	verifier := &Verifier{
		provider: provider,
		registry: DefaultRegistry(),
		logger:   glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier
}

// Verify reports whether req carries a valid signature over its raw body.
// Missing signature metadata, an unknown algorithm and key lookup failures
// are errors; a signature that does not match is (false, nil).
func (v *Verifier) Verify(ctx context.Context, req core.WebhookRequest) (bool, error) {
	if v == nil || v.provider == nil {
		return false, core.NewInternalError("verification: verifier has no public key provider", nil)
	}
	if err := v.checkRequest(ctx, req); err != nil {
		return false, err
	}

	strategy, ok := v.registry.Lookup(req.SignatureAlgorithm)
	if !ok {
		core.LogAt(ctx, v.logger, core.LevelError, "unknown signature algorithm", map[string]any{
			"signature_algorithm": req.SignatureAlgorithm,
		})
		return false, core.NewUnknownSignatureAlgorithmError(req.SignatureAlgorithm)
	}

	publicKey, err := v.provider.GetPublicKey(ctx, req.SignatureSerial)
	if err != nil {
		if core.TextCode(err) == "" {
			err = core.NewFailedToFetchPublicKeyError(err, req.SignatureSerial, 0)
		}
		core.LogAt(ctx, v.logger, core.LevelError, "failed to resolve public key", core.MergeFields(
			map[string]any{"signature_serial": req.SignatureSerial},
			core.ErrorFields(err),
		))
		return false, err
	}

	keyBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(publicKey))
	if err != nil {
		return false, core.NewInvalidPublicKeyError(err, req.SignatureSerial)
	}
	signature, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.Signature))
	if err != nil {
		core.LogAt(ctx, v.logger, core.LevelDebug, "signature is not valid base64", map[string]any{
			"signature_serial": req.SignatureSerial,
		})
		return false, nil
	}
	return strategy.Verify(signature, []byte(req.RawBody), keyBytes), nil
}

func (v *Verifier) checkRequest(ctx context.Context, req core.WebhookRequest) error {
	switch {
	case req.Signature == "":
		core.LogAt(ctx, v.logger, core.LevelError, "Missing signature in request", nil)
		return core.NewMissingSignatureError()
	case req.SignatureSerial == "":
		core.LogAt(ctx, v.logger, core.LevelError, "Missing signature serial in request", nil)
		return core.NewMissingSignatureSerialError()
	case req.SignatureAlgorithm == "":
		core.LogAt(ctx, v.logger, core.LevelError, "Missing signature algorithm in request", nil)
		return core.NewMissingSignatureAlgorithmError()
	case req.RawBody == "":
		core.LogAt(ctx, v.logger, core.LevelError, "Missing body in request", nil)
		return core.NewMissingBodyError()
	}
	return nil
}
