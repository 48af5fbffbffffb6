package webhooks

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/inbound"
)

type SignatureVerifier interface {
	Verify(ctx context.Context, req core.WebhookRequest) (bool, error)
}

type VerifyingStep struct {
	verifier SignatureVerifier
	logger   core.Logger
}

// Verifying stops the chain unless the request signature is valid. A
// signature mismatch becomes INVALID_SIGNATURE; verifier errors are returned
// unchanged.
func Verifying(verifier SignatureVerifier, logger core.Logger) *VerifyingStep {
	if logger == nil {
		logger = glog.Nop()
	}
	return &VerifyingStep{verifier: verifier, logger: logger}
}

func (s *VerifyingStep) HandleWebhook(ctx context.Context, req core.WebhookRequest, next inbound.Next) error {
	if s.verifier == nil {
		return core.NewInternalError("webhooks: verifying step has no verifier", nil)
	}
	ok, err := s.verifier.Verify(ctx, req)
	if err != nil {
		return err
	}
	if !ok {
		core.LogAt(ctx, s.logger, core.LevelWarn, "webhook signature rejected", map[string]any{
			"signature_serial":    req.SignatureSerial,
			"signature_algorithm": req.SignatureAlgorithm,
		})
		return core.NewInvalidSignatureError(req.SignatureSerial)
	}
	return next(ctx, req)
}
