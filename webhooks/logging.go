package webhooks

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/inbound"
)

type LoggingStep struct {
	logger core.Logger
	level  string
}

// Logging logs every request at level with the secret redacted. The request
// handed to next is the original one.
func Logging(logger core.Logger, level string) *LoggingStep {
	if logger == nil {
		logger = glog.Nop()
	}
	resolved, ok := core.ParseLogLevel(level)
	if !ok {
		resolved = core.LevelDebug
	}
	return &LoggingStep{logger: logger, level: resolved}
}

func (s *LoggingStep) HandleWebhook(ctx context.Context, req core.WebhookRequest, next inbound.Next) error {
	redacted := core.RedactWebhookRequest(req)
	core.LogAt(ctx, s.logger, s.level, "handling webhook", map[string]any{
		"raw_body":            redacted.RawBody,
		"signature_serial":    redacted.SignatureSerial,
		"signature_algorithm": redacted.SignatureAlgorithm,
		"signature":           redacted.Signature,
	})
	return next(ctx, req)
}
