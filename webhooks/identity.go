package webhooks

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/events"
	"github.com/goliatone/go-marketplace-hooks/inbound"
)

type ExtensionIDCheckStep struct {
	extensionID string
	logger      core.Logger
}

// ExtensionIDCheck rejects webhooks addressed to another extension. The body
// must decode as an envelope first, so malformed bodies fail with INVALID_BODY.
func ExtensionIDCheck(extensionID string, logger core.Logger) *ExtensionIDCheckStep {
	if logger == nil {
		logger = glog.Nop()
	}
	return &ExtensionIDCheckStep{extensionID: extensionID, logger: logger}
}

func (s *ExtensionIDCheckStep) HandleWebhook(ctx context.Context, req core.WebhookRequest, next inbound.Next) error {
	envelope, err := events.DecodeEnvelope(req.RawBody)
	if err == nil && envelope.Meta.ExtensionID != s.extensionID {
		err = core.NewInvalidExtensionIDError(envelope.Meta.ExtensionID)
	}
	if err != nil {
		core.LogAt(ctx, s.logger, core.LevelError, "failed to verify extension id", core.ErrorFields(err))
		return err
	}
	return next(ctx, req)
}
