package webhooks

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/events"
	"github.com/goliatone/go-marketplace-hooks/inbound"
)

// PersistenceStep writes decoded events to ExtensionStorage before calling
// next. With kind set it accepts only that kind; otherwise any kind.
type PersistenceStep struct {
	storage core.ExtensionStorage
	logger  core.Logger
	kind    events.Kind
}

func CombinedPersistence(storage core.ExtensionStorage, logger core.Logger) *PersistenceStep {
	return newPersistence(storage, logger, "")
}

func AddedToContextPersistence(storage core.ExtensionStorage, logger core.Logger) *PersistenceStep {
	return newPersistence(storage, logger, events.KindExtensionAddedToContext)
}

func InstanceUpdatedPersistence(storage core.ExtensionStorage, logger core.Logger) *PersistenceStep {
	return newPersistence(storage, logger, events.KindInstanceUpdated)
}

func SecretRotatedPersistence(storage core.ExtensionStorage, logger core.Logger) *PersistenceStep {
	return newPersistence(storage, logger, events.KindSecretRotated)
}

func InstanceRemovedPersistence(storage core.ExtensionStorage, logger core.Logger) *PersistenceStep {
	return newPersistence(storage, logger, events.KindInstanceRemovedFromContext)
}

func newPersistence(storage core.ExtensionStorage, logger core.Logger, kind events.Kind) *PersistenceStep {
	if logger == nil {
		logger = glog.Nop()
	}
	return &PersistenceStep{storage: storage, logger: logger, kind: kind}
}

// Kind reports the kind this step is bound to, empty for the combined step.
func (s *PersistenceStep) Kind() events.Kind {
	return s.kind
}

func (s *PersistenceStep) HandleWebhook(ctx context.Context, req core.WebhookRequest, next inbound.Next) error {
	if s.storage == nil {
		return core.NewInternalError("webhooks: persistence step has no extension storage", nil)
	}
	event, err := s.decode(req.RawBody)
	if err != nil {
		core.LogAt(ctx, s.logger, core.LevelError, "failed to decode webhook body", core.ErrorFields(err))
		return err
	}
	if err := persistEvent(ctx, s.storage, event); err != nil {
		core.LogAt(ctx, s.logger, core.LevelError, "failed to persist extension", core.MergeFields(
			map[string]any{
				"kind":                  string(event.EventKind()),
				"extension_instance_id": event.InstanceID(),
			},
			core.ErrorFields(err),
		))
		return err
	}
	return next(ctx, req)
}

func (s *PersistenceStep) decode(body string) (events.Event, error) {
	switch s.kind {
	case events.KindExtensionAddedToContext:
		return events.DecodeKind[events.ExtensionAddedToContext](body, s.kind)
	case events.KindInstanceUpdated:
		return events.DecodeKind[events.InstanceUpdated](body, s.kind)
	case events.KindSecretRotated:
		return events.DecodeKind[events.SecretRotated](body, s.kind)
	case events.KindInstanceRemovedFromContext:
		return events.DecodeKind[events.InstanceRemovedFromContext](body, s.kind)
	default:
		return events.Decode(body)
	}
}

func persistEvent(ctx context.Context, storage core.ExtensionStorage, event events.Event) error {
	switch typed := event.(type) {
	case events.ExtensionAddedToContext:
		return storage.UpsertExtension(ctx, core.ExtensionToBeAdded{
			ExtensionInstanceID: typed.ID,
			ContextID:           typed.Context.ID,
			ContextKind:         typed.Context.Kind,
			ConsentedScopes:     cloneScopes(typed.ConsentedScopes),
			Secret:              typed.Secret,
			VariantKey:          typed.VariantKey,
		})
	case events.InstanceUpdated:
		return storage.UpdateExtension(ctx, core.ExtensionToBeUpdated{
			ExtensionInstanceID: typed.ID,
			ContextID:           typed.Context.ID,
			ContextKind:         typed.Context.Kind,
			ConsentedScopes:     cloneScopes(typed.ConsentedScopes),
			Enabled:             typed.State.Enabled,
			VariantKey:          typed.VariantKey,
		})
	case events.SecretRotated:
		return storage.RotateSecret(ctx, typed.ID, typed.Secret)
	case events.InstanceRemovedFromContext:
		return storage.RemoveInstance(ctx, typed.ID)
	default:
		return core.NewInvalidBodyError(nil, "unsupported webhook event")
	}
}

func cloneScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{}
	}
	return append([]string(nil), scopes...)
}
