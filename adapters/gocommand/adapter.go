package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	hookscommand "github.com/goliatone/go-marketplace-hooks/command"
	"github.com/goliatone/go-marketplace-hooks/core"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so persistence commands can also be executed by queue workers.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Subscriptions releases a group of dispatcher subscriptions together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterStorageCommands registers and subscribes the four extension storage
// commands against storage.
func RegisterStorageCommands(
	adapter *RegistryAdapter,
	storage core.ExtensionStorage,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if storage == nil {
		return nil, fmt.Errorf("gocommand: extension storage is required")
	}
	var subscriptions Subscriptions
	register := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			subscriptions.Unsubscribe()
			return err
		}
		subscriptions = append(subscriptions, subscription)
		return nil
	}
	if err := register(RegisterAndSubscribe[hookscommand.UpsertExtensionMessage](adapter, hookscommand.NewUpsertExtensionCommand(storage), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe[hookscommand.UpdateExtensionMessage](adapter, hookscommand.NewUpdateExtensionCommand(storage), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe[hookscommand.RotateSecretMessage](adapter, hookscommand.NewRotateSecretCommand(storage), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe[hookscommand.RemoveInstanceMessage](adapter, hookscommand.NewRemoveInstanceCommand(storage), runnerOpts...)); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// DispatchStorage is an ExtensionStorage that sends every operation through
// the go-command dispatcher. Pair it with RegisterStorageCommands.
type DispatchStorage struct{}

func (DispatchStorage) UpsertExtension(ctx context.Context, extension core.ExtensionToBeAdded) error {
	return dispatchValidated(ctx, hookscommand.UpsertExtensionMessage{Extension: extension})
}

func (DispatchStorage) UpdateExtension(ctx context.Context, extension core.ExtensionToBeUpdated) error {
	return dispatchValidated(ctx, hookscommand.UpdateExtensionMessage{Extension: extension})
}

func (DispatchStorage) RotateSecret(ctx context.Context, extensionInstanceID string, secret string) error {
	return dispatchValidated(ctx, hookscommand.RotateSecretMessage{ExtensionInstanceID: extensionInstanceID, Secret: secret})
}

func (DispatchStorage) RemoveInstance(ctx context.Context, extensionInstanceID string) error {
	return dispatchValidated(ctx, hookscommand.RemoveInstanceMessage{ExtensionInstanceID: extensionInstanceID})
}

func dispatchValidated[T command.Message](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return Dispatch(ctx, msg)
}

var _ core.ExtensionStorage = DispatchStorage{}
