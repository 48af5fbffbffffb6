package command

import (
	"context"

	"github.com/goliatone/go-marketplace-hooks/core"
)

type UpsertExtensionCommand struct {
	storage core.ExtensionStorage
}

func NewUpsertExtensionCommand(storage core.ExtensionStorage) *UpsertExtensionCommand {
	return &UpsertExtensionCommand{storage: storage}
}

func (c *UpsertExtensionCommand) Execute(ctx context.Context, msg UpsertExtensionMessage) error {
	if c == nil || c.storage == nil {
		return commandDependencyError("command: extension storage is required")
	}
	return c.storage.UpsertExtension(ctx, msg.Extension)
}

type UpdateExtensionCommand struct {
	storage core.ExtensionStorage
}

func NewUpdateExtensionCommand(storage core.ExtensionStorage) *UpdateExtensionCommand {
	return &UpdateExtensionCommand{storage: storage}
}

func (c *UpdateExtensionCommand) Execute(ctx context.Context, msg UpdateExtensionMessage) error {
	if c == nil || c.storage == nil {
		return commandDependencyError("command: extension storage is required")
	}
	return c.storage.UpdateExtension(ctx, msg.Extension)
}

type RotateSecretCommand struct {
	storage core.ExtensionStorage
}

func NewRotateSecretCommand(storage core.ExtensionStorage) *RotateSecretCommand {
	return &RotateSecretCommand{storage: storage}
}

func (c *RotateSecretCommand) Execute(ctx context.Context, msg RotateSecretMessage) error {
	if c == nil || c.storage == nil {
		return commandDependencyError("command: extension storage is required")
	}
	return c.storage.RotateSecret(ctx, msg.ExtensionInstanceID, msg.Secret)
}

type RemoveInstanceCommand struct {
	storage core.ExtensionStorage
}

func NewRemoveInstanceCommand(storage core.ExtensionStorage) *RemoveInstanceCommand {
	return &RemoveInstanceCommand{storage: storage}
}

func (c *RemoveInstanceCommand) Execute(ctx context.Context, msg RemoveInstanceMessage) error {
	if c == nil || c.storage == nil {
		return commandDependencyError("command: extension storage is required")
	}
	return c.storage.RemoveInstance(ctx, msg.ExtensionInstanceID)
}

// Storage is an ExtensionStorage that validates every operation as a command
// message before executing it against the wrapped storage.
type Storage struct {
	upsert *UpsertExtensionCommand
	update *UpdateExtensionCommand
	rotate *RotateSecretCommand
	remove *RemoveInstanceCommand
}

func NewStorage(storage core.ExtensionStorage) *Storage {
	return &Storage{
		upsert: NewUpsertExtensionCommand(storage),
		update: NewUpdateExtensionCommand(storage),
		rotate: NewRotateSecretCommand(storage),
		remove: NewRemoveInstanceCommand(storage),
	}
}

func (s *Storage) UpsertExtension(ctx context.Context, extension core.ExtensionToBeAdded) error {
	msg := UpsertExtensionMessage{Extension: extension}
	if err := msg.Validate(); err != nil {
		return err
	}
	return s.upsert.Execute(ctx, msg)
}

func (s *Storage) UpdateExtension(ctx context.Context, extension core.ExtensionToBeUpdated) error {
	msg := UpdateExtensionMessage{Extension: extension}
	if err := msg.Validate(); err != nil {
		return err
	}
	return s.update.Execute(ctx, msg)
}

func (s *Storage) RotateSecret(ctx context.Context, extensionInstanceID string, secret string) error {
	msg := RotateSecretMessage{ExtensionInstanceID: extensionInstanceID, Secret: secret}
	if err := msg.Validate(); err != nil {
		return err
	}
	return s.rotate.Execute(ctx, msg)
}

func (s *Storage) RemoveInstance(ctx context.Context, extensionInstanceID string) error {
	msg := RemoveInstanceMessage{ExtensionInstanceID: extensionInstanceID}
	if err := msg.Validate(); err != nil {
		return err
	}
	return s.remove.Execute(ctx, msg)
}
