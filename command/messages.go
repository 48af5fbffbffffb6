package command

import (
	"strings"

	"github.com/goliatone/go-marketplace-hooks/core"
)

const (
	TypeUpsertExtension = "hooks.command.extension.upsert"
	TypeUpdateExtension = "hooks.command.extension.update"
	TypeRotateSecret    = "hooks.command.extension.rotate_secret"
	TypeRemoveInstance  = "hooks.command.extension.remove"
)

type UpsertExtensionMessage struct {
	Extension core.ExtensionToBeAdded
}

func (UpsertExtensionMessage) Type() string { return TypeUpsertExtension }

func (m UpsertExtensionMessage) Validate() error {
	if err := validateInstanceID(m.Extension.ExtensionInstanceID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Extension.ContextID) == "" {
		return commandValidationError("context_id", "context id is required")
	}
	if strings.TrimSpace(m.Extension.Secret) == "" {
		return commandValidationError("secret", "secret is required")
	}
	return nil
}

type UpdateExtensionMessage struct {
	Extension core.ExtensionToBeUpdated
}

func (UpdateExtensionMessage) Type() string { return TypeUpdateExtension }

func (m UpdateExtensionMessage) Validate() error {
	return validateInstanceID(m.Extension.ExtensionInstanceID)
}

type RotateSecretMessage struct {
	ExtensionInstanceID string
	Secret              string
}

func (RotateSecretMessage) Type() string { return TypeRotateSecret }

func (m RotateSecretMessage) Validate() error {
	if err := validateInstanceID(m.ExtensionInstanceID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Secret) == "" {
		return commandValidationError("secret", "secret is required")
	}
	return nil
}

type RemoveInstanceMessage struct {
	ExtensionInstanceID string
}

func (RemoveInstanceMessage) Type() string { return TypeRemoveInstance }

func (m RemoveInstanceMessage) Validate() error {
	return validateInstanceID(m.ExtensionInstanceID)
}

func validateInstanceID(id string) error {
	if strings.TrimSpace(id) == "" {
		return commandValidationError("extension_instance_id", "extension instance id is required")
	}
	return nil
}
