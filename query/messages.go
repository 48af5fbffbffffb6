package query

import (
	"strings"
)

const (
	TypeGetExtension   = "hooks.query.extension.get"
	TypeListExtensions = "hooks.query.extension.list"
)

type GetExtensionMessage struct {
	ExtensionInstanceID string
}

func (GetExtensionMessage) Type() string { return TypeGetExtension }

func (m GetExtensionMessage) Validate() error {
	if strings.TrimSpace(m.ExtensionInstanceID) == "" {
		return queryValidationError("extension_instance_id", "extension instance id is required")
	}
	return nil
}

// ListExtensionsMessage lists instances, optionally narrowed to one context.
type ListExtensionsMessage struct {
	ContextID string
}

func (ListExtensionsMessage) Type() string { return TypeListExtensions }
