package command

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-marketplace-hooks/core"
)

var (
	_ gocmd.Commander[UpsertExtensionMessage] = (*UpsertExtensionCommand)(nil)
	_ gocmd.Commander[UpdateExtensionMessage] = (*UpdateExtensionCommand)(nil)
	_ gocmd.Commander[RotateSecretMessage]    = (*RotateSecretCommand)(nil)
	_ gocmd.Commander[RemoveInstanceMessage]  = (*RemoveInstanceCommand)(nil)
	_ core.ExtensionStorage                   = (*Storage)(nil)
)
