package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-marketplace-hooks/core"
)

var (
	_ gocmd.Querier[GetExtensionMessage, core.ExtensionInstance]     = (*GetExtensionQuery)(nil)
	_ gocmd.Querier[ListExtensionsMessage, []core.ExtensionInstance] = (*ListExtensionsQuery)(nil)
)
