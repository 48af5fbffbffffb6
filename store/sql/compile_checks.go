package sqlstore

import (
	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/inbound"
	"github.com/goliatone/go-marketplace-hooks/query"
)

var (
	_ core.ExtensionStorage = (*ExtensionStore)(nil)
	_ query.ExtensionReader = (*ExtensionStore)(nil)
	_ inbound.ClaimStore    = (*ClaimStore)(nil)
	_ ExtensionBackend      = (*ExtensionStore)(nil)
)
