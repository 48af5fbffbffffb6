package hooks

import (
	"fmt"

	hookscommand "github.com/goliatone/go-marketplace-hooks/command"
	hooksquery "github.com/goliatone/go-marketplace-hooks/query"
)

type Commands struct {
	UpsertExtension *hookscommand.UpsertExtensionCommand
	UpdateExtension *hookscommand.UpdateExtensionCommand
	RotateSecret    *hookscommand.RotateSecretCommand
	RemoveInstance  *hookscommand.RemoveInstanceCommand
}

type Queries struct {
	GetExtension   *hooksquery.GetExtensionQuery
	ListExtensions *hooksquery.ListExtensionsQuery
}

// Facade exposes extension storage as go-command handlers for applications
// that drive it outside the webhook chain.
type Facade struct {
	storage  ExtensionStorage
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	reader hooksquery.ExtensionReader
}

func WithExtensionReader(reader hooksquery.ExtensionReader) FacadeOption {
	return func(options *facadeOptions) {
		options.reader = reader
	}
}

// NewFacade wires commands over storage. Queries read from the reader option,
// or from storage itself when it also implements query.ExtensionReader.
func NewFacade(storage ExtensionStorage, opts ...FacadeOption) (*Facade, error) {
	if storage == nil {
		return nil, fmt.Errorf("hooks: extension storage is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	reader := cfg.reader
	if reader == nil {
		if candidate, ok := storage.(hooksquery.ExtensionReader); ok {
			reader = candidate
		}
	}

	facade := &Facade{storage: storage}
	facade.commands = Commands{
		UpsertExtension: hookscommand.NewUpsertExtensionCommand(storage),
		UpdateExtension: hookscommand.NewUpdateExtensionCommand(storage),
		RotateSecret:    hookscommand.NewRotateSecretCommand(storage),
		RemoveInstance:  hookscommand.NewRemoveInstanceCommand(storage),
	}
	facade.queries = Queries{
		GetExtension:   hooksquery.NewGetExtensionQuery(reader),
		ListExtensions: hooksquery.NewListExtensionsQuery(reader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Storage() ExtensionStorage {
	if f == nil {
		return nil
	}
	return f.storage
}
