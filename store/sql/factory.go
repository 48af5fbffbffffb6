package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-marketplace-hooks/core"
)

// RepositoryFactory builds the bun-backed stores over one database handle.
type RepositoryFactory struct {
	db             *bun.DB
	secretProvider core.SecretProvider

	extensionStore *ExtensionStore
	claimStore     *ClaimStore
}

type FactoryOption func(*RepositoryFactory)

// WithFactorySecretProvider encrypts extension secrets at rest.
func WithFactorySecretProvider(provider core.SecretProvider) FactoryOption {
	return func(f *RepositoryFactory) {
		f.secretProvider = provider
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores accepts a *bun.DB or anything exposing DB() *bun.DB.
func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.extensionStore != nil && f.claimStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) ExtensionStore() *ExtensionStore {
	if f == nil {
		return nil
	}
	return f.extensionStore
}

func (f *RepositoryFactory) ClaimStore() *ClaimStore {
	if f == nil {
		return nil
	}
	return f.claimStore
}

func (f *RepositoryFactory) initStores() error {
	extensionStore, err := NewExtensionStore(f.db, WithSecretProvider(f.secretProvider))
	if err != nil {
		return err
	}
	f.extensionStore = extensionStore
	claimStore, err := NewClaimStore(f.db)
	if err != nil {
		return err
	}
	f.claimStore = claimStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
