package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/inbound"
	hookmigrations "github.com/goliatone/go-marketplace-hooks/migrations"
	"github.com/goliatone/go-marketplace-hooks/security"
	"github.com/goliatone/go-marketplace-hooks/store/memory"
	sqlstore "github.com/goliatone/go-marketplace-hooks/store/sql"
)

// ExtensionBackend is what the daemon needs from storage: the chain writes
// and the read endpoints.
type ExtensionBackend interface {
	core.ExtensionStorage
	GetExtension(ctx context.Context, extensionInstanceID string) (core.ExtensionInstance, error)
	ListExtensions(ctx context.Context, contextID string) ([]core.ExtensionInstance, error)
}

type stores struct {
	extensions ExtensionBackend
	claims     inbound.ClaimStore
	close      func() error
}

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool { return false }
func (c persistenceConfig) GetDriver() string { return c.driver }
func (c persistenceConfig) GetServer() string { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string { return "hooksd" }

func openStores(ctx context.Context, cfg Config, secrets core.SecretProvider) (stores, error) {
	driver := cfg.storageDriver()
	if driver == StorageMemory {
		return stores{
			extensions: memory.NewExtensionStorage(),
			claims:     inbound.NewInMemoryClaimStore(),
			close:      func() error { return nil },
		}, nil
	}

	dialectName, err := hookmigrations.DialectForDriver(driver)
	if err != nil {
		return stores{}, err
	}
	var dialect schema.Dialect = pgdialect.New()
	if dialectName == hookmigrations.DialectSQLite {
		dialect = sqlitedialect.New()
	}

	sqlDB, err := sql.Open(driver, cfg.DatabaseURL)
	if err != nil {
		return stores{}, fmt.Errorf("hooksd: open %s: %w", driver, err)
	}
	if dialectName == hookmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{driver: driver, server: cfg.DatabaseURL}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return stores{}, fmt.Errorf("hooksd: persistence client: %w", err)
	}

	_, err = hookmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, hookmigrations.WithValidationTargets(dialectName))
	if err != nil {
		_ = client.Close()
		return stores{}, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return stores{}, fmt.Errorf("hooksd: migrate: %w", err)
	}

	var factoryOpts []sqlstore.FactoryOption
	if secrets != nil {
		factoryOpts = append(factoryOpts, sqlstore.WithFactorySecretProvider(secrets))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
	if err != nil {
		_ = client.Close()
		return stores{}, err
	}
	cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		_ = client.Close()
		return stores{}, fmt.Errorf("hooksd: extension cache: %w", err)
	}
	cached, err := sqlstore.NewCachedExtensionStore(factory.ExtensionStore(), cacheService)
	if err != nil {
		_ = client.Close()
		return stores{}, err
	}
	return stores{
		extensions: cached,
		claims:     factory.ClaimStore(),
		close:      client.Close,
	}, nil
}

// secretProvider builds the at-rest encryption for stored secrets. Without a
// key secrets are stored as received.
func secretProvider(cfg Config) (core.SecretProvider, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, nil
	}
	primary, err := keyProvider(key, cfg.SecretKeyID, cfg.SecretSalt)
	if err != nil {
		return nil, fmt.Errorf("hooksd: secret key: %w", err)
	}
	previous := make([]*security.AppKeySecretProvider, 0, len(cfg.PreviousSecretKeys))
	for id, material := range cfg.PreviousSecretKeys {
		provider, err := keyProvider(material, id, cfg.SecretSalt)
		if err != nil {
			return nil, fmt.Errorf("hooksd: previous secret key %s: %w", id, err)
		}
		previous = append(previous, provider)
	}
	ring, err := security.NewKeyRing(primary, previous...)
	if err != nil {
		return nil, err
	}
	return ring, nil
}

// keyProvider treats material as a master password stretched with scrypt
// when a salt is set, and as raw key material otherwise.
func keyProvider(material, keyID, salt string) (*security.AppKeySecretProvider, error) {
	if salt != "" {
		return security.NewPasswordSecretProvider(material, salt, security.WithKeyID(keyID))
	}
	return security.NewAppKeySecretProviderFromString(material, security.WithKeyID(keyID))
}
