package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-marketplace-hooks/core"
)

const extensionCacheKeyPrefix = "go-marketplace-hooks::extension_instance::v1"

// ExtensionBackend is the store a CachedExtensionStore reads through to.
type ExtensionBackend interface {
	core.ExtensionStorage
	GetExtension(ctx context.Context, extensionInstanceID string) (core.ExtensionInstance, error)
	ListExtensions(ctx context.Context, contextID string) ([]core.ExtensionInstance, error)
}

// CachedExtensionStore caches single-instance reads. Every write drops the
// cached entry for the instance it touched.
type CachedExtensionStore struct {
	base  ExtensionBackend
	cache repositorycache.CacheService
}

func NewCachedExtensionStore(base ExtensionBackend, cacheService repositorycache.CacheService) (*CachedExtensionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base extension store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: extension cache service is required")
	}
	return &CachedExtensionStore{base: base, cache: cacheService}, nil
}

// ExtensionCacheKey returns
// go-marketplace-hooks::extension_instance::v1::<escaped id>.
func ExtensionCacheKey(extensionInstanceID string) (string, error) {
	id := strings.TrimSpace(extensionInstanceID)
	if id == "" {
		return "", core.NewBadInputError("sqlstore: extension instance id is required", nil)
	}
	return extensionCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedExtensionStore) GetExtension(ctx context.Context, extensionInstanceID string) (core.ExtensionInstance, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ExtensionInstance{}, fmt.Errorf("sqlstore: cached extension store is not configured")
	}
	key, err := ExtensionCacheKey(extensionInstanceID)
	if err != nil {
		return core.ExtensionInstance{}, err
	}
	instance, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (core.ExtensionInstance, error) {
		return s.base.GetExtension(ctx, strings.TrimSpace(extensionInstanceID))
	})
	if err != nil {
		return core.ExtensionInstance{}, err
	}
	instance.ConsentedScopes = scopesOrEmpty(instance.ConsentedScopes)
	return instance, nil
}

// ListExtensions is not cached.
func (s *CachedExtensionStore) ListExtensions(ctx context.Context, contextID string) ([]core.ExtensionInstance, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached extension store is not configured")
	}
	return s.base.ListExtensions(ctx, contextID)
}

func (s *CachedExtensionStore) UpsertExtension(ctx context.Context, extension core.ExtensionToBeAdded) error {
	return s.write(ctx, extension.ExtensionInstanceID, func() error {
		return s.base.UpsertExtension(ctx, extension)
	})
}

func (s *CachedExtensionStore) UpdateExtension(ctx context.Context, extension core.ExtensionToBeUpdated) error {
	return s.write(ctx, extension.ExtensionInstanceID, func() error {
		return s.base.UpdateExtension(ctx, extension)
	})
}

func (s *CachedExtensionStore) RotateSecret(ctx context.Context, extensionInstanceID string, secret string) error {
	return s.write(ctx, extensionInstanceID, func() error {
		return s.base.RotateSecret(ctx, extensionInstanceID, secret)
	})
}

func (s *CachedExtensionStore) RemoveInstance(ctx context.Context, extensionInstanceID string) error {
	return s.write(ctx, extensionInstanceID, func() error {
		return s.base.RemoveInstance(ctx, extensionInstanceID)
	})
}

func (s *CachedExtensionStore) write(ctx context.Context, extensionInstanceID string, apply func() error) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached extension store is not configured")
	}
	if err := apply(); err != nil {
		return err
	}
	key, err := ExtensionCacheKey(extensionInstanceID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, key)
}

var _ ExtensionBackend = (*CachedExtensionStore)(nil)
