package keys

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-marketplace-hooks/core"
)

const publicKeyCacheKeyPrefix = "hooks::public_key::v1"

// PublicKeyCacheKey returns hooks::public_key::v1::<serial> with the serial
// URL-path escaped.
func PublicKeyCacheKey(serial string) string {
	return publicKeyCacheKeyPrefix + "::" + url.PathEscape(serial)
}

// CachingPublicKeyProvider serves keys from a go-repository-cache service and
// asks the delegate only on a miss. Concurrent misses for one serial share a
// single delegate call. Delegate errors are not cached.
type CachingPublicKeyProvider struct {
	delegate PublicKeyProvider
	cache    repositorycache.CacheService
	group    singleflight.Group
}

func NewCachingPublicKeyProvider(
	delegate PublicKeyProvider,
	cacheService repositorycache.CacheService,
) (*CachingPublicKeyProvider, error) {
	if delegate == nil {
		return nil, core.NewBadInputError("keys: delegate provider is required", nil)
	}
	if cacheService == nil {
		return nil, core.NewBadInputError("keys: cache service is required", nil)
	}
	return &CachingPublicKeyProvider{delegate: delegate, cache: cacheService}, nil
}

// NewInMemoryCachingPublicKeyProvider builds a caching provider over a fresh
// go-repository-cache service with the given TTL.
func NewInMemoryCachingPublicKeyProvider(delegate PublicKeyProvider, ttl time.Duration) (*CachingPublicKeyProvider, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("keys: create cache service: %w", err)
	}
	return NewCachingPublicKeyProvider(delegate, service)
}

func (p *CachingPublicKeyProvider) GetPublicKey(ctx context.Context, serial string) (string, error) {
	if p == nil || p.delegate == nil || p.cache == nil {
		return "", core.NewInternalError("keys: caching provider is not configured", nil)
	}
	cacheKey := PublicKeyCacheKey(serial)
	// The shared lookup outlives any one caller, so it runs without the
	// caller's cancellation and the delegate bounds it with its own timeout.
	flight := p.group.DoChan(cacheKey, func() (any, error) {
		return repositorycache.GetOrFetch(context.WithoutCancel(ctx), p.cache, cacheKey, func(ctx context.Context) (string, error) {
			key, err := p.delegate.GetPublicKey(ctx, serial)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(key) == "" {
				return "", core.NewFailedToFetchPublicKeyError(fmt.Errorf("keys: empty key"), serial, 0)
			}
			return key, nil
		})
	})
	select {
	case result := <-flight:
		if result.Err != nil {
			return "", result.Err
		}
		key, _ := result.Val.(string)
		return key, nil
	case <-ctx.Done():
		return "", core.NewFailedToFetchPublicKeyError(ctx.Err(), serial, 0)
	}
}

// Forget drops a cached serial. Keys are immutable per serial, so this only
// matters when the issuer revokes one.
func (p *CachingPublicKeyProvider) Forget(ctx context.Context, serial string) error {
	if p == nil || p.cache == nil {
		return nil
	}
	return p.cache.Delete(ctx, PublicKeyCacheKey(serial))
}

var _ PublicKeyProvider = (*CachingPublicKeyProvider)(nil)
