package keys

import (
	"context"
	"errors"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	goredis "github.com/redis/go-redis/v9"

	"github.com/goliatone/go-marketplace-hooks/core"
)

const redisKeyPrefix = "hooks:public_key:v1:"

// RedisKey returns the Redis key a serial is stored under.
func RedisKey(serial string) string {
	return redisKeyPrefix + serial
}

// RedisClient is the subset of goredis.Cmdable the shared cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// RedisPublicKeyProvider shares resolved keys between replicas. Redis is an
// optimisation only: any Redis failure falls through to the delegate.
type RedisPublicKeyProvider struct {
	delegate PublicKeyProvider
	client   RedisClient
	logger   core.Logger
}

func NewRedisPublicKeyProvider(delegate PublicKeyProvider, client RedisClient, logger core.Logger) (*RedisPublicKeyProvider, error) {
	if delegate == nil {
		return nil, core.NewBadInputError("keys: delegate provider is required", nil)
	}
	if client == nil {
		return nil, core.NewBadInputError("keys: redis client is required", nil)
	}
	if logger == nil {
		logger = glog.Nop()
	}
	return &RedisPublicKeyProvider{delegate: delegate, client: client, logger: logger}, nil
}

func (p *RedisPublicKeyProvider) GetPublicKey(ctx context.Context, serial string) (string, error) {
	if p == nil || p.delegate == nil {
		return "", core.NewInternalError("keys: redis provider is not configured", nil)
	}
	key := RedisKey(serial)
	cached, err := p.client.Get(ctx, key).Result()
	switch {
	case err == nil && strings.TrimSpace(cached) != "":
		return cached, nil
	case err != nil && !errors.Is(err, goredis.Nil):
		core.LogAt(ctx, p.logger, core.LevelWarn, "public key redis read failed", map[string]any{
			"serial": serial,
			"error":  err.Error(),
		})
	}

	value, err := p.delegate.GetPublicKey(ctx, serial)
	if err != nil {
		return "", err
	}
	// Serials are append-only so the entry never expires.
	if err := p.client.Set(ctx, key, value, 0).Err(); err != nil {
		core.LogAt(ctx, p.logger, core.LevelWarn, "public key redis write failed", map[string]any{
			"serial": serial,
			"error":  err.Error(),
		})
	}
	return value, nil
}

var _ PublicKeyProvider = (*RedisPublicKeyProvider)(nil)
