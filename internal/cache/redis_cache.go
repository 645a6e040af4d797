package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"infopos/backend/internal/domain"
)

const manifestVersionKey = "sync:manifest:version"

// RedisManifestCache keys entries by a version counter so that one INCR invalidates
// all stores without scanning keys. Old versions expire through their TTL.
type RedisManifestCache struct {
	client *redis.Client
}

func NewRedisManifestCache(addr string, password string, db int) *RedisManifestCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisManifestCache{client: client}
}

func (c *RedisManifestCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisManifestCache) Close() error {
	return c.client.Close()
}

func (c *RedisManifestCache) version(ctx context.Context) (Version, error) {
	ver, err := c.client.Get(ctx, manifestVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return Version(ver), err
}

func manifestKey(ver Version, storeID *int64) string {
	scope := "all"
	if storeID != nil {
		scope = strconv.FormatInt(*storeID, 10)
	}
	return fmt.Sprintf("sync:manifest:v%d:%s", ver, scope)
}

func (c *RedisManifestCache) Get(ctx context.Context, storeID *int64) (*domain.Manifest, Version, bool, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return nil, 0, false, err
	}
	val, err := c.client.Get(ctx, manifestKey(ver, storeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ver, false, nil
	}
	if err != nil {
		return nil, ver, false, err
	}

	var m domain.Manifest
	if err := json.Unmarshal(val, &m); err != nil {
		return nil, ver, false, err
	}
	return &m, ver, true, nil
}

// Set writes value under version. A version older than the current one is never read again
// and expires through ttl.
func (c *RedisManifestCache) Set(ctx context.Context, storeID *int64, version Version, value *domain.Manifest, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, manifestKey(version, storeID), payload, ttl).Err()
}

func (c *RedisManifestCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, manifestVersionKey).Err()
}
