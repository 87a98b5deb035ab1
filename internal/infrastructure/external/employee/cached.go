package employee

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a resolved employee id is kept
const DefaultCacheTTL = 10 * time.Minute

// Cache is the key/value store behind the resolver
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache adapts a go-redis client to Cache
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps a redis client
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedResolver fronts a resolver with a cache and collapses concurrent identical lookups.
// Every failure is logged and reported as no match.
type CachedResolver struct {
	next   port.EmployeeResolver
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewCachedResolver creates a resolver. cache may be nil to disable caching.
func NewCachedResolver(next port.EmployeeResolver, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedResolver{next: next, cache: cache, ttl: ttl, logger: logger}
}

// CacheKey returns the cache key for a reference, preferring the national id
func CacheKey(cnic, personnelNo string) string {
	if cnic = strings.TrimSpace(cnic); cnic != "" {
		return "emp:cnic:" + cnic
	}
	return "emp:pn:" + strings.TrimSpace(personnelNo)
}

// Resolve returns the employee id or "" when nothing matched
func (r *CachedResolver) Resolve(ctx context.Context, cnic, personnelNo string) (string, error) {
	if strings.TrimSpace(cnic) == "" && strings.TrimSpace(personnelNo) == "" {
		return "", nil
	}
	key := CacheKey(cnic, personnelNo)

	if r.cache != nil {
		v, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Warn("Employee cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok && v != "" {
			return v, nil
		}
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		id, err := r.next.Resolve(ctx, cnic, personnelNo)
		if err != nil {
			return "", err
		}
		if id != "" && r.cache != nil {
			if err := r.cache.Set(ctx, key, id, r.ttl); err != nil {
				r.logger.Warn("Employee cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return id, nil
	})
	if err != nil {
		r.logger.Warn("Employee lookup failed",
			zap.String("code", "UpstreamError"),
			zap.String("key", key),
			zap.Error(err))
		return "", nil
	}
	return v.(string), nil
}

var _ port.EmployeeResolver = (*CachedResolver)(nil)
