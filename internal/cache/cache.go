package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pluto/internal/config"

	"github.com/go-redis/redis/v8"
)

// Cache stores JSON encodable values. Both backends encode on Set so a value
// read back always has the same shape regardless of backend.
type Cache interface {
	// Get decodes the cached value into dest and reports whether the key was found
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key prefixes
const (
	PrefixGeoCountries = "geo:countries:v1"
	PrefixPermission   = "permission:v1"
)

// GenerateKey creates a cache key from a prefix and a set of parameters
func GenerateKey(prefix string, params ...interface{}) string {
	parts := make([]string, len(params)+1)
	parts[0] = prefix

	for i, param := range params {
		parts[i+1] = fmt.Sprintf("%v", param)
	}

	return strings.Join(parts, ":")
}

// New selects the configured backend
func New(cfg config.CacheConfig) Cache {
	if cfg.Backend == config.CacheBackendRedis {
		return NewRedisCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	}
	return NewInMemoryCache()
}
