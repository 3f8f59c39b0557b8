package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Cache key namespaces
const (
	TemplateCachePrefix = "querygen:templates:"
	AICachePrefix       = "querygen:ai:"
	HTTPCachePrefix     = "querygen:http:"
)

// RedisStore is a cache.Store over a shared Redis. Expiry is left to Redis,
// so Sweep is a no-op.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	logger     *logrus.Logger
}

func NewRedisStore(client *redis.Client, prefix string, defaultTTL time.Duration, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *RedisStore) Sweep(context.Context) int { return 0 }

// Len counts keys under the store prefix.
func (s *RedisStore) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	count := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		s.logger.WithError(err).Warn("Failed to count cache keys")
	}
	return count
}

// Stats returns a subset of Redis INFO stats.
func (s *RedisStore) Stats(ctx context.Context) map[string]string {
	info := s.client.Info(ctx, "stats").Val()

	return map[string]string{
		"keyspace_hits":   extractStat(info, "keyspace_hits"),
		"keyspace_misses": extractStat(info, "keyspace_misses"),
	}
}

func extractStat(info, key string) string {
	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, key+":") {
			return strings.TrimPrefix(line, key+":")
		}
	}
	return "0"
}
