package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/redis/go-redis/v9"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/config"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
)

// Cache stores serialized statistics responses. Entries carry tags; when
// a constituency or election changes, invalidating its tag drops every
// derived entry regardless of query parameters.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error
	// InvalidateTag removes every entry carrying the tag and returns how
	// many were dropped.
	InvalidateTag(ctx context.Context, tag string) int
	Close() error
}

// CacheKey is deterministic in the query parameters so identical queries
// share an entry.
func CacheKey(constituencyID string, granularity domain.Granularity, from, to time.Time) string {
	return fmt.Sprintf("stats:%s:%s:%d:%d", constituencyID, granularity, from.UTC().Unix(), to.UTC().Unix())
}

func ConstituencyTag(constituencyID string) string {
	return "constituency:" + constituencyID
}

func ElectionTag(electionID string) string {
	return "election:" + electionID
}

// NewCache builds the backend named by configuration. Memory is the
// default; redis is for multi-instance deployments where invalidation
// has to reach every replica.
func NewCache(cfg config.Cache, log *logger.Logger) (Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(), nil
	case "redis":
		return NewRedisCache(cfg, log)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

type memoryEntry struct {
	value     []byte
	tags      []string
	expiresAt time.Time
}

// MemoryCache is a process-local tag-aware cache on a concurrent map.
// Expired entries are dropped lazily on read.
type MemoryCache struct {
	entries *xsync.Map[string, memoryEntry]
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: xsync.NewMap[string, memoryEntry]()}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	entry, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.entries.Delete(key)
		return nil, false
	}
	return entry.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	entry := memoryEntry{value: value, tags: tags}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.entries.Store(key, entry)
	return nil
}

func (c *MemoryCache) InvalidateTag(_ context.Context, tag string) int {
	dropped := 0
	c.entries.Range(func(key string, entry memoryEntry) bool {
		for _, t := range entry.tags {
			if t == tag {
				c.entries.Delete(key)
				dropped++
				break
			}
		}
		return true
	})
	return dropped
}

func (c *MemoryCache) Close() error {
	return nil
}

// RedisCache keys entries directly and tracks tag membership in sets so
// invalidation is two round trips regardless of entry count.
type RedisCache struct {
	client *redis.Client
	logger *logger.Logger
}

func NewRedisCache(cfg config.Cache, log *logger.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	log.Infow("Connected to redis cache", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return &RedisCache{client: client, logger: log}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warnw("Cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, tagKey(tag), key)
		if ttl > 0 {
			// Tag sets outlive their members slightly; stale members are
			// harmless because DEL on missing keys is a no-op.
			pipe.Expire(ctx, tagKey(tag), 2*ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) InvalidateTag(ctx context.Context, tag string) int {
	keys, err := c.client.SMembers(ctx, tagKey(tag)).Result()
	if err != nil {
		c.logger.Warnw("Tag lookup failed", "tag", tag, "error", err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	dropped, err := c.client.Del(ctx, append(keys, tagKey(tag))...).Result()
	if err != nil {
		c.logger.Warnw("Tag invalidation failed", "tag", tag, "error", err)
		return 0
	}
	if dropped > 0 {
		// Exclude the tag set itself from the count.
		dropped--
	}
	return int(dropped)
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func tagKey(tag string) string {
	return "tag:" + tag
}
