package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/resilience"
)

const scanBatch = 200

// Cache is the distributed lookup-cache tier. Every call goes through a
// single-attempt breaker so a failing Redis is skipped quickly.
type Cache struct {
	client    goredis.UniversalClient
	keyPrefix string
	executor  *resilience.Executor
}

type Config struct {
	URL         string
	KeyPrefix   string
	DialTimeout time.Duration
}

// Open parses a redis:// URL and returns the tier without contacting the
// server. The client dials lazily, so a Redis that is down at startup is used
// as soon as it comes back.
func Open(cfg Config, executor *resilience.Executor) (*Cache, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
		opts.ReadTimeout = cfg.DialTimeout
		opts.WriteTimeout = cfg.DialTimeout
	}
	return New(goredis.NewClient(opts), cfg.KeyPrefix, executor), nil
}

func New(client goredis.UniversalClient, keyPrefix string, executor *resilience.Executor) *Cache {
	return &Cache{
		client:    client,
		keyPrefix: keyPrefix,
		executor:  executor,
	}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.run(ctx, "redis.get", func(ctx context.Context) error {
		v, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.run(ctx, "redis.set", func(ctx context.Context) error {
		return c.client.Set(ctx, c.keyPrefix+key, value, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.keyPrefix+k)
	}
	err := c.run(ctx, "redis.delete", func(ctx context.Context) error {
		return c.client.Del(ctx, full...).Err()
	})
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix using SCAN so large
// keyspaces are never blocked by KEYS.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	pattern := escapeGlob(c.keyPrefix+prefix) + "*"
	removed := 0
	err := c.run(ctx, "redis.delete_prefix", func(ctx context.Context) error {
		var cursor uint64
		for {
			keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				n, err := c.client.Del(ctx, keys...).Result()
				if err != nil {
					return err
				}
				removed += int(n)
			}
			if next == 0 {
				return nil
			}
			cursor = next
		}
	})
	if err != nil {
		return removed, fmt.Errorf("redis delete prefix %q: %w", prefix, err)
	}
	return removed, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.ExecuteOnce(ctx, operation, fn, classifyRedisError)
}

func classifyRedisError(err error) resilience.ErrorClassification {
	if errors.Is(err, goredis.Nil) || errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
