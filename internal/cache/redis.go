//go:build enterprise
// +build enterprise

// Package cache provides an optional distributed front-cache for the
// journal's dedup indices, for deployments running multiple driver
// processes against one source prefix. The journal remains the single
// source of truth; this cache only shortcuts the common case where
// another process has already seen a fingerprint.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig configures the optional fingerprint cache.
type RedisConfig struct {
	Enabled               bool
	Addr                  string
	Password              string
	DB                    int
	TLSInsecureSkipVerify bool
}

// RedisFingerprintCache fronts the journal's IsUploaded and
// CheckEmbeddingExists checks with a shared Redis set, so that multiple
// driver processes avoid redundant embed calls before the slower Qdrant
// scroll fallback is consulted. A nil *RedisFingerprintCache (the
// disabled case) behaves as an always-miss cache.
type RedisFingerprintCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisFingerprintCache builds a cache when enabled. Returns nil, nil
// when disabled so callers can pass it through unconditionally.
func NewRedisFingerprintCache(cfg RedisConfig, ttl time.Duration) (*RedisFingerprintCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis fingerprint cache ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisFingerprintCache{client: client, ttl: ttl}, nil
}

func uploadedKey(fingerprint string) string {
	return fmt.Sprintf("ingest:uploaded:%s", fingerprint)
}

func embeddingKey(fingerprint, collection string) string {
	return fmt.Sprintf("ingest:embedded:%s:%s", collection, fingerprint)
}

// IsUploaded reports a cache hit for a prior vector-upload. A miss does
// not imply the fingerprint is new; callers must still consult the
// journal/vector store.
func (c *RedisFingerprintCache) IsUploaded(ctx context.Context, fingerprint string) bool {
	if c == nil || c.client == nil {
		return false
	}
	n, err := c.client.Exists(ctx, uploadedKey(fingerprint)).Result()
	if err != nil {
		log.Debug().Err(err).Str("fingerprint", fingerprint).Msg("cache_is_uploaded_error")
		return false
	}
	return n > 0
}

// MarkUploaded records that fingerprint has been uploaded.
func (c *RedisFingerprintCache) MarkUploaded(ctx context.Context, fingerprint string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, uploadedKey(fingerprint), "1", c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("fingerprint", fingerprint).Msg("cache_mark_uploaded_error")
	}
}

// CheckEmbeddingExists reports a cache hit for a prior embedding call
// against (fingerprint, collection).
func (c *RedisFingerprintCache) CheckEmbeddingExists(ctx context.Context, fingerprint, collection string) bool {
	if c == nil || c.client == nil {
		return false
	}
	n, err := c.client.Exists(ctx, embeddingKey(fingerprint, collection)).Result()
	if err != nil {
		log.Debug().Err(err).Str("fingerprint", fingerprint).Msg("cache_check_embedding_error")
		return false
	}
	return n > 0
}

// MarkEmbedded records that (fingerprint, collection) has been embedded.
func (c *RedisFingerprintCache) MarkEmbedded(ctx context.Context, fingerprint, collection string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, embeddingKey(fingerprint, collection), "1", c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("fingerprint", fingerprint).Msg("cache_mark_embedded_error")
	}
}

// Close releases the underlying Redis connection.
func (c *RedisFingerprintCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
