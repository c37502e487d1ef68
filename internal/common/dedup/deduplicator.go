package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator tracks already-harvested target URLs in Redis so
// repeated runs can skip them
type Deduplicator struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
}

// NewDeduplicator creates a new Redis-based deduplicator
func NewDeduplicator(client *redis.Client, prefix string, defaultTTL time.Duration) *Deduplicator {
	if prefix == "" {
		prefix = "dedup"
	}
	if defaultTTL == 0 {
		defaultTTL = 24 * time.Hour * 30 // 30 days default
	}
	return &Deduplicator{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

// Seen reports whether a target URL has been harvested before
func (d *Deduplicator) Seen(ctx context.Context, url string) (bool, error) {
	exists, err := d.client.Exists(ctx, d.makeKey(url)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return exists > 0, nil
}

// MarkSeen marks a target URL as harvested with the default TTL
func (d *Deduplicator) MarkSeen(ctx context.Context, url string) error {
	err := d.client.Set(ctx, d.makeKey(url), time.Now().Unix(), d.defaultTTL).Err()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// MarkSeenWithTTL marks a target URL as harvested with a custom TTL
func (d *Deduplicator) MarkSeenWithTTL(ctx context.Context, url string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = d.defaultTTL
	}
	err := d.client.Set(ctx, d.makeKey(url), time.Now().Unix(), ttl).Err()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (d *Deduplicator) makeKey(url string) string {
	h := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s:%s", d.prefix, hex.EncodeToString(h[:16]))
}
