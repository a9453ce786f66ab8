package playlistorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through cache in front of the order files. The files stay
// the source of truth; every write to them invalidates the cached entry.
//
// A fill is tied to the generation read before the file was: Invalidate
// bumps the generation, so a fill racing a Save is dropped instead of
// caching the order the Save replaced.
type Cache interface {
	Get(ctx context.Context, playlistID int64) ([]int64, bool, error)
	Generation(ctx context.Context, playlistID int64) (int64, error)
	Fill(ctx context.Context, playlistID, generation int64, songIDs []int64) (bool, error)
	Invalidate(ctx context.Context, playlistID int64) error
}

// RedisCache stores orders as JSON strings under tunecrate:playlist_order:{id}
// and their generation under tunecrate:playlist_order_gen:{id}
type RedisCache struct {
	client    redis.UniversalClient
	ttl       time.Duration
	prefix    string
	genPrefix string
}

// NewRedisCache creates a cache. A zero ttl keeps entries until invalidated.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client:    client,
		ttl:       ttl,
		prefix:    "tunecrate:playlist_order:",
		genPrefix: "tunecrate:playlist_order_gen:",
	}
}

func (c *RedisCache) key(playlistID int64) string {
	return fmt.Sprintf("%s%d", c.prefix, playlistID)
}

func (c *RedisCache) genKey(playlistID int64) string {
	return fmt.Sprintf("%s%d", c.genPrefix, playlistID)
}

// Get returns the cached order and whether there was an entry
func (c *RedisCache) Get(ctx context.Context, playlistID int64) ([]int64, bool, error) {
	raw, err := c.client.Get(ctx, c.key(playlistID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached order: %w", err)
	}

	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached order: %w", err)
	}
	return ids, true, nil
}

// Generation returns the current generation of an order, 0 if never invalidated
func (c *RedisCache) Generation(ctx context.Context, playlistID int64) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(playlistID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read order generation: %w", err)
	}
	return gen, nil
}

// Fill caches an order read at generation. It reports false, without error,
// when the order was invalidated since.
func (c *RedisCache) Fill(ctx context.Context, playlistID, generation int64, songIDs []int64) (bool, error) {
	raw, err := json.Marshal(songIDs)
	if err != nil {
		return false, fmt.Errorf("failed to encode order: %w", err)
	}

	genKey := c.genKey(playlistID)
	filled := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(playlistID), raw, c.ttl)
			return nil
		})
		if err == nil {
			filled = true
		}
		return err
	}, genKey)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to cache order: %w", err)
	}
	return filled, nil
}

// Invalidate drops the cached order and bumps its generation
func (c *RedisCache) Invalidate(ctx context.Context, playlistID int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey(playlistID))
		pipe.Del(ctx, c.key(playlistID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cached order: %w", err)
	}
	return nil
}
