package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kuji/events"
	"kuji/models"
)

const boardCacheTTL = 5 * time.Minute

// BoardCache caches board lookups in Redis only, so every instance sees an invalidation
type BoardCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewBoardCache creates a board cache on client
func NewBoardCache(client redis.UniversalClient) *BoardCache {
	return &BoardCache{
		cache: cache.New(&cache.Options{
			Redis: client,
		}),
		ttl: boardCacheTTL,
	}
}

// DBKeyBoard is the cache key of a board
func DBKeyBoard(boardID uuid.UUID) string {
	return fmt.Sprintf("kuji:board:%s", boardID)
}

// Get returns the cached board or calls load and caches a non-nil result
func (c *BoardCache) Get(ctx context.Context, boardID uuid.UUID, load func() (*models.Board, error)) (*models.Board, error) {
	return useCache(ctx, c.cache, DBKeyBoard(boardID), c.ttl, load)
}

// Invalidate drops a cached board
func (c *BoardCache) Invalidate(ctx context.Context, boardID uuid.UUID) {
	if err := c.cache.Delete(ctx, DBKeyBoard(boardID)); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		log.WithFields(log.Fields{
			"board_id": boardID,
			"error":    err,
		}).Warn("Failed to invalidate cached board")
	}
}

// InvalidateOn drops cached boards whenever a board changes on any instance
func (c *BoardCache) InvalidateOn(bus *events.Bus) *events.Subscription {
	return bus.Subscribe(events.EventTypeBoardChanged, uuid.Nil, func(ctx context.Context, e events.Event) {
		c.Invalidate(ctx, e.Board())
	})
}

func useCache[T any](ctx context.Context, c *cache.Cache, key string, ttl time.Duration, callback func() (*T, error)) (*T, error) {
	var v T
	err := c.Get(ctx, key, &v)
	if err == nil {
		return &v, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.WithFields(log.Fields{
			"key":   key,
			"error": err,
		}).Warn("Cache read failed, falling back to store")
	}

	loaded, err := callback()
	if err != nil || loaded == nil {
		return loaded, err
	}

	// fire and forget
	//nolint:errcheck
	c.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: loaded,
		TTL:   ttl,
	})
	return loaded, nil
}
