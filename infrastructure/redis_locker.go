package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const drawLockExpiry = 10 * time.Second

// RedisLocker is a DrawLocker shared by every server instance
type RedisLocker struct {
	rs *redsync.Redsync
}

// NewRedisLocker creates a redsync-backed locker on client
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	pool := goredis.NewPool(client)
	return &RedisLocker{rs: redsync.New(pool)}
}

// Lock acquires key, retrying until ctx is done or redsync gives up
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(drawLockExpiry),
		redsync.WithTries(64),
		redsync.WithRetryDelay(25*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", key, err)
	}

	return func() {
		if ok, err := mutex.UnlockContext(context.Background()); err != nil || !ok {
			log.WithFields(log.Fields{
				"key":   key,
				"error": err,
			}).Warn("Failed to release draw lock, it will expire")
		}
	}, nil
}
