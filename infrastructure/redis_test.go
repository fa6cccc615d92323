package infrastructure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"kuji/events"
	"kuji/models"
	"kuji/service"
)

func setupRedis(t *testing.T) *redis.Client {
	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
			Labels: map[string]string{
				"test":      "kuji-infrastructure",
				"test-name": t.Name(),
				"cleanup":   "auto",
			},
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisInfrastructure(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	t.Run("locker excludes concurrent holders", func(t *testing.T) {
		locker := NewRedisLocker(client)
		key := service.DrawLockKey(uuid.New())

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			inside  int
			maxSeen int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(ctx, key)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxSeen)
	})

	t.Run("board cache loads once until invalidated", func(t *testing.T) {
		cache := NewBoardCache(client)
		board := &models.Board{ID: uuid.New(), Title: "Board", OverlayToken: "secret", Status: models.BoardStatusLive}
		loads := 0
		load := func() (*models.Board, error) {
			loads++
			return board, nil
		}

		first, err := cache.Get(ctx, board.ID, load)
		require.NoError(t, err)
		second, err := cache.Get(ctx, board.ID, load)
		require.NoError(t, err)
		assert.Equal(t, 1, loads)
		assert.Equal(t, "secret", second.OverlayToken)
		assert.Equal(t, first.ID, second.ID)

		bus := events.NewBus()
		sub := cache.InvalidateOn(bus)
		defer bus.Unsubscribe(sub)
		bus.Emit(ctx, events.BoardChangedEvent{BoardID: board.ID})

		assert.Eventually(t, func() bool {
			_, err := cache.Get(ctx, board.ID, load)
			return err == nil && loads == 2
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("board cache does not store misses", func(t *testing.T) {
		cache := NewBoardCache(client)
		id := uuid.New()
		loads := 0
		load := func() (*models.Board, error) {
			loads++
			return nil, nil
		}

		got, err := cache.Get(ctx, id, load)
		require.NoError(t, err)
		assert.Nil(t, got)
		_, err = cache.Get(ctx, id, load)
		require.NoError(t, err)
		assert.Equal(t, 2, loads)
	})

	t.Run("rate limiter rejects bursts", func(t *testing.T) {
		limiter := NewDrawRateLimiter(client, 2)
		boardID := uuid.New()

		require.NoError(t, limiter.Allow(ctx, boardID))
		require.NoError(t, limiter.Allow(ctx, boardID))
		err := limiter.Allow(ctx, boardID)
		assert.True(t, service.IsValidation(err))

		assert.NoError(t, limiter.Allow(ctx, uuid.New()))
	})
}
