package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"kuji/service"
)

// DrawRateLimiter bounds draw submissions per board across instances
type DrawRateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewDrawRateLimiter allows perSecond draw submissions per board
func NewDrawRateLimiter(client redis.UniversalClient, perSecond int) *DrawRateLimiter {
	return &DrawRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.PerSecond(perSecond),
	}
}

// LimitKeyDraws is the rate limit key of a board's draw submissions
func LimitKeyDraws(boardID uuid.UUID) string {
	return fmt.Sprintf("kuji:limit:draws:%s", boardID)
}

// Allow returns a ValidationError once the board exceeds its rate
func (l *DrawRateLimiter) Allow(ctx context.Context, boardID uuid.UUID) error {
	res, err := l.limiter.Allow(ctx, LimitKeyDraws(boardID), l.limit)
	if err != nil {
		return service.NewStoreError(err, "check draw rate limit")
	}
	if res.Allowed == 0 {
		return service.NewValidationError("Draws are coming in too fast, retry in %s", res.RetryAfter.Round(100*time.Millisecond))
	}
	return nil
}
