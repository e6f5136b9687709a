package redis

import (
	"commission-engine/internal/observability"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another worker owns the lock
var ErrLockHeld = errors.New("lock held by another worker")

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes a SET NX lock on key for at most ttl. The returned func releases
// it if the token still matches. A disabled client returns a no-op release.
func (c *Client) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if !c.IsEnabled() {
		return func(context.Context) error { return nil }, nil
	}

	token := uuid.NewString()
	acquired, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, c.client, []string{key}, token).Err(); err != nil {
			lockCtx := observability.WithFields(ctx, observability.Field{Key: "lock_key", Value: key})
			c.logger.Error(lockCtx, "failed to release lock", err)
			return err
		}
		return nil
	}, nil
}
