package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClient(t *testing.T) {
	var c *Client
	assert.False(t, c.IsEnabled())
	assert.NoError(t, c.Close())

	release, err := c.Lock(context.Background(), "lock:ranked-pool:2026-05-10", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))

	_, err = c.ZIncrBy(context.Background(), "ranked-pool:2026-05-10", 1, "a")
	assert.Error(t, err)
}
