package redis

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honestai/internal/config"
)

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	ctx := context.Background()

	assert.Error(t, c.Set(ctx, "k", "v", time.Second))
	_, err := c.Exists(ctx, "k")
	assert.Error(t, err)
	assert.NoError(t, c.Close())
	assert.Equal(t, "k", c.Key("k"))
}

func TestClientSetExistsAndExpiry(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	key := "probe:" + strconv.FormatInt(time.Now().UnixNano(), 10)

	ok, err := client.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Set(ctx, key, "alice", time.Second))
	ok, err = client.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	// the prefix is applied to the stored key
	assert.Equal(t, "honestai-test:"+key, client.Key(key))
	n, err := client.inner.Exists(ctx, "honestai-test:"+key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Eventually(t, func() bool {
		ok, err := client.Exists(ctx, key)
		return err == nil && !ok
	}, 3*time.Second, 100*time.Millisecond)
}

func TestNewRedisClientFailsWhenUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	_, err = NewRedisClient(config.RedisConfig{Host: "127.0.0.1", Port: port})
	assert.Error(t, err)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	client, err := NewRedisClient(config.RedisConfig{Host: host, Port: port, KeyPrefix: "honestai-test:"})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}
