package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	c, err := NewRedisClient(Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisClient_FloatRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, ok, err := c.GetFloat(ctx, "rates:EUR:BRL")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetFloat(ctx, "rates:EUR:BRL", 6.1234, 5*time.Minute))

	v, ok, err := c.GetFloat(ctx, "rates:EUR:BRL")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6.1234, v)

	mr.FastForward(6 * time.Minute)
	_, ok, err = c.GetFloat(ctx, "rates:EUR:BRL")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisClient_InvalidValue(t *testing.T) {
	c, mr := newTestClient(t)
	require.NoError(t, mr.Set("rates:EUR:BRL", "not-a-number"))

	_, _, err := c.GetFloat(context.Background(), "rates:EUR:BRL")
	assert.Error(t, err)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	_, err := NewRedisClient(Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Addr: "localhost:6379"}.Enabled())
}
