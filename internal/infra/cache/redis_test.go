package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), srv
}

func TestOnceRunsOnlyOnce(t *testing.T) {
	c, _ := newTestCache(t)
	calls := 0
	fn := func() error { calls++; return nil }

	ran, err := c.Once("capture:1", time.Hour, fn)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = c.Once("capture:1", time.Hour, fn)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, calls)
}

func TestOnceReleasesKeyOnError(t *testing.T) {
	c, srv := newTestCache(t)
	boom := errors.New("boom")

	ran, err := c.Once("capture:2", time.Hour, func() error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
	assert.False(t, srv.Exists("capture:2"))

	ran, err = c.Once("capture:2", time.Hour, func() error { return nil })
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestOnceKeyExpires(t *testing.T) {
	c, srv := newTestCache(t)
	_, err := c.Once("capture:3", time.Minute, func() error { return nil })
	require.NoError(t, err)

	srv.FastForward(2 * time.Minute)

	ran, err := c.Once("capture:3", time.Minute, func() error { return nil })
	require.NoError(t, err)
	assert.True(t, ran)
}
