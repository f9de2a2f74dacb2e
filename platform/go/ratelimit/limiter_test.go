package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func setupTestLimiter(t *testing.T, max int, window time.Duration) (*miniredis.Miniredis, *Limiter) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := New(client, Config{MaxAttempts: max, Window: window, Prefix: "login:"})
	require.NoError(t, err)
	return mr, l
}

func TestLimiterBlocksAfterMaxAttempts(t *testing.T) {
	_, l := setupTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Hit(ctx, "10.0.0.1|alice")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 2-i, d.Remaining)
	}

	d, err := l.Hit(ctx, "10.0.0.1|alice")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Greater(t, d.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, d.RetryAfter, time.Minute)

	// Other keys are unaffected.
	d, err = l.Hit(ctx, "10.0.0.1|bob")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestLimiterWindowExpires(t *testing.T) {
	mr, l := setupTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_, err := l.Hit(ctx, "k")
	require.NoError(t, err)
	d, err := l.Hit(ctx, "k")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	mr.FastForward(61 * time.Second)

	d, err = l.Hit(ctx, "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestLimiterReset(t *testing.T) {
	mr, l := setupTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_, err := l.Hit(ctx, "k")
	require.NoError(t, err)
	require.True(t, mr.Exists("login:k"))

	require.NoError(t, l.Reset(ctx, "k"))
	require.False(t, mr.Exists("login:k"))

	d, err := l.Hit(ctx, "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestLimiterCheckDoesNotRecord(t *testing.T) {
	mr, l := setupTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Check(ctx, "k")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 2, d.Remaining)
	}
	require.False(t, mr.Exists("login:k"))

	_, err := l.Hit(ctx, "k")
	require.NoError(t, err)
	d, err := l.Check(ctx, "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Remaining)

	_, err = l.Hit(ctx, "k")
	require.NoError(t, err)
	d, err = l.Check(ctx, "k")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	d, err := l.Hit(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = l.Check(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.NoError(t, l.Reset(context.Background(), "k"))
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{MaxAttempts: 1, Window: time.Second})
	require.Error(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	_, err = New(client, Config{Window: time.Second})
	require.Error(t, err)
	_, err = New(client, Config{MaxAttempts: 1})
	require.Error(t, err)
}
