package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-assistant/internal/common/logger"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	_, client := setupMiniredis(t)
	l := New(client, 3, time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := l.Allow(ctx, "u1")
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d := l.Allow(ctx, "u1")
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestLimiter_CallersAreIndependent(t *testing.T) {
	_, client := setupMiniredis(t)
	l := New(client, 1, time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "u1").Allowed)
	assert.False(t, l.Allow(ctx, "u1").Allowed)
	assert.True(t, l.Allow(ctx, "u2").Allowed)
}

func TestLimiter_WindowExpires(t *testing.T) {
	mr, client := setupMiniredis(t)
	l := New(client, 1, 30*time.Second, logger.NewTestLogger(t))
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "u1").Allowed)
	assert.False(t, l.Allow(ctx, "u1").Allowed)

	mr.FastForward(31 * time.Second)

	assert.True(t, l.Allow(ctx, "u1").Allowed)
}

func TestLimiter_WindowIsNotExtendedByLaterRequests(t *testing.T) {
	mr, client := setupMiniredis(t)
	l := New(client, 10, 30*time.Second, logger.NewTestLogger(t))
	ctx := context.Background()

	l.Allow(ctx, "u1")
	mr.FastForward(20 * time.Second)
	l.Allow(ctx, "u1")

	assert.LessOrEqual(t, mr.TTL(keyPrefix+"u1"), 10*time.Second)
}

func TestLimiter_Reset(t *testing.T) {
	_, client := setupMiniredis(t)
	l := New(client, 1, time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	l.Allow(ctx, "u1")
	require.NoError(t, l.Reset(ctx, "u1"))
	assert.True(t, l.Allow(ctx, "u1").Allowed)
}

func TestLimiter_FailsOpenWhenRedisErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectIncr(keyPrefix + "u1").SetErr(errors.New("connection refused"))

	l := New(client, 1, time.Minute, logger.NewTestLogger(t))
	d := l.Allow(context.Background(), "u1")

	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimiter_FirstRequestStartsWindow(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectIncr(keyPrefix + "u1").SetVal(1)
	mock.ExpectExpire(keyPrefix+"u1", time.Minute).SetVal(true)

	l := New(client, 5, time.Minute, logger.NewTestLogger(t))
	d := l.Allow(context.Background(), "u1")

	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimiter_RepairsCounterWithoutExpiry(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectIncr(keyPrefix + "u1").SetVal(7)
	mock.ExpectTTL(keyPrefix + "u1").SetVal(-1)
	mock.ExpectExpire(keyPrefix+"u1", time.Minute).SetVal(true)

	l := New(client, 5, time.Minute, logger.NewTestLogger(t))
	d := l.Allow(context.Background(), "u1")

	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimiter_FailsOpenWhenRedisIsDown(t *testing.T) {
	mr, client := setupMiniredis(t)
	mr.Close()

	l := New(client, 1, time.Minute, logger.NewTestLogger(t))
	assert.True(t, l.Allow(context.Background(), "u1").Allowed)
	assert.True(t, l.Allow(context.Background(), "u1").Allowed)
}
