package sequence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"promoflow/pkg/rediskey"
)

func newTestGenerator(t *testing.T) (*RedisGenerator, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mr.SetTime(now)

	g := NewRedisGenerator(Params{Redis: rdb}).(*RedisGenerator)
	g.now = func() time.Time { return now }
	return g, mr
}

func TestNextOrderNo(t *testing.T) {
	g, mr := newTestGenerator(t)
	ctx := context.Background()

	pattern := regexp.MustCompile(`^ORD-250301-(\w{3})[A-Z2-9]{2}$`)

	first, err := g.NextOrderNo(ctx, "acct-1")
	require.NoError(t, err)
	require.Regexp(t, pattern, first)
	require.Equal(t, "001", pattern.FindStringSubmatch(first)[1])

	second, err := g.NextOrderNo(ctx, "acct-1")
	require.NoError(t, err)
	require.Equal(t, "002", pattern.FindStringSubmatch(second)[1])

	other, err := g.NextOrderNo(ctx, "acct-2")
	require.NoError(t, err)
	require.Equal(t, "001", pattern.FindStringSubmatch(other)[1])

	key := rediskey.BuildSequenceKey(orderPrefix, "acct-1", "250301")
	require.True(t, mr.Exists(key))
	require.Equal(t, 14*time.Hour, mr.TTL(key))
}
