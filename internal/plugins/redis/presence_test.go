package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustubh-k/Synk-App/internal/core/domain"
)

func newTestBackends(t *testing.T, ids ...string) (*miniredis.Miniredis, []*RedisPresenceBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	var out []*RedisPresenceBackend
	for _, id := range ids {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		out = append(out, NewRedisPresenceBackend(log, rdb, Options{
			InstanceID:  id,
			KeyPrefix:   "{test}",
			InstanceTTL: 10 * time.Second,
		}))
	}
	return mr, out
}

func TestPresence_AggregateTransitionsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	_, b := newTestBackends(t, "a", "b")

	first, err := b[0].AddOnline(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first, "first instance flips the user online")

	first, err = b[1].AddOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, first, "second instance must not announce again")

	again, err := b[0].AddOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, again, "repeat add from the same instance is a no-op")

	last, err := b[0].RemoveOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, last, "user still held by instance b")

	online, err := b[1].IsOnline(ctx, []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, online)

	last, err = b[1].RemoveOnline(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, last)

	last, err = b[1].RemoveOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, last, "remove of an absent user is a no-op")
}

func TestPresence_IsOnlinePreservesOrder(t *testing.T) {
	ctx := context.Background()
	_, b := newTestBackends(t, "a")

	_, err := b[0].AddOnline(ctx, "u2")
	require.NoError(t, err)

	got, err := b[0].IsOnline(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, got)

	got, err = b[0].IsOnline(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPresence_PublishSubscribe(t *testing.T) {
	_, b := newTestBackends(t, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []byte, 1)
	done := make(chan error, 1)
	go func() {
		done <- b[1].Subscribe(ctx, "bridge", func(p []byte) { got <- p })
	}()

	require.Eventually(t, func() bool {
		_ = b[0].Publish(ctx, "bridge", []byte("hello"))
		select {
		case p := <-got:
			return string(p) == "hello"
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
}

func TestPresence_ReapExpiredInstance(t *testing.T) {
	ctx := context.Background()
	mr, b := newTestBackends(t, "a", "b")

	require.NoError(t, b[0].Heartbeat(ctx))
	require.NoError(t, b[1].Heartbeat(ctx))
	_, err := b[0].AddOnline(ctx, "shared")
	require.NoError(t, err)
	_, err = b[1].AddOnline(ctx, "shared")
	require.NoError(t, err)
	_, err = b[1].AddOnline(ctx, "only-b")
	require.NoError(t, err)

	offline, err := b[0].ReapExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, offline, "live instances are not reaped")

	// b stops heartbeating.
	mr.FastForward(11 * time.Second)
	require.NoError(t, b[0].Heartbeat(ctx))

	offline, err = b[0].ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"only-b"}, offline)

	offline, err = b[0].ReapExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, offline, "an instance is reclaimed once")

	online, err := b[0].IsOnline(ctx, []string{"shared", "only-b"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, online)
}

func TestPresence_Release(t *testing.T) {
	ctx := context.Background()
	_, b := newTestBackends(t, "a", "b")

	require.NoError(t, b[0].Heartbeat(ctx))
	_, _ = b[0].AddOnline(ctx, "u1")
	_, _ = b[0].AddOnline(ctx, "u2")
	_, _ = b[1].AddOnline(ctx, "u2")

	offline, err := b[0].Release(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1"}, offline)

	online, err := b[1].IsOnline(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, online)
}

func TestPresence_UnavailableStore(t *testing.T) {
	ctx := context.Background()
	mr, b := newTestBackends(t, "a")
	mr.Close()

	_, err := b[0].AddOnline(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrBridgeUnavailable)

	err = b[0].Publish(ctx, "bridge", []byte("x"))
	assert.ErrorIs(t, err, domain.ErrBridgeUnavailable)
}

func TestPresence_InstanceUsers(t *testing.T) {
	ctx := context.Background()
	_, b := newTestBackends(t, "a", "b")

	_, _ = b[0].AddOnline(ctx, "u1")
	_, _ = b[0].AddOnline(ctx, "u2")
	_, _ = b[1].AddOnline(ctx, "u3")
	_, _ = b[0].RemoveOnline(ctx, "u2")

	got, err := b[0].InstanceUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, got)

	got, err = b[1].InstanceUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, got)
}
