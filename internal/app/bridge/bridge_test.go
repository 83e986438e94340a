package bridge

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustubh-k/Synk-App/internal/app/registry"
	"github.com/koustubh-k/Synk-App/internal/plugins/memory"
)

// bus is a shared in-process pub/sub standing in for the Redis channel.
// Publishers receive their own messages, like Redis subscribers do.
type bus struct {
	mu        sync.Mutex
	subs      []func([]byte)
	published int
}

func (b *bus) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *bus) publishes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published
}

// busBackend is one process's view of the bus.
type busBackend struct {
	*memory.PresenceBackend
	bus *bus
}

func (p *busBackend) Publish(_ context.Context, _ string, payload []byte) error {
	p.bus.mu.Lock()
	p.bus.published++
	subs := append([]func([]byte){}, p.bus.subs...)
	p.bus.mu.Unlock()
	for _, h := range subs {
		h(payload)
	}
	return nil
}

func (p *busBackend) Subscribe(ctx context.Context, _ string, handler func([]byte)) error {
	p.bus.mu.Lock()
	p.bus.subs = append(p.bus.subs, handler)
	p.bus.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (p *busBackend) Distributed() bool { return true }

type client struct {
	id, user string
	mu       sync.Mutex
	got      []string
}

func (c *client) ID() string     { return c.id }
func (c *client) UserID() string { return c.user }
func (c *client) Close()         {}
func (c *client) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	c.got = append(c.got, string(data))
	c.mu.Unlock()
	return nil
}

func (c *client) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

type process struct {
	registry *registry.Registry
	rooms    *registry.RoomHub
	bridge   *Bridge
}

func newProcess(t *testing.T, ctx context.Context, origin string, shared *bus) *process {
	t.Helper()
	p := &process{registry: registry.NewRegistry(), rooms: registry.NewRoomHub()}
	backend := &busBackend{PresenceBackend: memory.NewPresenceBackend(), bus: shared}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p.bridge = NewBridge(log, origin, "test", 16, backend, p.registry, p.rooms)
	go func() { _ = p.bridge.Run(ctx) }()
	return p
}

func TestBridge_RoomPublishReachesOtherProcessOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shared := &bus{}
	p1 := newProcess(t, ctx, "p1", shared)
	p2 := newProcess(t, ctx, "p2", shared)
	require.Eventually(t, func() bool { return shared.subscribers() == 2 }, time.Second, 5*time.Millisecond)

	a := &client{id: "a", user: "u1"}
	b := &client{id: "b", user: "u2"}
	p1.rooms.Join(a, "R")
	p2.rooms.Join(b, "R")

	p1.bridge.PublishRoom(ctx, "R", []byte("e1"), "")

	require.Eventually(t, func() bool { return len(b.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"e1"}, a.received(), "local subscriber gets it once, own echo skipped")
	assert.Equal(t, []string{"e1"}, b.received())

	// Give a would-be relay loop time to show up.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, shared.publishes(), "received events are not relayed again")
	assert.Equal(t, uint64(1), p2.bridge.Stats().Received)
	assert.Zero(t, p1.bridge.Stats().Received)
}

func TestBridge_BroadcastAllExcludesTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shared := &bus{}
	p1 := newProcess(t, ctx, "p1", shared)
	p2 := newProcess(t, ctx, "p2", shared)
	require.Eventually(t, func() bool { return shared.subscribers() == 2 }, time.Second, 5*time.Millisecond)

	trigger := &client{id: "t", user: "u1"}
	sibling := &client{id: "s", user: "u1"}
	remote := &client{id: "r", user: "u2"}
	p1.registry.Register("u1", trigger)
	p1.registry.Register("u1", sibling)
	p2.registry.Register("u2", remote)

	p1.bridge.BroadcastAll(ctx, []byte("online"), "t")

	require.Eventually(t, func() bool { return len(remote.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, trigger.received())
	assert.Equal(t, []string{"online"}, sibling.received())
}

func TestBridge_PerProcessOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shared := &bus{}
	p1 := newProcess(t, ctx, "p1", shared)
	p2 := newProcess(t, ctx, "p2", shared)
	require.Eventually(t, func() bool { return shared.subscribers() == 2 }, time.Second, 5*time.Millisecond)

	b := &client{id: "b", user: "u2"}
	p2.rooms.Join(b, "R")

	want := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	for _, e := range want {
		p1.bridge.PublishRoom(ctx, "R", []byte(e), "")
	}
	require.Eventually(t, func() bool { return len(b.received()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, b.received())
}

func TestBridge_SingleInstanceDoesNotRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := registry.NewRegistry()
	rooms := registry.NewRoomHub()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewBridge(log, "p1", "test", 1, memory.NewPresenceBackend(), reg, rooms)

	c := &client{id: "a", user: "u1"}
	rooms.Join(c, "R")
	b.PublishRoom(ctx, "R", []byte("e1"), "")
	b.PublishRoom(ctx, "R", []byte("e2"), "")
	assert.Equal(t, []string{"e1", "e2"}, c.received())
	assert.Zero(t, b.Stats().Dropped)
	assert.False(t, b.Stats().Distributed)

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}

func TestBridge_OutboxOverflowDrops(t *testing.T) {
	shared := &bus{}
	reg := registry.NewRegistry()
	rooms := registry.NewRoomHub()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := &busBackend{PresenceBackend: memory.NewPresenceBackend(), bus: shared}
	b := NewBridge(log, "p1", "test", 1, backend, reg, rooms)

	c := &client{id: "a", user: "u1"}
	rooms.Join(c, "R")
	// Run is not started, so nothing drains the outbox.
	b.PublishRoom(context.Background(), "R", []byte("e1"), "")
	b.PublishRoom(context.Background(), "R", []byte("e2"), "")

	assert.Equal(t, []string{"e1", "e2"}, c.received(), "local delivery never waits on the outbox")
	assert.Equal(t, uint64(1), b.Stats().Dropped)
}
