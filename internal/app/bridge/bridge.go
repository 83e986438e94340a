package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/koustubh-k/Synk-App/internal/core/contracts"
	"github.com/koustubh-k/Synk-App/internal/core/domain"
	"golang.org/x/sync/errgroup"
)

const (
	defaultOutboxSize = 1024
	resubscribeDelay  = time.Second
	maxResubscribe    = 30 * time.Second
)

// Bridge delivers every room publish and broadcast locally and relays it to
// the other processes over the backend's shared channel. Relaying is
// fire-and-forget through a bounded outbox drained by one publisher, so
// events from this process leave in the order they were published.
type Bridge struct {
	origin   string
	channel  string
	backend  contracts.PresenceBackend
	registry contracts.ConnectionRegistry
	rooms    contracts.RoomFanout
	outbox   chan []byte
	log      *slog.Logger

	relayed  atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

var _ contracts.Broadcaster = (*Bridge)(nil)

type Stats struct {
	Distributed bool   `json:"distributed"`
	Relayed     uint64 `json:"relayed"`
	Received    uint64 `json:"received"`
	Dropped     uint64 `json:"dropped"`
}

func NewBridge(
	log *slog.Logger,
	origin, channel string,
	outboxSize int,
	backend contracts.PresenceBackend,
	registry contracts.ConnectionRegistry,
	rooms contracts.RoomFanout,
) *Bridge {
	if outboxSize <= 0 {
		outboxSize = defaultOutboxSize
	}
	return &Bridge{
		log:      log,
		origin:   origin,
		channel:  channel,
		backend:  backend,
		registry: registry,
		rooms:    rooms,
		outbox:   make(chan []byte, outboxSize),
	}
}

func (b *Bridge) PublishRoom(ctx context.Context, roomID string, data []byte, exceptConnID string) {
	b.rooms.Publish(ctx, roomID, data, exceptConnID)
	b.relay(ctx, domain.Envelope{Kind: domain.EnvelopeRoom, RoomID: roomID, Frame: data})
}

func (b *Bridge) BroadcastAll(ctx context.Context, data []byte, exceptConnID string) {
	b.registry.Broadcast(ctx, data, exceptConnID)
	b.relay(ctx, domain.Envelope{Kind: domain.EnvelopeBroadcast, Frame: data})
}

func (b *Bridge) relay(ctx context.Context, env domain.Envelope) {
	if !b.backend.Distributed() {
		return
	}
	env.Origin = b.origin
	payload, err := json.Marshal(env)
	if err != nil {
		b.log.ErrorContext(ctx, "bridge - relay - encode failed", "kind", env.Kind, "room_id", env.RoomID, "err", err)
		return
	}
	select {
	case b.outbox <- payload:
	default:
		b.dropped.Add(1)
		b.log.WarnContext(ctx, "bridge - relay - outbox full, event dropped", "kind", env.Kind, "room_id", env.RoomID)
	}
}

// Run subscribes to the shared channel and drains the outbox until ctx is
// done. With a single-process backend it only parks.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.backend.Distributed() {
		b.log.Warn("bridge - run - no shared channel, scaling disabled: running as a single instance")
		<-ctx.Done()
		return nil
	}
	b.log.Info("bridge - run - relaying", "channel", b.channel, "origin", b.origin)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.subscribe(gCtx)
		return nil
	})
	g.Go(func() error {
		b.publish(gCtx)
		return nil
	})
	return g.Wait()
}

func (b *Bridge) subscribe(ctx context.Context) {
	delay := resubscribeDelay
	for {
		err := b.backend.Subscribe(ctx, b.channel, b.handle)
		if ctx.Err() != nil {
			return
		}
		b.log.Error("bridge - subscribe - channel lost, retrying", "channel", b.channel, "retry_in", delay, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxResubscribe)
	}
}

func (b *Bridge) publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-b.outbox:
			if err := b.backend.Publish(ctx, b.channel, payload); err != nil {
				b.log.Warn("bridge - publish - relay failed", "channel", b.channel, "err", err)
				continue
			}
			b.relayed.Add(1)
		}
	}
}

// handle delivers an envelope from another process to local connections
// only. Received events are never relayed again.
func (b *Bridge) handle(payload []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.log.Warn("bridge - handle - malformed envelope", "err", err)
		return
	}
	if env.Origin == b.origin {
		return
	}
	b.received.Add(1)
	ctx := context.Background()
	switch env.Kind {
	case domain.EnvelopeRoom:
		b.rooms.Publish(ctx, env.RoomID, env.Frame, "")
	case domain.EnvelopeBroadcast:
		b.registry.Broadcast(ctx, env.Frame, "")
	default:
		b.log.Warn("bridge - handle - unknown envelope kind", "kind", env.Kind, "origin", env.Origin)
	}
}

func (b *Bridge) Stats() Stats {
	return Stats{
		Distributed: b.backend.Distributed(),
		Relayed:     b.relayed.Load(),
		Received:    b.received.Load(),
		Dropped:     b.dropped.Load(),
	}
}
