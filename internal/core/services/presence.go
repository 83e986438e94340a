package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/koustubh-k/Synk-App/internal/core/contracts"
	"github.com/koustubh-k/Synk-App/internal/core/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var presenceTracer = otel.Tracer("presence-service")

// PresenceService turns registry deltas into presence events. Every
// transition of one user is decided under that user's lock, so the registry
// mutation and the aggregate update are observed in order; the resulting
// frames are broadcast in the same order once the lock is released.
//
// A user whose aggregate update failed is kept in pending: events for it
// follow the local registry until the store confirms, and Reconcile repairs
// the store afterwards.
type PresenceService struct {
	registry contracts.ConnectionRegistry
	rooms    contracts.RoomFanout
	backend  contracts.PresenceBackend
	announce *announceQueue
	locks    keyedMutex
	log      *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]struct{}
}

func NewPresenceService(
	log *slog.Logger,
	registry contracts.ConnectionRegistry,
	rooms contracts.RoomFanout,
	backend contracts.PresenceBackend,
	broadcaster contracts.Broadcaster,
) *PresenceService {
	return &PresenceService{
		log:      log,
		registry: registry,
		rooms:    rooms,
		backend:  backend,
		announce: newAnnounceQueue(broadcaster),
		pending:  make(map[string]struct{}),
	}
}

// Connect registers c and announces "user online" when the user came online
// across all processes.
func (s *PresenceService) Connect(ctx context.Context, c contracts.Client) error {
	userID := c.UserID()
	ctx, span := presenceTracer.Start(ctx, "PresenceService.Connect", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("conn_id", c.ID()),
	))
	defer span.End()
	if userID == "" {
		span.RecordError(domain.ErrInvalidUserID)
		return domain.ErrInvalidUserID
	}

	unlock := s.locks.lock(userID)
	if !s.registry.Register(userID, c) {
		unlock()
		span.SetAttributes(attribute.Bool("transition", false))
		return nil
	}
	wasPending := s.isPending(userID)
	online, err := s.backend.AddOnline(ctx, userID)
	switch {
	case err != nil:
		// The local transition stands; Reconcile repairs the store.
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate add failed")
		s.log.WarnContext(ctx, "presence - connect - aggregate add failed", "user_id", userID, "conn_id", c.ID(), "err", err)
		s.setPending(userID, true)
		online = true
	case wasPending:
		// The last event for this user was "user offline".
		s.setPending(userID, false)
		online = true
	}
	drain := online && s.enqueue(ctx, domain.EventUserOnline, userID, c.ID())
	unlock()

	span.SetAttributes(attribute.Bool("transition", online))
	if !online {
		return nil
	}
	if drain {
		s.announce.drain(ctx, userID)
	}
	s.log.InfoContext(ctx, "presence - connect - user online", "user_id", userID, "conn_id", c.ID())
	return nil
}

// Disconnect drops every room subscription of c, unregisters it and
// announces "user offline" when it was the user's last connection anywhere.
func (s *PresenceService) Disconnect(ctx context.Context, c contracts.Client) {
	userID := c.UserID()
	ctx, span := presenceTracer.Start(ctx, "PresenceService.Disconnect", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("conn_id", c.ID()),
	))
	defer span.End()

	s.rooms.LeaveAll(c.ID())

	unlock := s.locks.lock(userID)
	if !s.registry.Unregister(userID, c.ID()) {
		unlock()
		span.SetAttributes(attribute.Bool("transition", false))
		return
	}
	wasPending := s.isPending(userID)
	offline, err := s.backend.RemoveOnline(ctx, userID)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate remove failed")
		s.log.WarnContext(ctx, "presence - disconnect - aggregate remove failed", "user_id", userID, "conn_id", c.ID(), "err", err)
		s.setPending(userID, true)
		offline = true
	case wasPending:
		// "user online" went out without the store; only the aggregate
		// knows whether another process still holds the user.
		s.setPending(userID, false)
		offline = offline || !s.onlineAnywhere(ctx, userID)
	}
	drain := offline && s.enqueue(ctx, domain.EventUserOffline, userID, c.ID())
	unlock()

	span.SetAttributes(attribute.Bool("transition", offline))
	if !offline {
		return
	}
	if drain {
		s.announce.drain(ctx, userID)
	}
	s.log.InfoContext(ctx, "presence - disconnect - user offline", "user_id", userID, "conn_id", c.ID())
}

// AnnounceOffline broadcasts "user offline" for users the aggregate set
// dropped on behalf of another process (reaped or released). Users that
// reconnected here in the meantime are skipped.
func (s *PresenceService) AnnounceOffline(ctx context.Context, userIDs []string) {
	for _, userID := range userIDs {
		unlock := s.locks.lock(userID)
		drain := !s.registry.IsOnline(userID) && s.enqueue(ctx, domain.EventUserOffline, userID, "")
		unlock()
		if drain {
			s.announce.drain(ctx, userID)
		}
	}
}

// Reconcile brings this process's share of the aggregate set back in line
// with the local registry. stored is what the store currently holds for this
// process. Users left pending by a failed update are repaired silently since
// their events already went out; drift found any other way (the store lost
// data, or this process was reaped while alive) is announced when it flips
// the aggregate.
func (s *PresenceService) Reconcile(ctx context.Context, stored []string) {
	ctx, span := presenceTracer.Start(ctx, "PresenceService.Reconcile")
	defer span.End()

	candidates := make(map[string]struct{})
	s.pendingMu.Lock()
	for id := range s.pending {
		candidates[id] = struct{}{}
	}
	s.pendingMu.Unlock()

	local := s.registry.OnlineUserIDs()
	inLocal := make(map[string]struct{}, len(local))
	for _, id := range local {
		inLocal[id] = struct{}{}
	}
	inStore := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		inStore[id] = struct{}{}
		if _, ok := inLocal[id]; !ok {
			candidates[id] = struct{}{}
		}
	}
	for _, id := range local {
		if _, ok := inStore[id]; !ok {
			candidates[id] = struct{}{}
		}
	}
	span.SetAttributes(attribute.Int("candidates", len(candidates)))

	repaired := 0
	for userID := range candidates {
		ok, err := s.reconcileUser(ctx, userID)
		if err != nil {
			span.RecordError(err)
			s.log.WarnContext(ctx, "presence - reconcile - aggregate update failed", "user_id", userID, "err", err)
			return
		}
		if ok {
			repaired++
		}
	}
	if repaired > 0 {
		s.log.InfoContext(ctx, "presence - reconcile - aggregate repaired", "users", repaired)
	}
}

func (s *PresenceService) reconcileUser(ctx context.Context, userID string) (bool, error) {
	unlock := s.locks.lock(userID)
	wasPending := s.isPending(userID)
	online := s.registry.IsOnline(userID)

	var (
		flipped bool
		err     error
		event   = domain.EventUserOffline
	)
	if online {
		event = domain.EventUserOnline
		flipped, err = s.backend.AddOnline(ctx, userID)
	} else {
		flipped, err = s.backend.RemoveOnline(ctx, userID)
	}
	if err != nil {
		s.setPending(userID, true)
		unlock()
		return false, err
	}
	s.setPending(userID, false)
	drain := flipped && !wasPending && s.enqueue(ctx, event, userID, "")
	unlock()

	if drain {
		s.announce.drain(ctx, userID)
	}
	return flipped || wasPending, nil
}

// CheckOnline answers for every id in input order. When the aggregate store
// is unreachable the local registry answers instead.
func (s *PresenceService) CheckOnline(ctx context.Context, userIDs []string) []domain.OnlineStatus {
	ctx, span := presenceTracer.Start(ctx, "PresenceService.CheckOnline", trace.WithAttributes(
		attribute.Int("user_count", len(userIDs)),
	))
	defer span.End()

	out := make([]domain.OnlineStatus, len(userIDs))
	online, err := s.backend.IsOnline(ctx, userIDs)
	if err != nil {
		span.RecordError(err)
		s.log.WarnContext(ctx, "presence - check online - aggregate lookup failed, answering locally", "err", err)
		for i, id := range userIDs {
			out[i].IsOnline = s.registry.IsOnline(id)
		}
		return out
	}
	for i := range out {
		out[i].IsOnline = online[i]
	}
	return out
}

// enqueue must run under the user's lock.
func (s *PresenceService) enqueue(ctx context.Context, event, userID, exceptConnID string) bool {
	frame, err := domain.EncodeFrame(event, domain.PresencePayload{UserID: userID})
	if err != nil {
		s.log.ErrorContext(ctx, "presence - announce - encode failed", "event", event, "user_id", userID, "err", err)
		return false
	}
	return s.announce.enqueue(userID, frame, exceptConnID)
}

func (s *PresenceService) onlineAnywhere(ctx context.Context, userID string) bool {
	online, err := s.backend.IsOnline(ctx, []string{userID})
	if err != nil || len(online) != 1 {
		return false
	}
	return online[0]
}

func (s *PresenceService) isPending(userID string) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	_, ok := s.pending[userID]
	return ok
}

func (s *PresenceService) setPending(userID string, pending bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if pending {
		s.pending[userID] = struct{}{}
	} else {
		delete(s.pending, userID)
	}
}
