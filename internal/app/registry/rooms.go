package registry

import (
	"context"
	"sync"

	"github.com/koustubh-k/Synk-App/internal/core/contracts"
)

type room struct {
	mu   sync.RWMutex
	subs map[string]contracts.Client // conn_id → client
}

// RoomHub is the per-process room subscription table. The hub lock guards
// the room map and the per-connection membership index; each room has its
// own lock for its subscriber set.
type RoomHub struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	joined map[string]map[string]struct{} // conn_id → room ids
}

var _ contracts.RoomFanout = (*RoomHub)(nil)

func NewRoomHub() *RoomHub {
	return &RoomHub{
		rooms:  make(map[string]*room),
		joined: make(map[string]map[string]struct{}),
	}
}

func (h *RoomHub) Join(c contracts.Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{subs: make(map[string]contracts.Client)}
		h.rooms[roomID] = r
	}
	rooms := h.joined[c.ID()]
	if rooms == nil {
		rooms = make(map[string]struct{})
		h.joined[c.ID()] = rooms
	}
	rooms[roomID] = struct{}{}
	r.mu.Lock()
	r.subs[c.ID()] = c
	r.mu.Unlock()
}

func (h *RoomHub) Leave(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(connID, roomID)
}

// LeaveAll drops every subscription held by connID.
func (h *RoomHub) LeaveAll(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.joined[connID] {
		h.leaveLocked(connID, roomID)
	}
	delete(h.joined, connID)
}

func (h *RoomHub) leaveLocked(connID, roomID string) {
	if rooms := h.joined[connID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(h.joined, connID)
		}
	}
	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.subs, connID)
	empty := len(r.subs) == 0
	r.mu.Unlock()
	if empty {
		delete(h.rooms, roomID)
	}
}

// Publish snapshots the subscriber set and sends outside the room lock.
// Sends to one recipient are queued in call order, so two publishes issued
// one after the other reach every recipient in that order.
func (h *RoomHub) Publish(ctx context.Context, roomID string, data []byte, exceptConnID string) int {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.RLock()
	subs := make([]contracts.Client, 0, len(r.subs))
	for id, c := range r.subs {
		if id == exceptConnID {
			continue
		}
		subs = append(subs, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range subs {
		// stale subscriptions fail here and are skipped
		if err := c.Send(ctx, data); err == nil {
			delivered++
		}
	}
	return delivered
}

// Members returns the connection ids subscribed to roomID.
func (h *RoomHub) Members(roomID string) []string {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	return ids
}

// RoomsOf returns the rooms connID is subscribed to.
func (h *RoomHub) RoomsOf(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.joined[connID]))
	for id := range h.joined[connID] {
		out = append(out, id)
	}
	return out
}

func (h *RoomHub) Stats() (rooms int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
