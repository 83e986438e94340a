package registry

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/koustubh-k/Synk-App/internal/core/contracts"
)

const defaultShards = 32

// Registry is the per-process source of truth mapping user id to the set of
// live connections for that user. Users are spread over shards so that
// connect/disconnect of different users rarely contend.
type Registry struct {
	shards []*shard
}

type shard struct {
	mu    sync.RWMutex
	users map[string]map[string]contracts.Client // user_id → conn_id → client
}

var _ contracts.ConnectionRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return NewShardedRegistry(defaultShards)
}

func NewShardedRegistry(n int) *Registry {
	if n < 1 {
		n = 1
	}
	r := &Registry{shards: make([]*shard, n)}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[string]map[string]contracts.Client)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	return r.shards[xxhash.Sum64String(userID)%uint64(len(r.shards))]
}

func (r *Registry) Register(userID string, c contracts.Client) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := s.users[userID]
	if conns == nil {
		conns = make(map[string]contracts.Client)
		s.users[userID] = conns
	}
	if _, dup := conns[c.ID()]; dup {
		return false
	}
	conns[c.ID()] = c
	return len(conns) == 1
}

func (r *Registry) Unregister(userID, connID string) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	conns, ok := s.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(s.users, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

func (r *Registry) OnlineUserIDs() []string {
	var ids []string
	for _, s := range r.shards {
		s.mu.RLock()
		for id := range s.users {
			ids = append(ids, id)
		}
		s.mu.RUnlock()
	}
	return ids
}

// ConnectionCount returns the number of live connections held for userID.
func (r *Registry) ConnectionCount(userID string) int {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID])
}

// Clients returns a snapshot of every live connection.
func (r *Registry) Clients() []contracts.Client {
	var out []contracts.Client
	for _, s := range r.shards {
		s.mu.RLock()
		for _, conns := range s.users {
			for _, c := range conns {
				out = append(out, c)
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// Broadcast delivers outside of any shard lock; a client that is gone by
// the time it is reached is skipped.
func (r *Registry) Broadcast(ctx context.Context, data []byte, exceptConnID string) int {
	delivered := 0
	for _, c := range r.Clients() {
		if c.ID() == exceptConnID {
			continue
		}
		if err := c.Send(ctx, data); err == nil {
			delivered++
		}
	}
	return delivered
}

// Stats returns the number of online users and live connections.
func (r *Registry) Stats() (users, conns int) {
	for _, s := range r.shards {
		s.mu.RLock()
		users += len(s.users)
		for _, c := range s.users {
			conns += len(c)
		}
		s.mu.RUnlock()
	}
	return users, conns
}

// CloseAll closes every live connection. Each connection then runs its own
// unregister path.
func (r *Registry) CloseAll() {
	for _, c := range r.Clients() {
		c.Close()
	}
}
