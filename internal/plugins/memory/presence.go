package memory

import (
	"context"
	"sync"

	"github.com/koustubh-k/Synk-App/internal/core/contracts"
)

// PresenceBackend is the single-process aggregate presence set. With one
// process the aggregate equals the local registry, so every local
// transition is a global one and there is nobody to relay events to.
type PresenceBackend struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

var _ contracts.PresenceBackend = (*PresenceBackend)(nil)

func NewPresenceBackend() *PresenceBackend {
	return &PresenceBackend{online: make(map[string]struct{})}
}

func (p *PresenceBackend) AddOnline(_ context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.online[userID]; ok {
		return false, nil
	}
	p.online[userID] = struct{}{}
	return true, nil
}

func (p *PresenceBackend) RemoveOnline(_ context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.online[userID]; !ok {
		return false, nil
	}
	delete(p.online, userID)
	return true, nil
}

func (p *PresenceBackend) IsOnline(_ context.Context, userIDs []string) ([]bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]bool, len(userIDs))
	for i, id := range userIDs {
		_, out[i] = p.online[id]
	}
	return out, nil
}

func (p *PresenceBackend) Publish(context.Context, string, []byte) error { return nil }

// Subscribe has nothing to receive; it parks until ctx is done.
func (p *PresenceBackend) Subscribe(ctx context.Context, _ string, _ func([]byte)) error {
	<-ctx.Done()
	return nil
}

func (p *PresenceBackend) Distributed() bool { return false }
