package registry

import (
	"context"
	"sync"

	"github.com/koustubh-k/Synk-App/internal/core/domain"
)

type mockClient struct {
	id       string
	userID   string
	mu       sync.Mutex
	received [][]byte
	closed   bool
}

func newMockClient(id, userID string) *mockClient {
	return &mockClient{id: id, userID: userID}
}

func (m *mockClient) ID() string     { return m.id }
func (m *mockClient) UserID() string { return m.userID }

func (m *mockClient) Send(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrClientClosed
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockClient) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockClient) getReceived() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.received))
	for i, d := range m.received {
		out[i] = string(d)
	}
	return out
}
