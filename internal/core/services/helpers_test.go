package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/koustubh-k/Synk-App/internal/app/registry"
	"github.com/koustubh-k/Synk-App/internal/core/contracts"
	"github.com/koustubh-k/Synk-App/internal/core/domain"
)

type mockClient struct {
	id     string
	userID string

	mu       sync.Mutex
	received [][]byte
	closed   bool
}

func newClient(id, userID string) *mockClient {
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
	m.closed = true
	m.mu.Unlock()
}

// frames decodes everything received so far.
func (m *mockClient) frames(t *testing.T) []domain.Frame {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Frame, 0, len(m.received))
	for _, raw := range m.received {
		var f domain.Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	return out
}

func (m *mockClient) events(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, f := range m.frames(t) {
		out = append(out, f.Event)
	}
	return out
}

func (m *mockClient) reset() {
	m.mu.Lock()
	m.received = nil
	m.mu.Unlock()
}

// localBroadcaster delivers on this process only.
type localBroadcaster struct {
	registry *registry.Registry
	rooms    *registry.RoomHub
}

func (b *localBroadcaster) PublishRoom(ctx context.Context, roomID string, data []byte, except string) {
	b.rooms.Publish(ctx, roomID, data, except)
}

func (b *localBroadcaster) BroadcastAll(ctx context.Context, data []byte, except string) {
	b.registry.Broadcast(ctx, data, except)
}

var _ contracts.Broadcaster = (*localBroadcaster)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
