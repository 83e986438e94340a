package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustubh-k/Synk-App/internal/core/domain"
)

// pair returns a server-side client and the raw peer connection.
func pair(t *testing.T, opts ClientOptions) (*RuntimeClient, *websocket.Conn) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clients := make(chan *RuntimeClient, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sock := NewWebSocket(conn, Options{WriteTimeout: 10 * time.Second})
		clients <- NewClient(sock, "alice", opts, log)
	}))
	t.Cleanup(srv.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	select {
	case c := <-clients:
		t.Cleanup(c.Close)
		return c, peer
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade did not complete")
		return nil, nil
	}
}

func TestClient_DeliversInOrder(t *testing.T) {
	c, peer := pair(t, ClientOptions{SendBuffer: 4, SendTimeout: time.Second})
	ctx := context.Background()

	for _, m := range []string{"one", "two", "three"} {
		require.NoError(t, c.Send(ctx, []byte(m)))
	}

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	for _, want := range []string{"one", "two", "three"} {
		_, got, err := peer.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	assert.Equal(t, "alice", c.UserID())
	assert.NotEmpty(t, c.ID())
}

func TestClient_SendAfterClose(t *testing.T) {
	c, _ := pair(t, ClientOptions{SendBuffer: 1, SendTimeout: time.Second})

	c.Close()
	c.Close()

	err := c.Send(context.Background(), []byte("late"))
	assert.ErrorIs(t, err, domain.ErrClientClosed)
}

func TestClient_SlowConsumerIsClosed(t *testing.T) {
	c, _ := pair(t, ClientOptions{SendBuffer: 1, SendTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	// The peer never reads, so socket buffers fill and the writer stalls.
	frame := make([]byte, 4<<20)
	var err error
	for i := 0; i < 200 && err == nil; i++ {
		err = c.Send(ctx, frame)
	}
	assert.ErrorIs(t, err, domain.ErrSlowConsumer)

	err = c.Send(ctx, []byte("after"))
	assert.ErrorIs(t, err, domain.ErrClientClosed)
}
