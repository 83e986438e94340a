package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Options struct {
	IdleTimeout  time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
}

// WebSocket owns the read side and the deadlines of one gorilla connection.
// Any inbound frame or pong pushes the read deadline out by IdleTimeout, so
// a silent peer is dropped once it elapses.
type WebSocket struct {
	*websocket.Conn
	opts      Options
	closeOnce sync.Once
}

func NewWebSocket(conn *websocket.Conn, opts Options) *WebSocket {
	w := &WebSocket{Conn: conn, opts: opts}
	// Configure Read Limits (Protects against memory exhaustion)
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	w.extendDeadline()
	conn.SetPongHandler(func(string) error {
		w.extendDeadline()
		return nil
	})
	return w
}

func (w *WebSocket) extendDeadline() {
	if w.opts.IdleTimeout > 0 {
		_ = w.Conn.SetReadDeadline(time.Now().Add(w.opts.IdleTimeout))
	}
}

func (w *WebSocket) WriteMessage(data []byte) error {
	_ = w.Conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
	return w.Conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocket) Ping() error {
	return w.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.opts.WriteTimeout))
}

// ReadLoop hands every non-empty text frame to onMsg, one at a time, until
// the connection fails. A normal close from either side returns nil.
func (w *WebSocket) ReadLoop(onMsg func([]byte)) error {
	for {
		_, data, err := w.Conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		}
		w.extendDeadline()
		if len(data) > 0 {
			onMsg(data)
		}
	}
}

// Close sends a close frame when possible and drops the connection.
func (w *WebSocket) Close() {
	w.closeOnce.Do(func() {
		_ = w.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = w.Conn.Close()
	})
}
