package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koustubh-k/Synk-App/internal/core/contracts"
	"github.com/koustubh-k/Synk-App/internal/core/domain"
)

type ClientOptions struct {
	SendBuffer   int
	SendTimeout  time.Duration
	PingInterval time.Duration
}

// RuntimeClient is one live connection. Outbound frames go through a
// bounded queue drained by a single writer goroutine; a recipient that
// cannot accept a frame within SendTimeout is closed.
type RuntimeClient struct {
	id     string
	userID string
	ws     *WebSocket
	out    chan []byte
	done   chan struct{}
	once   sync.Once
	opts   ClientOptions
	log    *slog.Logger
}

var _ contracts.Client = (*RuntimeClient)(nil)

func NewClient(ws *WebSocket, userID string, opts ClientOptions, log *slog.Logger) *RuntimeClient {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	c := &RuntimeClient{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		out:    make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
		opts:   opts,
		log:    log,
	}
	go c.writeLoop()
	return c
}

func (c *RuntimeClient) ID() string     { return c.id }
func (c *RuntimeClient) UserID() string { return c.userID }

func (c *RuntimeClient) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return domain.ErrClientClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	default:
	}

	timer := time.NewTimer(c.opts.SendTimeout)
	defer timer.Stop()
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return domain.ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		c.log.Warn("ws client - send - slow consumer, closing", "conn_id", c.id, "user_id", c.userID, "queued", len(c.out))
		c.Close()
		return domain.ErrSlowConsumer
	}
}

// Close stops the writer and drops the socket; the read loop then fails and
// the owner runs the disconnect path.
func (c *RuntimeClient) Close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *RuntimeClient) writeLoop() {
	defer c.Close()
	var pings <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}
	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			if err := c.ws.WriteMessage(data); err != nil {
				c.log.Debug("ws client - write - failed", "conn_id", c.id, "err", err)
				return
			}
		case <-pings:
			if err := c.ws.Ping(); err != nil {
				c.log.Debug("ws client - ping - failed", "conn_id", c.id, "err", err)
				return
			}
		}
	}
}
