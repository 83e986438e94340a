package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koustubh-k/Synk-App/internal/app/server/ws"
	"github.com/koustubh-k/Synk-App/internal/config"
	"github.com/koustubh-k/Synk-App/internal/core/services"
	"github.com/koustubh-k/Synk-App/pkg/logging"
	"github.com/koustubh-k/Synk-App/pkg/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WSHandler struct {
	manager    services.IManagerService
	upgrader   websocket.Upgrader
	connOpts   ws.Options
	clientOpts ws.ClientOptions
	active     sync.WaitGroup
}

func NewWSHandler(manager services.IManagerService, cfg *config.WebSocketConfig, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		connOpts: ws.Options{
			IdleTimeout:  cfg.IdleTimeout,
			PingInterval: cfg.PingInterval,
			WriteTimeout: cfg.WriteTimeout,
			ReadLimit:    cfg.ReadLimit,
		},
		clientOpts: ws.ClientOptions{
			SendBuffer:   cfg.SendBuffer,
			SendTimeout:  cfg.SendTimeout,
			PingInterval: cfg.PingInterval,
		},
	}
}

// Handler runs behind AuthMiddleware, so the identity is already verified
// when the upgrade happens.
func (s *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		log.ErrorContext(r.Context(), "ws handler - unauthorised missing user_id")
		http.Error(w, "Unauthorized: User ID missing", http.StatusUnauthorized)
		return
	}
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("user.id", userID))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WarnContext(r.Context(), "ws handler - upgrade - ws upgrade failed", "user_id", userID, "err", err)
		return
	}
	s.active.Add(1)
	defer s.active.Done()

	ctx := context.WithoutCancel(r.Context())
	socket := ws.NewWebSocket(conn, s.connOpts)
	client := ws.NewClient(socket, userID, s.clientOpts, log)
	defer client.Close()
	log = log.With(logging.User(userID), logging.Conn(client.ID()))

	if err := s.manager.HandleConnect(ctx, client); err != nil {
		log.ErrorContext(ctx, "ws handler - handle connect - rejected", "err", err)
		return
	}
	defer s.manager.HandleDisconnect(ctx, client)
	span.SetAttributes(attribute.String("conn.id", client.ID()))

	// Frames of one connection are handled in arrival order.
	err = socket.ReadLoop(func(data []byte) {
		s.manager.HandleEvent(ctx, client, data)
	})
	if err != nil {
		log.DebugContext(ctx, "ws handler - read loop - connection dropped", "err", err)
	}
}

// Wait blocks until every upgraded connection has run its disconnect path
// or ctx is done.
func (s *WSHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// originChecker allows every origin when none are configured.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
