package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/koustubh-k/Synk-App/internal/app/server/handlers"
	"github.com/koustubh-k/Synk-App/pkg/middleware"
)

// ConnectionCloser closes every live connection on this process.
type ConnectionCloser interface {
	CloseAll()
}

type Server struct {
	router        chi.Router
	http          *http.Server
	log           *slog.Logger
	name          string
	tokenSvc      middleware.TokenValidator
	wsHandler     *handlers.WSHandler
	statusHandler *handlers.StatusHandler
	conns         ConnectionCloser
}

func NewServer(
	log *slog.Logger,
	name, addr string,
	tokenSvc middleware.TokenValidator,
	wsHandler *handlers.WSHandler,
	statusHandler *handlers.StatusHandler,
	conns ConnectionCloser,
) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		log:           log,
		name:          name,
		tokenSvc:      tokenSvc,
		wsHandler:     wsHandler,
		statusHandler: statusHandler,
		conns:         conns,
	}
	s.routes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(chimw.Recoverer)
	s.router.Use(middleware.TracerMiddleware(s.name))
	s.router.Use(middleware.RequestLogger(s.log))

	// Public routes
	s.router.Get("/healthz", s.statusHandler.Healthz)
	s.router.Get("/stats", s.statusHandler.Stats)

	// Protected routes: the credential is checked before the upgrade.
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(s.tokenSvc))
		r.Get("/ws", s.wsHandler.Handler)
		r.Get("/api/presence", s.statusHandler.Presence)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on the configured address until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("server - start - listening", "address", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting, then closes every live connection and waits for
// their disconnect paths to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.conns.CloseAll()
	if waitErr := s.wsHandler.Wait(ctx); waitErr != nil {
		s.log.Warn("server - shutdown - connections still draining", "err", waitErr)
		err = errors.Join(err, waitErr)
	}
	s.log.Info("server - shutdown - stopped")
	return err
}
