package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/koustubh-k/Synk-App/internal/app/bridge"
	"github.com/koustubh-k/Synk-App/internal/app/registry"
	"github.com/koustubh-k/Synk-App/internal/app/server"
	"github.com/koustubh-k/Synk-App/internal/app/server/handlers"
	"github.com/koustubh-k/Synk-App/internal/app/worker"
	"github.com/koustubh-k/Synk-App/internal/config"
	"github.com/koustubh-k/Synk-App/internal/core/contracts"
	"github.com/koustubh-k/Synk-App/internal/core/domain"
	"github.com/koustubh-k/Synk-App/internal/core/services"
	"github.com/koustubh-k/Synk-App/internal/platform/logger"
	"github.com/koustubh-k/Synk-App/internal/platform/telemetry"
	"github.com/koustubh-k/Synk-App/internal/plugins/memory"
	"github.com/koustubh-k/Synk-App/internal/plugins/postgres"
	redisPlugin "github.com/koustubh-k/Synk-App/internal/plugins/redis"
)

func serve(parent context.Context, configFile string) error {
	// Context
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logger
	instanceID := uuid.NewString()
	log := logger.NewLogger(*cfg, instanceID)
	log.Info("starting application", "version", version)

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg, instanceID)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
		otelShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		log.Info("flushing telemetry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	// Infra
	msgRepo, userRepo, closeStore, err := openStore(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	backend, liveness, closeBackend := openPresenceBackend(ctx, log, cfg, instanceID)
	defer closeBackend()

	// Core
	hub := registry.NewRegistry()
	rooms := registry.NewRoomHub()
	relay := bridge.NewBridge(log, instanceID, cfg.Bridge.Channel, cfg.Bridge.OutboxSize, backend, hub, rooms)
	presenceSvc := services.NewPresenceService(log, hub, rooms, backend, relay)
	msgSvc := services.NewMessageService(log, msgRepo, userRepo, relay, cfg.Presence.ProfileCacheSize)
	managerSvc := services.NewManagerService(log, presenceSvc, msgSvc, rooms, relay)
	tokenSvc := services.NewTokenService(cfg.SecretToken)

	// Server
	backendName := "memory"
	if backend.Distributed() {
		backendName = "redis"
	}
	wsHandler := handlers.NewWSHandler(managerSvc, cfg.WebSocket, cfg.Service.AllowedOrigins)
	statusHandler := handlers.NewStatusHandler(instanceID, backendName, hub, rooms, relay, presenceSvc)
	srv := server.NewServer(log, cfg.Service.Name, cfg.Service.Addr, tokenSvc, wsHandler, statusHandler, hub)

	// The bridge outlives the listener so offline events from shutdown
	// still reach other processes.
	bridgeCtx, stopBridge := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBridge()

	var presenceWorker *worker.PresenceWorker
	if liveness != nil {
		presenceWorker = worker.NewPresenceWorker(log, liveness, presenceSvc, cfg.Presence.HeartbeatInterval)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error { return relay.Run(bridgeCtx) })
	if presenceWorker != nil {
		g.Go(func() error { return presenceWorker.Run(gCtx) })
	}
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if presenceWorker != nil {
			presenceWorker.Release(shutdownCtx)
		}
		stopBridge()
		return err
	})
	return g.Wait()
}

func openStore(ctx context.Context, log *slog.Logger, cfg *config.Config) (domain.MessageRepository, domain.UserRepository, func(), error) {
	if cfg.Postgres.DSN == "" {
		log.Warn("postgres not configured, messages are kept in memory (development only)")
		repo := memory.NewMessageRepo()
		return repo, repo, func() {}, nil
	}
	db, err := postgres.New(ctx, *cfg.Postgres)
	if err != nil {
		log.Error("postgres connection failed", "err", err)
		return nil, nil, nil, fmt.Errorf("postgres: %w", err)
	}
	log.Info("postgres connected")
	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		log.Info("postgres schema applied")
	}
	return postgres.NewMessageRepo(db), postgres.NewUserRepository(db), func() { _ = db.Close() }, nil
}

// openPresenceBackend falls back to the in-memory backend when Redis is not
// configured or not reachable; the process then runs as a single instance.
func openPresenceBackend(ctx context.Context, log *slog.Logger, cfg *config.Config, instanceID string) (contracts.PresenceBackend, contracts.InstanceLiveness, func()) {
	if cfg.Redis.URL == "" {
		log.Warn("redis not configured, scaling disabled: presence and fanout are local to this process")
		return memory.NewPresenceBackend(), nil, func() {}
	}
	rdb, err := redisPlugin.NewRedisClient(ctx, *cfg.Redis)
	if err != nil {
		log.Error("redis connection failed, scaling disabled: presence and fanout are local to this process",
			"err", domain.ErrBridgeUnavailable, "cause", err)
		return memory.NewPresenceBackend(), nil, func() {}
	}
	log.Info("redis connected", "key_prefix", cfg.Redis.KeyPrefix)
	backend := redisPlugin.NewRedisPresenceBackend(log, rdb, redisPlugin.Options{
		InstanceID:  instanceID,
		KeyPrefix:   cfg.Redis.KeyPrefix,
		InstanceTTL: cfg.Presence.InstanceTTL,
	})
	return backend, backend, func() { _ = rdb.Close() }
}

func issueToken(configFile, userID string, ttl time.Duration) (string, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return "", err
	}
	if cfg.SecretToken == "" {
		return "", config.ErrMissingSecret
	}
	return services.NewTokenService(cfg.SecretToken).GenerateToken(userID, ttl)
}

func migrate(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn (DATABASE_URL) is required")
	}
	var db *sql.DB
	if db, err = postgres.New(ctx, *cfg.Postgres); err != nil {
		return err
	}
	defer db.Close()
	return postgres.Migrate(ctx, db)
}
