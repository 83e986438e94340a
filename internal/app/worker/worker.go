package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/koustubh-k/Synk-App/internal/core/contracts"
)

// PresenceSync is the presence side the worker drives: offline announcements
// for users dropped on behalf of another process, and repair of this
// process's share of the aggregate set.
type PresenceSync interface {
	AnnounceOffline(ctx context.Context, userIDs []string)
	Reconcile(ctx context.Context, stored []string)
}

// PresenceWorker keeps this process's liveness key fresh and reclaims the
// presence of processes that died without unregistering.
type PresenceWorker struct {
	log       *slog.Logger
	liveness  contracts.InstanceLiveness
	announcer PresenceSync
	interval  time.Duration
}

func NewPresenceWorker(
	log *slog.Logger,
	liveness contracts.InstanceLiveness,
	announcer PresenceSync,
	interval time.Duration,
) *PresenceWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &PresenceWorker{
		log:       log,
		liveness:  liveness,
		announcer: announcer,
		interval:  interval,
	}
}

// Run beats once immediately and then every interval until ctx is done.
func (w *PresenceWorker) Run(ctx context.Context) error {
	w.Tick(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker - presence - stopped")
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one heartbeat, one reap pass and one reconcile pass. Failures
// are logged; the next tick retries.
func (w *PresenceWorker) Tick(ctx context.Context) {
	if err := w.liveness.Heartbeat(ctx); err != nil {
		w.log.WarnContext(ctx, "worker - heartbeat - failed", "err", err)
		return
	}
	offline, err := w.liveness.ReapExpired(ctx)
	if err != nil {
		w.log.WarnContext(ctx, "worker - reap expired - failed", "err", err)
	}
	if len(offline) > 0 {
		w.log.InfoContext(ctx, "worker - reap expired - users went offline", "count", len(offline))
		w.announcer.AnnounceOffline(ctx, offline)
	}
	stored, err := w.liveness.InstanceUsers(ctx)
	if err != nil {
		w.log.WarnContext(ctx, "worker - reconcile - instance users failed", "err", err)
		return
	}
	w.announcer.Reconcile(ctx, stored)
}

// Release drops this process's presence on shutdown and announces the users
// that went offline with it.
func (w *PresenceWorker) Release(ctx context.Context) {
	offline, err := w.liveness.Release(ctx)
	if err != nil {
		w.log.WarnContext(ctx, "worker - release - failed", "err", err)
		return
	}
	if len(offline) > 0 {
		w.announcer.AnnounceOffline(ctx, offline)
	}
	w.log.InfoContext(ctx, "worker - release - presence released", "offline_users", len(offline))
}
