package contracts

import "context"

// PresenceBackend is the pluggable aggregate presence set and broadcast
// channel. The in-memory variant serves a single process; the Redis variant
// spans every process sharing the same store.
type PresenceBackend interface {
	// AddOnline records that this process holds a connection for userID.
	// It returns true when the user became online across all processes.
	AddOnline(ctx context.Context, userID string) (bool, error)
	// RemoveOnline records that this process holds no connection for userID.
	// It returns true when the user became offline across all processes.
	RemoveOnline(ctx context.Context, userID string) (bool, error)
	// IsOnline answers for every id, aligned to input order.
	IsOnline(ctx context.Context, userIDs []string) ([]bool, error)
	// Publish fires payload on channel without waiting for any receiver.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe blocks delivering every payload on channel to handler until
	// ctx is done.
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error
	// Distributed reports whether events cross process boundaries.
	Distributed() bool
}

// InstanceLiveness is implemented by distributed backends that can reclaim
// presence held by processes that died without unregistering.
type InstanceLiveness interface {
	// Heartbeat refreshes this process's liveness key.
	Heartbeat(ctx context.Context) error
	// ReapExpired claims dead processes and returns users that went offline.
	ReapExpired(ctx context.Context) ([]string, error)
	// Release drops this process's presence on clean shutdown and returns
	// users that went offline.
	Release(ctx context.Context) ([]string, error)
	// InstanceUsers lists the users the store holds for this process.
	InstanceUsers(ctx context.Context) ([]string, error)
}
