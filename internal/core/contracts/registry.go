package contracts

import "context"

// Client represents the minimal interface required for the registries to
// communicate with an individual WebSocket connection.
type Client interface {
	ID() string
	UserID() string
	Send(ctx context.Context, data []byte) error
	Close()
}

// ConnectionRegistry maps a user identity to its live connections on this
// process. Register/Unregister report the 0<->1 transitions.
type ConnectionRegistry interface {
	// Register returns true when c is the user's first live connection.
	Register(userID string, c Client) bool
	// Unregister returns true when the user has no connection left.
	Unregister(userID, connID string) bool
	IsOnline(userID string) bool
	OnlineUserIDs() []string
	// Broadcast sends data to every local connection except exceptConnID.
	Broadcast(ctx context.Context, data []byte, exceptConnID string) int
}

// RoomFanout tracks room subscriptions and delivers room-scoped events to
// subscribers on this process.
type RoomFanout interface {
	Join(c Client, roomID string)
	Leave(connID, roomID string)
	LeaveAll(connID string)
	// Publish delivers data to every subscriber of roomID except exceptConnID.
	Publish(ctx context.Context, roomID string, data []byte, exceptConnID string) int
}

// Broadcaster is the process-wide delivery surface used by the services.
// Implementations deliver locally first and then relay to other processes.
type Broadcaster interface {
	PublishRoom(ctx context.Context, roomID string, data []byte, exceptConnID string)
	BroadcastAll(ctx context.Context, data []byte, exceptConnID string)
}
