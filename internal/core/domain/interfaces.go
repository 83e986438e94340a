package domain

import "context"

// UserRepository resolves sender profiles for message enrichment.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// MessageRepository is the durable message store collaborator.
type MessageRepository interface {
	// SaveMessage persists the message and bumps the room's latest message
	// in one transaction. ID and CreatedAt are assigned by the store.
	SaveMessage(ctx context.Context, msg NewMessage) (*Message, error)
}
