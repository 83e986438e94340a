package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the public profile of an identity issued by the auth collaborator.
type User struct {
	ID       string
	Username string
	Avatar   string
}

// Message is a persisted chat entry. The store assigns ID and CreatedAt.
type Message struct {
	ID        uuid.UUID
	RoomID    string
	SenderID  string
	Content   string
	MediaURL  string
	CreatedAt time.Time
}

// NewMessage is what a sender asks the store to persist.
type NewMessage struct {
	RoomID   string
	SenderID string
	Content  string
	MediaURL string
}

// OnlineStatus is one entry of a "check online status" answer.
type OnlineStatus struct {
	IsOnline bool `json:"isOnline"`
}
