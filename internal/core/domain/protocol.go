package domain

import (
	"encoding/json"
	"time"
)

// Client to server events.
const (
	EventJoinRoom    = "join room"
	EventLeaveRoom   = "leave room"
	EventTyping      = "typing"
	EventStopTyping  = "stop typing"
	EventNewMessage  = "new message"
	EventCheckOnline = "check online status"
)

// Server to client events.
const (
	EventConnected       = "connected"
	EventUserOnline      = "user online"
	EventUserOffline     = "user offline"
	EventMessageReceived = "message received"
	EventAck             = "ack"
	EventError           = "error"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   string          `json:"ack,omitempty"`
}

// ConnectedPayload is sent once after a successful handshake.
type ConnectedPayload struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

// PresencePayload carries a user online/offline transition.
type PresencePayload struct {
	UserID string `json:"userId"`
}

// RoomPayload is the room context of ephemeral events.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// NewMessagePayload is the body of a "new message" event.
type NewMessagePayload struct {
	RoomID   string `json:"roomId"`
	ChatID   string `json:"chatId,omitempty"`
	Content  string `json:"content"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// Room returns the addressed room, accepting chatId as an alias.
func (p NewMessagePayload) Room() string {
	if p.RoomID != "" {
		return p.RoomID
	}
	return p.ChatID
}

// Sender is the profile embedded in a delivered message.
type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// ChatMessage is the full record delivered with "message received".
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrorMessage is a websocket-safe error, sent only to the originating connection.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// EncodeFrame marshals an outbound frame. Events are encoded once and the
// bytes are shared across every recipient.
func EncodeFrame(event string, data any) ([]byte, error) {
	f := Frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

// EncodeAck marshals the answer to a request frame carrying an ack id.
func EncodeAck(ack string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: EventAck, Ack: ack, Data: raw})
}

// Bridge envelope kinds.
const (
	EnvelopeRoom      = "room"
	EnvelopeBroadcast = "broadcast"
)

// Envelope is what travels on the shared broadcast channel between processes.
// Origin lets a process drop its own echoes; receivers never relay further.
type Envelope struct {
	Origin string          `json:"origin"`
	Kind   string          `json:"kind"`
	RoomID string          `json:"room_id,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}
