package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koustubh-k/Synk-App/internal/core/domain"
)

// MessageRepo keeps messages in process memory. It backs development runs
// without Postgres and the service tests.
type MessageRepo struct {
	mu       sync.Mutex
	messages []domain.Message
	latest   map[string]uuid.UUID // room_id → latest message id
	users    map[string]domain.User
	now      func() time.Time
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{
		latest: make(map[string]uuid.UUID),
		users:  make(map[string]domain.User),
		now:    time.Now,
	}
}

func (r *MessageRepo) SaveMessage(_ context.Context, msg domain.NewMessage) (*domain.Message, error) {
	if msg.RoomID == "" {
		return nil, domain.ErrInvalidRoomID
	}
	if msg.SenderID == "" {
		return nil, domain.ErrInvalidUserID
	}
	m := domain.Message{
		ID:        uuid.New(),
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		MediaURL:  msg.MediaURL,
		CreatedAt: r.now().UTC(),
	}
	r.mu.Lock()
	r.messages = append(r.messages, m)
	r.latest[m.RoomID] = m.ID
	r.mu.Unlock()
	return &m, nil
}

// Messages returns a copy of every message stored for roomID.
func (r *MessageRepo) Messages(roomID string) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

// LatestMessage returns the id of the last message saved to roomID.
func (r *MessageRepo) LatestMessage(roomID string) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.latest[roomID]
	return id, ok
}

// PutUser seeds a profile returned by GetUserByID.
func (r *MessageRepo) PutUser(u domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *MessageRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, domain.ErrInvalidUserID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}
