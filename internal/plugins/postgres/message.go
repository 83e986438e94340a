package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/koustubh-k/Synk-App/internal/core/domain"
)

type MessageRepo struct {
	db *sql.DB
	tm *TxManager
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{
		db: db,
		tm: NewTxManager(db),
	}
}

// SaveMessage inserts the message and points its chat's latest_message_id at
// it in one transaction. The chat row is created on first use.
func (r *MessageRepo) SaveMessage(
	ctx context.Context,
	msg domain.NewMessage,
) (*domain.Message, error) {
	if msg.RoomID == "" {
		return nil, domain.ErrInvalidRoomID
	}
	if msg.SenderID == "" {
		return nil, domain.ErrInvalidUserID
	}
	saved := &domain.Message{
		ID:       uuid.New(),
		RoomID:   msg.RoomID,
		SenderID: msg.SenderID,
		Content:  msg.Content,
		MediaURL: msg.MediaURL,
	}
	err := r.tm.WithTx(ctx, func(ctx context.Context) error {
		exec := GetExecutor(ctx, r.db)
		_, err := exec.ExecContext(ctx, `
			INSERT INTO chats (id, latest_message_id, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (id) DO UPDATE
			SET latest_message_id = EXCLUDED.latest_message_id,
			    updated_at = EXCLUDED.updated_at
		`, saved.RoomID, saved.ID)
		if err != nil {
			return err
		}
		return exec.QueryRowContext(ctx, `
			INSERT INTO messages (
				id, chat_id, sender_id, content, media_url
			) VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`,
			saved.ID,
			saved.RoomID,
			saved.SenderID,
			saved.Content,
			saved.MediaURL,
		).Scan(&saved.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	saved.CreatedAt = saved.CreatedAt.UTC()
	return saved, nil
}
