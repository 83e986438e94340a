package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustubh-k/Synk-App/internal/core/domain"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// sameValue matches the first value it sees and then only equal values.
type sameValue struct{ seen driver.Value }

func (s *sameValue) Match(v driver.Value) bool {
	if s.seen == nil {
		s.seen = v
		return v != nil
	}
	return s.seen == v
}

func TestMessageRepo_SaveMessage(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)

	local := time.FixedZone("UTC+3", 3*60*60)
	stamp := time.Date(2026, 3, 14, 12, 0, 0, 0, local)
	id := &sameValue{}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chats").
		WithArgs("R1", id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(id, "R1", "u1", "hello", "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(stamp))
	mock.ExpectCommit()

	saved, err := repo.SaveMessage(context.Background(), domain.NewMessage{
		RoomID:   "R1",
		SenderID: "u1",
		Content:  "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, saved.ID.String(), id.seen, "latest_message_id points at the new message")
	assert.Equal(t, "R1", saved.RoomID)
	assert.True(t, stamp.Equal(saved.CreatedAt))
	assert.Equal(t, time.UTC, saved.CreatedAt.Location())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_SaveMessageRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO messages").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	saved, err := repo.SaveMessage(context.Background(), domain.NewMessage{
		RoomID:   "R1",
		SenderID: "u1",
		Content:  "hello",
	})
	assert.Error(t, err)
	assert.Nil(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_SaveMessageValidates(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)

	_, err := repo.SaveMessage(context.Background(), domain.NewMessage{SenderID: "u1", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidRoomID)

	_, err = repo.SaveMessage(context.Background(), domain.NewMessage{RoomID: "R1", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)

	assert.NoError(t, mock.ExpectationsWereMet(), "no statement reaches the database")
}

func TestUserRepo_GetUserByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT username, avatar FROM users").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"username", "avatar"}).AddRow("alice", "a.png"))

	user, err := repo.GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, &domain.User{ID: "u1", Username: "alice", Avatar: "a.png"}, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetUserByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT username, avatar FROM users").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"username", "avatar"}))

	_, err := repo.GetUserByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = repo.GetUserByID(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_ReusesOuterTransaction(t *testing.T) {
	db, mock := newMock(t)
	tm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE chats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tm.WithTx(context.Background(), func(ctx context.Context) error {
		return tm.WithTx(ctx, func(ctx context.Context) error {
			_, err := GetExecutor(ctx, db).ExecContext(ctx, "UPDATE chats SET updated_at = now()")
			return err
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
