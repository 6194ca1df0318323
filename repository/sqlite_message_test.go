package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/opti/database"
	"github.com/akinalp/opti/models"
	"github.com/akinalp/opti/pkg"
)

// testStore, her test için ayrı bir SQLite dosyası açar.
type testStore struct {
	db       *database.DB
	users    UserRepository
	messages MessageRepository
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "chat.db"), database.Migrations(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &testStore{
		db:       db,
		users:    NewSQLiteUserRepo(db.Conn),
		messages: NewSQLiteMessageRepo(db.Conn),
	}
}

func (s *testStore) user(t *testing.T, nickname string) string {
	t.Helper()
	u := &models.User{Nickname: nickname}
	require.NoError(t, s.users.Create(context.Background(), u))
	return u.ID
}

var baseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func (s *testStore) send(t *testing.T, from, to, text string, at time.Duration) models.Message {
	t.Helper()
	msg := models.Message{
		ID:          uuid.Must(uuid.NewV7()).String(),
		SenderID:    from,
		RecipientID: to,
		Text:        text,
		CreatedAt:   baseTime.Add(at),
	}
	require.NoError(t, s.messages.Create(context.Background(), &msg))
	return msg
}

func texts(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestGetConversationIsSymmetricAndOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b, c := s.user(t, "alice"), s.user(t, "bob"), s.user(t, "carol")

	s.send(t, a, b, "second", 2*time.Second)
	s.send(t, b, a, "first", time.Second)
	s.send(t, a, b, "third", 3*time.Second)
	s.send(t, a, c, "other conversation", 0)

	fromA, err := s.messages.GetConversation(ctx, a, b)
	require.NoError(t, err)
	fromB, err := s.messages.GetConversation(ctx, b, a)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "third"}, texts(fromA))
	assert.Equal(t, fromA, fromB)
	assert.Equal(t, baseTime.Add(time.Second), fromA[0].CreatedAt)
	assert.False(t, fromA[0].IsViewed)
}

func TestGetConversationEmpty(t *testing.T) {
	s := newTestStore(t)
	a, b := s.user(t, "alice"), s.user(t, "bob")

	msgs, err := s.messages.GetConversation(context.Background(), a, b)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestGetPreview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b, c := s.user(t, "alice"), s.user(t, "bob"), s.user(t, "carol")

	s.send(t, b, a, "b1", 1*time.Second)
	s.send(t, b, a, "b2", 2*time.Second)
	s.send(t, a, b, "a->b latest", 3*time.Second)
	s.send(t, a, c, "a->c", 5*time.Second)

	previews, err := s.messages.GetPreview(ctx, a)
	require.NoError(t, err)
	require.Len(t, previews, 2)

	// En yeni konuşma önce
	assert.Equal(t, c, previews[0].User.ID)
	assert.Equal(t, "carol", previews[0].User.Nickname)
	assert.Equal(t, "a->c", previews[0].LastMessage.Text)
	assert.Equal(t, 0, previews[0].UnreadCount, "zero unread is reported explicitly")

	assert.Equal(t, b, previews[1].User.ID)
	assert.Equal(t, "a->b latest", previews[1].LastMessage.Text)
	assert.Equal(t, 2, previews[1].UnreadCount, "only messages sent to the caller count")

	// Karşı taraftan bakınca okunmamış, a'nın gönderdikleridir
	fromB, err := s.messages.GetPreview(ctx, b)
	require.NoError(t, err)
	require.Len(t, fromB, 1)
	assert.Equal(t, a, fromB[0].User.ID)
	assert.Equal(t, 1, fromB[0].UnreadCount)

	again, err := s.messages.GetPreview(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, previews, again, "preview is idempotent")
}

func TestGetPreviewTieBreaksByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := s.user(t, "alice"), s.user(t, "bob")

	low := models.Message{ID: "00000000-0000-7000-8000-000000000001", SenderID: a, RecipientID: b, Text: "low", CreatedAt: baseTime}
	high := models.Message{ID: "00000000-0000-7000-8000-000000000002", SenderID: b, RecipientID: a, Text: "high", CreatedAt: baseTime}
	require.NoError(t, s.messages.Create(ctx, &high))
	require.NoError(t, s.messages.Create(ctx, &low))

	previews, err := s.messages.GetPreview(ctx, a)
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Equal(t, "high", previews[0].LastMessage.Text)

	conv, err := s.messages.GetConversation(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"low", "high"}, texts(conv))
}

func TestGetPreviewEmpty(t *testing.T) {
	s := newTestStore(t)
	previews, err := s.messages.GetPreview(context.Background(), s.user(t, "lonely"))
	require.NoError(t, err)
	assert.Empty(t, previews)
}

func TestMarkViewedIsConstrainedToRecipient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b, c := s.user(t, "alice"), s.user(t, "bob"), s.user(t, "carol")

	toB := s.send(t, a, b, "for bob", 0)
	toC := s.send(t, a, c, "for carol", time.Second)
	untouched := s.send(t, a, b, "not in list", 2*time.Second)

	// b, c'ye ait bir id'yi de listeye sokmaya çalışıyor
	n, err := s.messages.MarkViewed(ctx, b, []string{toB.ID, toC.ID, uuid.NewString()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	convB, err := s.messages.GetConversation(ctx, a, b)
	require.NoError(t, err)
	viewed := map[string]bool{}
	for _, m := range convB {
		viewed[m.ID] = m.IsViewed
	}
	assert.True(t, viewed[toB.ID])
	assert.False(t, viewed[untouched.ID])

	convC, err := s.messages.GetConversation(ctx, a, c)
	require.NoError(t, err)
	assert.False(t, convC[0].IsViewed)

	// Tekrar işaretlemek etkisiz
	n, err = s.messages.MarkViewed(ctx, b, []string{toB.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = s.messages.MarkViewed(ctx, b, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestMarkViewedChunksLargeBatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := s.user(t, "alice"), s.user(t, "bob")

	var ids []string
	for i := 0; i < markViewedChunk+20; i++ {
		ids = append(ids, s.send(t, a, b, "m", time.Duration(i)*time.Millisecond).ID)
	}

	n, err := s.messages.MarkViewed(ctx, b, ids)
	require.NoError(t, err)
	assert.EqualValues(t, len(ids), n)
}

func TestDeleteConversationTouchesOnlyThePair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b, c := s.user(t, "alice"), s.user(t, "bob"), s.user(t, "carol")

	s.send(t, a, b, "ab", 0)
	s.send(t, b, a, "ba", time.Second)
	s.send(t, a, c, "ac", 2*time.Second)
	s.send(t, c, b, "cb", 3*time.Second)

	n, err := s.messages.DeleteConversation(ctx, b, a)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	ab, err := s.messages.GetConversation(ctx, a, b)
	require.NoError(t, err)
	assert.Empty(t, ab)

	ac, err := s.messages.GetConversation(ctx, a, c)
	require.NoError(t, err)
	assert.Len(t, ac, 1)

	cb, err := s.messages.GetConversation(ctx, c, b)
	require.NoError(t, err)
	assert.Len(t, cb, 1)
}

func TestCreateInsideRolledBackTx(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := s.user(t, "alice"), s.user(t, "bob")

	boom := errors.New("boom")
	err := database.WithTx(ctx, s.db.Conn, func(tx *sql.Tx) error {
		msg := models.Message{ID: uuid.NewString(), SenderID: a, RecipientID: b, Text: "x", CreatedAt: baseTime}
		if err := s.messages.WithTx(tx).Create(ctx, &msg); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	msgs, err := s.messages.GetConversation(ctx, a, b)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCreateRejectsUnknownUsers(t *testing.T) {
	s := newTestStore(t)
	a := s.user(t, "alice")

	msg := models.Message{ID: uuid.NewString(), SenderID: a, RecipientID: uuid.NewString(), Text: "x", CreatedAt: baseTime}
	assert.Error(t, s.messages.Create(context.Background(), &msg))
}

func TestUserRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &models.User{Nickname: "alice"}
	require.NoError(t, s.users.Create(ctx, u))
	require.NotEmpty(t, u.ID)

	got, err := s.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Nickname)
	assert.False(t, got.IsBlocked)
	assert.Equal(t, u.CreatedAt, got.CreatedAt)

	require.NoError(t, s.users.SetBlocked(ctx, u.ID, true))
	got, err = s.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsBlocked)

	_, err = s.users.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	assert.ErrorIs(t, s.users.SetBlocked(ctx, uuid.NewString(), true), pkg.ErrNotFound)

	dup := &models.User{ID: u.ID, Nickname: "again"}
	assert.ErrorIs(t, s.users.Create(ctx, dup), pkg.ErrAlreadyExists)
}
