package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/opti/database"
	"github.com/akinalp/opti/models"
	"github.com/akinalp/opti/pkg/bus"
	"github.com/akinalp/opti/pkg/logger"
	"github.com/akinalp/opti/repository"
)

func (e *testEnv) reconciler(interval time.Duration) ReceiptReconciler {
	return NewReceiptReconciler(e.db.Conn, e.messages, e.bus, interval, e.metrics, logger.Nop())
}

func (e *testEnv) send(t *testing.T, from, to, text string) *models.Message {
	t.Helper()
	msg, err := e.chat.SendMessage(context.Background(), from, models.SendMessageRequest{RecipientID: to, Message: text})
	require.NoError(t, err)
	return msg
}

func TestFlushOnceMarksReadMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a1, b1 := env.user(t, "a1"), env.user(t, "b1")

	m1 := env.send(t, a1, b1, "m1")
	m2 := env.send(t, a1, b1, "m2")
	reply := env.send(t, b1, a1, "reply")

	_, err := env.chat.ReadMessages(ctx, b1, models.ReadMessagesRequest{OtherUserID: a1, ListMessagesID: []string{m1.ID}})
	require.NoError(t, err)
	_, err = env.chat.ReadMessages(ctx, a1, models.ReadMessagesRequest{OtherUserID: b1, ListMessagesID: []string{reply.ID}})
	require.NoError(t, err)

	res, err := env.reconciler(time.Hour).FlushOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, FlushResult{Readers: 2, Pending: 2, Marked: 2}, res)

	viewed := map[string]bool{}
	for _, m := range env.conversation(t, a1, b1) {
		viewed[m.ID] = m.IsViewed
	}
	assert.True(t, viewed[m1.ID])
	assert.False(t, viewed[m2.ID])
	assert.True(t, viewed[reply.ID])

	preview, err := env.chat.GetPreview(ctx, b1)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.Equal(t, 1, preview[0].UnreadCount)

	assert.EqualValues(t, 2, testutil.ToFloat64(env.metrics.ReceiptsFlushed))
}

func TestFlushOnceEmptyTableIsNoop(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.reconciler(time.Hour).FlushOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FlushResult{}, res)
	assert.EqualValues(t, 0, testutil.ToFloat64(env.metrics.ReceiptsFlushed))
	assert.EqualValues(t, 0, testutil.ToFloat64(env.metrics.FlushErrors))
}

func TestFlushOnceIgnoresForeignIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a1, b1, c1 := env.user(t, "a1"), env.user(t, "b1"), env.user(t, "c1")

	toC := env.send(t, a1, c1, "for c1")

	// b1, c1'e ait bir mesajı okumuş gibi davranıyor
	require.NoError(t, env.bus.AppendReadReceipts(ctx, b1, []string{toC.ID, uuid.NewString()}))

	res, err := env.reconciler(time.Hour).FlushOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Marked)
	assert.False(t, env.conversation(t, a1, c1)[0].IsViewed)
}

func TestFlushOnceRepeatedReceiptsAreIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a1, b1 := env.user(t, "a1"), env.user(t, "b1")
	m1 := env.send(t, a1, b1, "m1")
	r := env.reconciler(time.Hour)

	for i := 0; i < 2; i++ {
		require.NoError(t, env.bus.AppendReadReceipts(ctx, b1, []string{m1.ID}))
	}
	res, err := r.FlushOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pending)
	assert.EqualValues(t, 1, res.Marked)

	require.NoError(t, env.bus.AppendReadReceipts(ctx, b1, []string{m1.ID}))
	res, err = r.FlushOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Marked)
	assert.True(t, env.conversation(t, a1, b1)[0].IsViewed)
}

// failingMarkRepo, MarkViewed'ı transaction içinde başarısız kılar.
type failingMarkRepo struct {
	repository.MessageRepository
}

func (f failingMarkRepo) WithTx(tx database.TxQuerier) repository.MessageRepository {
	return failingMarkRepo{f.MessageRepository.WithTx(tx)}
}

func (failingMarkRepo) MarkViewed(context.Context, string, []string) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func TestFlushFailureDropsBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a1, b1 := env.user(t, "a1"), env.user(t, "b1")
	m1 := env.send(t, a1, b1, "m1")

	require.NoError(t, env.bus.AppendReadReceipts(ctx, b1, []string{m1.ID}))

	r := NewReceiptReconciler(env.db.Conn, failingMarkRepo{env.messages}, env.bus, time.Hour, env.metrics, logger.Nop())
	_, err := r.FlushOnce(ctx)
	require.Error(t, err)
	assert.EqualValues(t, 1, testutil.ToFloat64(env.metrics.FlushErrors))

	pending, err := env.bus.DrainReadReceipts(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "failed batch is not re-queued")
	assert.False(t, env.conversation(t, a1, b1)[0].IsViewed)
}

// blockingBuffer, Drain içinde release kapanana kadar bekler.
type blockingBuffer struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBuffer) AppendReadReceipts(context.Context, string, []string) error { return nil }

func (b *blockingBuffer) DrainReadReceipts(context.Context) (map[string][]string, error) {
	close(b.entered)
	<-b.release
	return nil, nil
}

func TestFlushesNeverOverlap(t *testing.T) {
	env := newTestEnv(t)
	buf := &blockingBuffer{entered: make(chan struct{}), release: make(chan struct{})}
	r := NewReceiptReconciler(env.db.Conn, env.messages, buf, time.Hour, env.metrics, logger.Nop())

	done := make(chan FlushResult)
	go func() {
		res, _ := r.FlushOnce(context.Background())
		done <- res
	}()
	<-buf.entered

	res, err := r.FlushOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	close(buf.release)
	assert.False(t, (<-done).Skipped)
}

func TestReconcilerLoopAndFinalFlush(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a1, b1 := env.user(t, "a1"), env.user(t, "b1")
	m1 := env.send(t, a1, b1, "m1")
	m2 := env.send(t, a1, b1, "m2")

	r := env.reconciler(20 * time.Millisecond)
	r.Start()
	r.Start()

	require.NoError(t, env.bus.AppendReadReceipts(ctx, b1, []string{m1.ID}))
	assert.Eventually(t, func() bool {
		msgs, err := env.messages.GetConversation(ctx, a1, b1)
		return err == nil && msgs[0].IsViewed
	}, 2*time.Second, 10*time.Millisecond)

	// Döngü durdurulduktan sonra kalan bildirimler Stop içinde yazılır
	r.Stop()
	require.NoError(t, env.bus.AppendReadReceipts(ctx, b1, []string{m2.ID}))
	r.Start()
	r.Stop()
	r.Stop()

	assert.True(t, env.conversation(t, a1, b1)[1].IsViewed)
}

func TestReceiptChannelIsSeparateFromUserChannel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a1, b1 := env.user(t, "a1"), env.user(t, "b1")
	m1 := env.send(t, a1, b1, "m1")

	userCh := env.subscribe(t, bus.UserChannel(a1))
	_, err := env.chat.ReadMessages(ctx, b1, models.ReadMessagesRequest{OtherUserID: a1, ListMessagesID: []string{m1.ID}})
	require.NoError(t, err)
	nothing(t, userCh)
}
