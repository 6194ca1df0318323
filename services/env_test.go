package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/akinalp/opti/database"
	"github.com/akinalp/opti/models"
	"github.com/akinalp/opti/pkg/bus"
	"github.com/akinalp/opti/pkg/logger"
	"github.com/akinalp/opti/pkg/metrics"
	"github.com/akinalp/opti/pkg/ratelimit"
	"github.com/akinalp/opti/repository"
)

const testSecret = "test-secret"

// testEnv, gerçek SQLite + in-process bus ile kurulmuş servis grafiği.
type testEnv struct {
	db       *database.DB
	users    repository.UserRepository
	messages repository.MessageRepository
	bus      *bus.MemoryBus
	metrics  *metrics.Metrics
	identity IdentityService
	chat     ChatService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "chat.db"), database.Migrations(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.Nop()
	b := bus.NewMemory(log)
	t.Cleanup(func() { b.Close() })

	limiter := ratelimit.NewMessageRateLimiter(5, 5*time.Second, 15*time.Second)
	t.Cleanup(limiter.Close)

	env := &testEnv{
		db:       db,
		users:    repository.NewSQLiteUserRepo(db.Conn),
		messages: repository.NewSQLiteMessageRepo(db.Conn),
		bus:      b,
		metrics:  metrics.New(),
	}
	env.identity = NewIdentityService(env.users, testSecret, time.Hour, 30*time.Second, log)
	t.Cleanup(env.identity.Close)

	env.chat = NewChatService(db.Conn, env.messages, env.identity, b, limiter, env.metrics, log)
	return env
}

func (e *testEnv) user(t *testing.T, nickname string) string {
	t.Helper()
	u, err := e.identity.CreateUser(context.Background(), nickname)
	require.NoError(t, err)
	return u.ID
}

func (e *testEnv) subscribe(t *testing.T, channels ...string) bus.Subscription {
	t.Helper()
	sub, err := e.bus.Subscribe(context.Background(), channels...)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return sub
}

func (e *testEnv) conversation(t *testing.T, a, b string) []models.Message {
	t.Helper()
	msgs, err := e.messages.GetConversation(context.Background(), a, b)
	require.NoError(t, err)
	return msgs
}

// next, abonelikten tek bir payload okur ve out'a decode eder.
func next(t *testing.T, sub bus.Subscription, out any) {
	t.Helper()
	select {
	case payload, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		require.NoError(t, json.Unmarshal(payload, out))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

// nothing, kısa bir süre içinde event gelmediğini doğrular.
func nothing(t *testing.T, sub bus.Subscription) {
	t.Helper()
	select {
	case payload := <-sub.Messages():
		t.Fatalf("unexpected event: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}
