package chat

import (
	"context"
	"sync"
	"testing"

	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/internal/ws"

	"github.com/stretchr/testify/require"
)

// recorder is a mock transport capturing everything delivered to it.
type recorder struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

func (r *recorder) Send(payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, payload)
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recorder) deliveries() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.sent...)
}

// broadcasts filters deliveries down to live chat messages.
func (r *recorder) broadcasts() []models.ChatBroadcast {
	var out []models.ChatBroadcast
	for _, payload := range r.deliveries() {
		if b, ok := payload.(models.ChatBroadcast); ok {
			out = append(out, b)
		}
	}
	return out
}

type env struct {
	db       *database.MemoryDB
	registry *ws.Registry
	private  *PrivateManager
	group    *GroupManager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := database.NewMemoryDB()
	registry := ws.NewRegistry()
	return &env{
		db:       db,
		registry: registry,
		private:  NewPrivateManager(db, registry),
		group:    NewGroupManager(db, registry),
	}
}

func (e *env) addUser(t *testing.T, name string) *models.User {
	t.Helper()
	user, err := e.db.CreateUser(context.Background(), &models.RegisterRequest{
		Username: name,
		Email:    name + "@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	return user
}

// connect registers a recorder with the registry as the given user.
func (e *env) connect(t *testing.T, user *models.User) *recorder {
	t.Helper()
	conn := &recorder{}
	require.NoError(t, e.registry.Register(conn, user.Principal()))
	return conn
}
