package ws

import (
	"errors"
	"sync"
	"testing"

	"chat-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records deliveries so tests can assert exactly who received what.
type fakeConn struct {
	mu      sync.Mutex
	sent    []any
	failing bool
	closed  bool
}

func (f *fakeConn) Send(payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) deliveries() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.sent...)
}

func principal(id int, name string) models.Principal {
	return models.Principal{ID: id, Username: name}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}

	require.NoError(t, r.Register(conn, principal(1, "alice")))
	err := r.Register(conn, principal(1, "alice"))
	assert.ErrorIs(t, err, ErrDuplicateConnection)
}

func TestLookup(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	require.NoError(t, r.Register(conn, principal(7, "bob")))

	p, ok := r.Lookup(conn)
	require.True(t, ok)
	assert.Equal(t, "bob", p.Username)

	_, ok = r.Lookup(&fakeConn{})
	assert.False(t, ok)
}

func TestSubscribeIdempotent(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	require.NoError(t, r.Register(conn, principal(1, "alice")))

	room := GroupRoom(1)
	r.Subscribe(conn, room)
	r.Subscribe(conn, room)

	r.Broadcast(room, "hello")
	assert.Len(t, conn.deliveries(), 1)
}

func TestSubscribeUnregisteredConnIsNoop(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}

	r.Subscribe(conn, GroupRoom(1))
	r.Broadcast(GroupRoom(1), "hello")
	assert.Empty(t, conn.deliveries())
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	r := NewRegistry()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	for i, conn := range []*fakeConn{a, b, c} {
		require.NoError(t, r.Register(conn, principal(i+1, "user")))
	}
	r.Subscribe(a, GroupRoom(1))
	r.Subscribe(b, GroupRoom(1))
	r.Subscribe(c, PrivateRoom(1))

	r.Broadcast(GroupRoom(1), "hi")

	assert.Equal(t, []any{"hi"}, a.deliveries())
	assert.Equal(t, []any{"hi"}, b.deliveries())
	assert.Empty(t, c.deliveries(), "private room with the same id must not collide")
}

func TestBroadcastEvictsFailingConn(t *testing.T) {
	r := NewRegistry()
	good, bad := &fakeConn{}, &fakeConn{failing: true}
	require.NoError(t, r.Register(good, principal(1, "good")))
	require.NoError(t, r.Register(bad, principal(2, "bad")))
	r.Subscribe(good, GroupRoom(5))
	r.Subscribe(bad, GroupRoom(5))

	r.Broadcast(GroupRoom(5), "first")

	// The failing connection must not abort delivery to the healthy one.
	assert.Equal(t, []any{"first"}, good.deliveries())
	assert.True(t, bad.closed)
	_, ok := r.Lookup(bad)
	assert.False(t, ok)

	r.Broadcast(GroupRoom(5), "second")
	assert.Equal(t, []any{"first", "second"}, good.deliveries())
}

func TestUnregisterRemovesFromAllRooms(t *testing.T) {
	r := NewRegistry()
	conn, other := &fakeConn{}, &fakeConn{}
	require.NoError(t, r.Register(conn, principal(1, "alice")))
	require.NoError(t, r.Register(other, principal(2, "bob")))
	for _, room := range []RoomKey{GroupRoom(1), GroupRoom(2), PrivateRoom(3)} {
		r.Subscribe(conn, room)
		r.Subscribe(other, room)
	}

	r.Unregister(conn)
	r.Unregister(conn) // idempotent

	for _, room := range []RoomKey{GroupRoom(1), GroupRoom(2), PrivateRoom(3)} {
		r.Broadcast(room, "after")
	}
	assert.Empty(t, conn.deliveries(), "unregistered connection must receive nothing")
	assert.Len(t, other.deliveries(), 3)
}

func TestPublishSkipsBroadcastOnProduceError(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	require.NoError(t, r.Register(conn, principal(1, "alice")))
	r.Subscribe(conn, GroupRoom(1))

	boom := errors.New("boom")
	err := r.Publish(GroupRoom(1), func() (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, conn.deliveries())
}

func TestJoinRepliesWithReplay(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	require.NoError(t, r.Register(conn, principal(1, "alice")))

	err := r.Join(GroupRoom(9), conn, func() (any, error) { return "history", nil })
	require.NoError(t, err)
	assert.Equal(t, []any{"history"}, conn.deliveries())

	r.Broadcast(GroupRoom(9), "live")
	assert.Equal(t, []any{"history", "live"}, conn.deliveries())
}

func TestDropRoom(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	require.NoError(t, r.Register(conn, principal(1, "alice")))
	r.Subscribe(conn, GroupRoom(4))

	r.DropRoom(GroupRoom(4))
	r.Broadcast(GroupRoom(4), "gone")
	assert.Empty(t, conn.deliveries())

	// The connection itself stays registered.
	_, ok := r.Lookup(conn)
	assert.True(t, ok)
}

func TestConcurrentSubscribeBroadcastUnregister(t *testing.T) {
	r := NewRegistry()
	room := GroupRoom(1)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		conn := &fakeConn{}
		require.NoError(t, r.Register(conn, principal(i, "user")))
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			r.Subscribe(c, room)
			r.Broadcast(room, "msg")
			r.Unregister(c)
		}(conn)
	}
	wg.Wait()

	// All connections gone; a final broadcast has nobody to reach.
	r.Broadcast(room, "final")
}
