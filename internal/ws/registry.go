package ws

import (
	"errors"
	"sync"

	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

var ErrDuplicateConnection = errors.New("connection already registered")

// Sender is the registry's view of a live connection. Send must not block:
// implementations enqueue into a buffered channel and fail fast when the
// consumer cannot keep up, which the registry treats as a dead connection.
type Sender interface {
	Send(payload any) error
	Close()
}

// Registry tracks live connections, their principals, and the rooms each
// connection subscribes to. It is the only structure mutated concurrently by
// every connection-handling goroutine.
//
// Two locks are in play. The registry mutex guards the connection and room
// maps. Each room additionally has an ordering lock serializing broadcasts
// and joins for that room only, so a join installs its subscription and
// replays history atomically with respect to that room's fan-out while
// unrelated rooms proceed untouched.
type Registry struct {
	mu    sync.RWMutex
	conns map[Sender]models.Principal
	rooms map[RoomKey]map[Sender]struct{}
	order map[RoomKey]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[Sender]models.Principal),
		rooms: make(map[RoomKey]map[Sender]struct{}),
		order: make(map[RoomKey]*sync.Mutex),
	}
}

func (r *Registry) Register(s Sender, p models.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[s]; exists {
		return ErrDuplicateConnection
	}
	r.conns[s] = p
	return nil
}

func (r *Registry) Lookup(s Sender) (models.Principal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.conns[s]
	return p, ok
}

// Subscribe adds the connection to a room. Idempotent; a no-op for
// connections that never registered.
func (r *Registry) Subscribe(s Sender, room RoomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribeLocked(s, room)
}

func (r *Registry) subscribeLocked(s Sender, room RoomKey) {
	if _, ok := r.conns[s]; !ok {
		return
	}
	subs, ok := r.rooms[room]
	if !ok {
		subs = make(map[Sender]struct{})
		r.rooms[room] = subs
	}
	subs[s] = struct{}{}
}

// Unregister removes the connection from every room and from the registry.
// Safe to call multiple times.
func (r *Registry) Unregister(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, s)
	for room, subs := range r.rooms {
		delete(subs, s)
		if len(subs) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Broadcast delivers payload to every connection subscribed to the room at
// the time of the call. Best effort per connection: a failed send evicts that
// connection and delivery to the rest continues.
func (r *Registry) Broadcast(room RoomKey, payload any) {
	lock := r.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	r.deliver(room, payload)
}

// Publish persists-then-announces as one unit: produce runs (typically a
// storage write) and its result is broadcast, all under the room's ordering
// lock. A join of the same room happens either strictly before or strictly
// after, so a joiner sees the message in its history replay or live, never
// both and never neither.
func (r *Registry) Publish(room RoomKey, produce func() (any, error)) error {
	lock := r.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	payload, err := produce()
	if err != nil {
		return err
	}
	r.deliver(room, payload)
	return nil
}

// Join subscribes the connection and sends it the reply produced by replay
// (the room's history), atomically with respect to the room's broadcasts.
func (r *Registry) Join(room RoomKey, s Sender, replay func() (any, error)) error {
	lock := r.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	r.subscribeLocked(s, room)
	r.mu.Unlock()

	reply, err := replay()
	if err != nil {
		return err
	}
	return s.Send(reply)
}

// DropRoom discards a room's subscriptions, e.g. after its chat is deleted.
func (r *Registry) DropRoom(room RoomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, room)
}

func (r *Registry) deliver(room RoomKey, payload any) {
	r.mu.RLock()
	snapshot := make([]Sender, 0, len(r.rooms[room]))
	for s := range r.rooms[room] {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	var failed []Sender
	for _, s := range snapshot {
		if err := s.Send(payload); err != nil {
			logger.Error("Dropping connection after failed send to %s: %v", room, err)
			failed = append(failed, s)
		}
	}
	for _, s := range failed {
		r.Unregister(s)
		s.Close()
	}
}

func (r *Registry) roomLock(room RoomKey) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.order[room]
	if !ok {
		lock = &sync.Mutex{}
		r.order[room] = lock
	}
	return lock
}
