package broker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Transport is the write side of one live client session.
// Send must not block; a full or closed transport returns an error.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// Connection is a snapshot of one registered session.
type Connection struct {
	ID          string
	UserID      string
	Username    string
	RoomID      string
	Verified    bool
	ConnectedAt time.Time
	LastPong    time.Time
	Alive       bool
}

func (c Connection) Identified() bool {
	return c.UserID != ""
}

func (c Connection) InRoom() bool {
	return c.RoomID != ""
}

type connEntry struct {
	Connection
	transport Transport
	limiter   *rate.Limiter
}

// Registry owns every live connection and its liveness state.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]*connEntry
	newID      func() string
	newLimiter func() *rate.Limiter
}

// NewRegistry creates a registry. newLimiter may be nil to disable rate limiting.
func NewRegistry(newLimiter func() *rate.Limiter) *Registry {
	return &Registry{
		conns:      make(map[string]*connEntry),
		newID:      uuid.NewString,
		newLimiter: newLimiter,
	}
}

func (r *Registry) Register(t Transport, now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	entry := &connEntry{
		Connection: Connection{
			ID:          id,
			ConnectedAt: now,
			LastPong:    now,
			Alive:       true,
		},
		transport: t,
	}
	if r.newLimiter != nil {
		entry.limiter = r.newLimiter()
	}
	r.conns[id] = entry
	return id
}

func (r *Registry) Get(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return entry.Connection, true
}

func (r *Registry) BindIdentity(id, userID, username string) error {
	return r.update(id, func(e *connEntry) {
		e.UserID = userID
		e.Username = username
	})
}

// BindVerified binds an identity that came from a verified token; it survives leaving a room.
func (r *Registry) BindVerified(id, userID, username string) error {
	return r.update(id, func(e *connEntry) {
		e.UserID = userID
		e.Username = username
		e.Verified = true
	})
}

// ClearIdentity drops a client-asserted identity. Verified identities are kept.
func (r *Registry) ClearIdentity(id string) error {
	return r.update(id, func(e *connEntry) {
		if !e.Verified {
			e.UserID = ""
			e.Username = ""
		}
	})
}

func (r *Registry) SetRoom(id, roomID string) error {
	return r.update(id, func(e *connEntry) {
		e.RoomID = roomID
	})
}

// MarkPong records a heartbeat. Unknown ids are ignored, the connection is already gone.
func (r *Registry) MarkPong(id string, now time.Time) {
	_ = r.update(id, func(e *connEntry) {
		e.LastPong = now
	})
}

// Allow reports whether the connection may relay another chat message at now.
func (r *Registry) Allow(id string, now time.Time) bool {
	r.mu.RLock()
	entry, ok := r.conns[id]
	r.mu.RUnlock()

	if !ok || entry.limiter == nil {
		return ok
	}
	return entry.limiter.AllowN(now, 1)
}

// Send writes pre-encoded data to the connection's transport.
// ErrConnectionClosed means the caller should evict, not retry.
func (r *Registry) Send(id string, data []byte) error {
	r.mu.RLock()
	entry, ok := r.conns[id]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	if err := entry.transport.Send(data); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

// Evict closes the transport and forgets the connection. It is idempotent;
// the returned snapshot is only valid when ok is true.
func (r *Registry) Evict(id string) (Connection, bool) {
	r.mu.Lock()
	entry, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if !ok {
		return Connection{}, false
	}
	_ = entry.transport.Close()
	entry.Alive = false
	return entry.Connection, true
}

// SweepDead evicts every connection silent for longer than maxSilence and
// returns them, oldest heartbeat first.
func (r *Registry) SweepDead(now time.Time, maxSilence time.Duration) []Connection {
	r.mu.Lock()
	var dead []*connEntry
	for id, entry := range r.conns {
		if now.Sub(entry.LastPong) > maxSilence {
			dead = append(dead, entry)
			delete(r.conns, id)
		}
	}
	r.mu.Unlock()

	sort.Slice(dead, func(i, j int) bool {
		return dead[i].LastPong.Before(dead[j].LastPong)
	})

	evicted := make([]Connection, 0, len(dead))
	for _, entry := range dead {
		_ = entry.transport.Close()
		entry.Alive = false
		evicted = append(evicted, entry.Connection)
	}
	return evicted
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) update(id string, fn func(*connEntry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	fn(entry)
	return nil
}
