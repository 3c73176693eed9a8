package broker

import (
	"sync"
	"time"
)

type typingKey struct {
	roomID string
	userID string
}

// Indicator is an active typing indicator.
type Indicator struct {
	RoomID       string
	UserID       string
	Username     string
	ConnectionID string
	seq          uint64
}

type typingEntry struct {
	Indicator
	timer *time.Timer
}

// ExpireFunc is invoked from a timer goroutine when an indicator's auto-stop
// window elapses. The receiver must confirm with TypingCoordinator.Expire.
type ExpireFunc func(roomID, userID string, seq uint64)

// TypingCoordinator keeps at most one indicator per (room, user), each with a
// single cancel-and-replace auto-stop timer.
type TypingCoordinator struct {
	mu       sync.Mutex
	entries  map[typingKey]*typingEntry
	seq      uint64
	onExpire ExpireFunc
}

func NewTypingCoordinator(onExpire ExpireFunc) *TypingCoordinator {
	return &TypingCoordinator{
		entries:  make(map[typingKey]*typingEntry),
		onExpire: onExpire,
	}
}

// Start sets or refreshes the indicator and reschedules its auto-stop.
// It returns true only when the indicator is new.
func (c *TypingCoordinator) Start(roomID, userID, username, connID string, autoStopAfter time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := typingKey{roomID: roomID, userID: userID}
	c.seq++
	seq := c.seq

	entry, exists := c.entries[key]
	if exists {
		entry.timer.Stop()
	} else {
		entry = &typingEntry{}
		c.entries[key] = entry
	}
	entry.Indicator = Indicator{
		RoomID:       roomID,
		UserID:       userID,
		Username:     username,
		ConnectionID: connID,
		seq:          seq,
	}
	entry.timer = time.AfterFunc(autoStopAfter, func() {
		if c.onExpire != nil {
			c.onExpire(roomID, userID, seq)
		}
	})
	return !exists
}

// Stop cancels the pending auto-stop and removes the indicator. It reports
// whether an indicator was active.
func (c *TypingCoordinator) Stop(roomID, userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := typingKey{roomID: roomID, userID: userID}
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(c.entries, key)
	return true
}

// ClearForConnection removes the (room, user) indicator if connID owns it.
// Another tab of the same user leaving does not touch it.
func (c *TypingCoordinator) ClearForConnection(roomID, userID, connID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := typingKey{roomID: roomID, userID: userID}
	entry, ok := c.entries[key]
	if !ok || entry.ConnectionID != connID {
		return false
	}
	entry.timer.Stop()
	delete(c.entries, key)
	return true
}

// Expire removes the indicator if it is still the one scheduled under seq.
// A refreshed or stopped indicator makes this a no-op.
func (c *TypingCoordinator) Expire(roomID, userID string, seq uint64) (Indicator, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := typingKey{roomID: roomID, userID: userID}
	entry, ok := c.entries[key]
	if !ok || entry.seq != seq {
		return Indicator{}, false
	}
	delete(c.entries, key)
	return entry.Indicator, true
}

func (c *TypingCoordinator) Active(roomID, userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[typingKey{roomID: roomID, userID: userID}]
	return ok
}

func (c *TypingCoordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops every pending timer.
func (c *TypingCoordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		entry.timer.Stop()
		delete(c.entries, key)
	}
}
