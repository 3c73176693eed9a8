package broker

import (
	"sort"
	"sync"
	"time"
)

type room struct {
	id           string
	members      map[string]struct{}
	createdAt    time.Time
	lastActivity time.Time
}

// RoomInfo is a read-only view of a directory entry.
type RoomInfo struct {
	ID           string
	Members      int
	CreatedAt    time.Time
	LastActivity time.Time
}

// Directory tracks live room membership and activity. Rooms are created on
// first join and only removed by SweepIdle once empty and idle.
type Directory struct {
	mu              sync.RWMutex
	rooms           map[string]*room
	maxParticipants int
}

// NewDirectory creates a directory. maxParticipants <= 0 means unlimited.
func NewDirectory(maxParticipants int) *Directory {
	return &Directory{
		rooms:           make(map[string]*room),
		maxParticipants: maxParticipants,
	}
}

// CanJoin reports whether connID could join roomID without exceeding capacity.
func (d *Directory) CanJoin(roomID, connID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.canJoin(d.rooms[roomID], connID)
}

func (d *Directory) canJoin(r *room, connID string) bool {
	if d.maxParticipants <= 0 || r == nil {
		return true
	}
	if _, ok := r.members[connID]; ok {
		return true
	}
	return len(r.members) < d.maxParticipants
}

// Join adds connID to roomID, creating the room if needed, and returns the
// resulting member ids.
func (d *Directory) Join(roomID, connID string, now time.Time) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[roomID]
	if !d.canJoin(r, connID) {
		return nil, ErrRoomFull
	}
	if !ok {
		r = &room{
			id:        roomID,
			members:   make(map[string]struct{}),
			createdAt: now,
		}
		d.rooms[roomID] = r
	}
	r.members[connID] = struct{}{}
	r.lastActivity = now
	return sortedMembers(r), nil
}

// Leave removes connID from roomID and reports whether the room is now empty.
// An empty room stays until SweepIdle reclaims it.
func (d *Directory) Leave(roomID, connID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	delete(r.members, connID)
	r.lastActivity = now
	return len(r.members) == 0
}

// Members returns the member ids of roomID; unknown rooms have none.
func (d *Directory) Members(roomID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	return sortedMembers(r)
}

func (d *Directory) Touch(roomID string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.rooms[roomID]; ok {
		r.lastActivity = now
	}
}

func (d *Directory) Get(roomID string) (RoomInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[roomID]
	if !ok {
		return RoomInfo{}, false
	}
	return RoomInfo{
		ID:           r.id,
		Members:      len(r.members),
		CreatedAt:    r.createdAt,
		LastActivity: r.lastActivity,
	}, true
}

// SweepIdle deletes empty rooms whose last activity is older than maxIdle
// and returns their ids.
func (d *Directory) SweepIdle(now time.Time, maxIdle time.Duration) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var removed []string
	for id, r := range d.rooms {
		if len(r.members) == 0 && now.Sub(r.lastActivity) > maxIdle {
			delete(d.rooms, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

func sortedMembers(r *room) []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
