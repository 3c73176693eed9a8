package models

import "time"

// Room is the durable room record owned by the Room/Session Store.
type Room struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	PINHash   string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (r *Room) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

type ActiveSession struct {
	ConnectionID string    `json:"connection_id"`
	RoomID       string    `json:"room_id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastSeen     time.Time `json:"last_seen"`
}

type ActiveUser struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}
