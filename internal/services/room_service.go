package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"room-broker/internal/broker"
	"room-broker/internal/database"

	"golang.org/x/crypto/bcrypt"
)

// Refusals wrap broker.ErrRoomUnavailable so the reason reaches the client.
// Store failures do not.
var (
	ErrRoomNotFound = fmt.Errorf("%w: room not found", broker.ErrRoomUnavailable)
	ErrRoomExpired  = fmt.Errorf("%w: room has expired", broker.ErrRoomUnavailable)
	ErrInvalidPIN   = fmt.Errorf("%w: invalid PIN", broker.ErrRoomUnavailable)
)

// RoomService checks joins against the durable room record before the
// broker admits a connection.
type RoomService struct {
	db  database.RoomRepository
	now func() time.Time
}

func NewRoomService(db database.RoomRepository) *RoomService {
	return &RoomService{db: db, now: time.Now}
}

// Admit refuses joins to rooms that do not exist, have expired, or whose PIN
// does not match.
func (s *RoomService) Admit(ctx context.Context, roomID, userID, pin string) error {
	if roomID == "" {
		return ErrRoomNotFound
	}

	room, err := s.db.GetRoomByID(ctx, roomID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrRoomNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up room: %w", err)
	}

	if room.Expired(s.now()) {
		return ErrRoomExpired
	}

	if room.PINHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(room.PINHash), []byte(pin)); err != nil {
			return ErrInvalidPIN
		}
	}

	return nil
}

// HashPIN returns the bcrypt hash stored in rooms.pin_hash.
func HashPIN(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash PIN: %w", err)
	}
	return string(hash), nil
}
