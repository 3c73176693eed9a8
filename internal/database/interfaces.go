package database

import (
	"context"
	"errors"

	"room-broker/internal/models"
)

var ErrNotFound = errors.New("record not found")

type RoomRepository interface {
	GetRoomByID(ctx context.Context, id string) (*models.Room, error)
}

type MessageRepository interface {
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
}

type SessionRepository interface {
	CreateActiveSession(ctx context.Context, session *models.ActiveSession) error
	RemoveActiveSession(ctx context.Context, connectionID string) error
	ClearActiveSessions(ctx context.Context) (int64, error)
}

type Database interface {
	RoomRepository
	MessageRepository
	SessionRepository
	Close() error
}
