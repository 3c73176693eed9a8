package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"room-broker/internal/models"
	"room-broker/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

type PostgresDB struct {
	pool *pgxpool.Pool
}

var _ Database = (*PostgresDB)(nil)

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

// Migrate creates the store tables if they do not exist yet.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Room Repository Implementation
func (db *PostgresDB) GetRoomByID(ctx context.Context, id string) (*models.Room, error) {
	query := `SELECT id, name, pin_hash, created_at, expires_at FROM rooms WHERE id = $1`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.Name, &room.PINHash, &room.CreatedAt, &room.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", id, err)
	}

	return room, nil
}

// Message Repository Implementation
func (db *PostgresDB) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	query := `
		INSERT INTO messages (id, room_id, sender_id, sender_name, content, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.Content, string(msg.Type), msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save message %s: %w", msg.ID, err)
	}
	return nil
}

// Session Repository Implementation
func (db *PostgresDB) CreateActiveSession(ctx context.Context, s *models.ActiveSession) error {
	query := `
		INSERT INTO active_sessions (connection_id, room_id, user_id, username, connected_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (connection_id)
		DO UPDATE SET room_id = EXCLUDED.room_id, user_id = EXCLUDED.user_id,
			username = EXCLUDED.username, last_seen = EXCLUDED.last_seen`

	_, err := db.pool.Exec(ctx, query, s.ConnectionID, s.RoomID, s.UserID, s.Username, s.ConnectedAt, s.LastSeen)
	return err
}

func (db *PostgresDB) RemoveActiveSession(ctx context.Context, connectionID string) error {
	query := `DELETE FROM active_sessions WHERE connection_id = $1`
	_, err := db.pool.Exec(ctx, query, connectionID)
	return err
}

// ClearActiveSessions drops every session row. Sessions are process-local,
// so rows found at startup were left behind by a previous process.
func (db *PostgresDB) ClearActiveSessions(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM active_sessions`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
