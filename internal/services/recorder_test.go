package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-broker/internal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	messages []*models.ChatMessage
	sessions map[string]*models.ActiveSession
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*models.ActiveSession)}
}

func (f *fakeStore) SaveMessage(_ context.Context, msg *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeStore) CreateActiveSession(_ context.Context, s *models.ActiveSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ConnectionID] = s
	return nil
}

func (f *fakeStore) RemoveActiveSession(_ context.Context, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, connectionID)
	return nil
}

func (f *fakeStore) ClearActiveSessions(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.sessions))
	f.sessions = make(map[string]*models.ActiveSession)
	return n, nil
}

func (f *fakeStore) counts() (messages, sessions int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages), len(f.sessions)
}

func TestRecorder_WritesEvents(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(store, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = rec.Run(ctx)
		close(done)
	}()

	now := time.Now()
	rec.PresenceChanged(models.PresenceEvent{Kind: models.PresenceJoined, ConnectionID: "c1", RoomID: "r1", UserID: "u1", Username: "alice", At: now})
	rec.PresenceChanged(models.PresenceEvent{Kind: models.PresenceJoined, ConnectionID: "c2", RoomID: "r1", UserID: "u2", Username: "bob", At: now})
	rec.MessageRelayed(models.ChatMessage{ID: "m1", RoomID: "r1", Content: "hi", SenderID: "u1"})
	rec.PresenceChanged(models.PresenceEvent{Kind: models.PresenceLeft, ConnectionID: "c2", RoomID: "r1"})

	require.Eventually(t, func() bool {
		m, s := store.counts()
		return m == 1 && s == 1
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	assert.Equal(t, "alice", store.sessions["c1"].Username)
	assert.Equal(t, "hi", store.messages[0].Content)
	store.mu.Unlock()

	cancel()
	<-done
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	rec := NewRecorder(newFakeStore(), 2)

	for i := 0; i < 5; i++ {
		rec.MessageRelayed(models.ChatMessage{ID: "m"})
	}

	assert.Equal(t, uint64(3), rec.Dropped())
}

func TestRecorder_FlushesOnShutdown(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(store, 8)
	rec.MessageRelayed(models.ChatMessage{ID: "m1"})
	rec.MessageRelayed(models.ChatMessage{ID: "m2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	m, _ := store.counts()
	assert.Equal(t, 2, m)

	rec.MessageRelayed(models.ChatMessage{ID: "late"})
	assert.Equal(t, uint64(0), rec.Dropped(), "events after shutdown are ignored, not counted")
}

func TestRecorder_StoreErrorsAreSwallowed(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	rec := NewRecorder(store, 4)
	rec.MessageRelayed(models.ChatMessage{ID: "m1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, rec.Run(ctx))
}
