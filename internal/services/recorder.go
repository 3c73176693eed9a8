package services

import (
	"context"
	"sync"
	"time"

	"room-broker/internal/database"
	"room-broker/internal/models"
	"room-broker/pkg/logger"
)

const writeTimeout = 5 * time.Second

type record struct {
	message  *models.ChatMessage
	presence *models.PresenceEvent
}

type recorderStore interface {
	database.MessageRepository
	database.SessionRepository
}

// Recorder writes relayed messages and presence changes to the store from a
// single background goroutine. Enqueueing never blocks; when the queue is
// full the event is dropped.
type Recorder struct {
	db      recorderStore
	queue   chan record
	dropped uint64
	mu      sync.Mutex
	closed  bool
}

func NewRecorder(db recorderStore, queueSize int) *Recorder {
	return &Recorder{
		db:    db,
		queue: make(chan record, queueSize),
	}
}

func (r *Recorder) MessageRelayed(msg models.ChatMessage) {
	r.enqueue(record{message: &msg})
}

func (r *Recorder) PresenceChanged(ev models.PresenceEvent) {
	r.enqueue(record{presence: &ev})
}

func (r *Recorder) enqueue(rec record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.dropped++
		logger.Warn("Recorder queue full, dropped event (%d dropped so far)", r.dropped)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Run drains the queue until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-ctx.Done():
			r.mu.Lock()
			r.closed = true
			r.mu.Unlock()
			for {
				select {
				case rec := <-r.queue:
					r.write(rec)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(rec record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	switch {
	case rec.message != nil:
		if err := r.db.SaveMessage(ctx, rec.message); err != nil {
			logger.Error("Error saving message: %v", err)
		}
	case rec.presence != nil:
		ev := rec.presence
		var err error
		if ev.Kind == models.PresenceJoined {
			err = r.db.CreateActiveSession(ctx, &models.ActiveSession{
				ConnectionID: ev.ConnectionID,
				RoomID:       ev.RoomID,
				UserID:       ev.UserID,
				Username:     ev.Username,
				ConnectedAt:  ev.At,
				LastSeen:     ev.At,
			})
		} else {
			err = r.db.RemoveActiveSession(ctx, ev.ConnectionID)
		}
		if err != nil {
			logger.Error("Error recording %s presence for %s: %v", ev.Kind, ev.ConnectionID, err)
		}
	}
}
