package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"room-broker/internal/config"
	"room-broker/internal/models"
	"room-broker/pkg/logger"
)

// Gate admits or refuses a join before any broker state changes.
// It may block on I/O and is never called with the broker lock held.
// Refusals meant for the client should wrap ErrRoomUnavailable.
type Gate interface {
	Admit(ctx context.Context, roomID, userID, pin string) error
}

// Recorder receives relayed messages and presence changes. Calls happen
// under the broker lock and must not block.
type Recorder interface {
	MessageRelayed(msg models.ChatMessage)
	PresenceChanged(ev models.PresenceEvent)
}

// Broker routes inbound frames, keeps room and typing state, and fans
// events out to room members. All state changes are serialized by mu.
type Broker struct {
	mu     sync.Mutex
	cfg    config.BrokerConfig
	conns  *Registry
	rooms  *Directory
	typing *TypingCoordinator

	gate     Gate
	recorder Recorder
	now      func() time.Time
	newID    func() string

	// connections whose transport failed mid fan-out, disconnected once the
	// current handler finishes
	pendingDrops []string
}

type Option func(*Broker)

func WithGate(g Gate) Option {
	return func(b *Broker) { b.gate = g }
}

func WithRecorder(r Recorder) Option {
	return func(b *Broker) { b.recorder = r }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// WithIDGenerator replaces the message id generator, for tests.
func WithIDGenerator(newID func() string) Option {
	return func(b *Broker) { b.newID = newID }
}

func New(cfg config.BrokerConfig, opts ...Option) *Broker {
	b := &Broker{
		cfg:   cfg,
		rooms: NewDirectory(cfg.MaxParticipantsPerRoom),
		now:   time.Now,
		newID: uuid.NewString,
	}

	var newLimiter func() *rate.Limiter
	if cfg.MessageRateLimit > 0 {
		newLimiter = func() *rate.Limiter {
			return rate.NewLimiter(rate.Limit(cfg.MessageRateLimit), cfg.MessageBurst)
		}
	}
	b.conns = NewRegistry(newLimiter)
	b.typing = NewTypingCoordinator(b.onTypingExpired)

	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register accepts a new transport and returns its connection id.
func (b *Broker) Register(t Transport) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.conns.Register(t, b.now())
	logger.Debug("Connection %s registered", id)
	return id
}

// Authenticate binds a verified identity to a connection before it joins a room.
func (b *Broker) Authenticate(connID, userID, username string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conns.BindVerified(connID, userID, username)
}

// HandleFrame processes one raw inbound frame from connID. Errors are
// answered with an error frame to that connection only.
func (b *Broker) HandleFrame(ctx context.Context, connID string, raw []byte) {
	var frame models.Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
		b.reject(connID, fmt.Errorf("%w: expected a JSON object with a type", ErrMalformedFrame))
		return
	}

	if frame.Type == models.FrameJoinRoom && b.gate != nil {
		if err := b.admit(ctx, connID, frame); err != nil {
			b.reject(connID, err)
			return
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	conn, ok := b.conns.Get(connID)
	if !ok {
		logger.Debug("Dropping %s frame from unknown connection %s", frame.Type, connID)
		return
	}

	logger.Debug("Connection %s sent %s", connID, frame.Type)
	if err := b.dispatch(conn, frame); err != nil {
		b.replyErrorLocked(connID, err)
	}
	b.drainDropsLocked()
}

// Disconnect runs the leave cascade for a closed transport and evicts it.
// It is safe to call more than once.
func (b *Broker) Disconnect(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.disconnectLocked(connID, "transport closed")
	b.drainDropsLocked()
}

// Stats returns the number of directory rooms and live connections.
func (b *Broker) Stats() (rooms, connections int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rooms.Len(), b.conns.Len()
}

// Participants lists the distinct identities currently in roomID.
func (b *Broker) Participants(roomID string) []models.Participant {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.participantsLocked(roomID)
}

// Close evicts every connection and stops all typing timers.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range b.conns.IDs() {
		b.conns.Evict(id)
	}
	b.typing.Close()
	b.pendingDrops = nil
	logger.Info("Broker closed")
}

// admit validates the join shape, then asks the gate. Gate errors wrapping
// ErrRoomUnavailable reach the client as is; anything else is logged and
// reported as a bare ErrRoomUnavailable.
func (b *Broker) admit(ctx context.Context, connID string, frame models.Frame) error {
	conn, ok := b.conns.Get(connID)
	if !ok {
		// Dropped once dispatch finds the connection gone.
		return nil
	}
	req, err := validateJoin(conn, frame)
	if err != nil {
		return err
	}

	var data models.JoinData
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return fmt.Errorf("%w: invalid join data", ErrMalformedFrame)
		}
	}

	if err := b.gate.Admit(ctx, req.roomID, req.userID, data.PIN); err != nil {
		if errors.Is(err, ErrRoomUnavailable) {
			return err
		}
		logger.Error("Admission check for room %s failed: %v", req.roomID, err)
		return ErrRoomUnavailable
	}
	return nil
}

func (b *Broker) reject(connID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.replyErrorLocked(connID, err)
	b.drainDropsLocked()
}

func (b *Broker) replyErrorLocked(connID string, err error) {
	if errors.Is(err, ErrMalformedFrame) {
		logger.Warn("Malformed frame from %s: %v", connID, err)
	} else {
		logger.Debug("Rejected frame from %s: %v", connID, err)
	}

	data, _ := json.Marshal(models.ErrorData{Code: errorCode(err), Message: err.Error()})
	b.sendLocked(connID, models.Frame{
		Type:      models.FrameError,
		Data:      data,
		Timestamp: models.FormatTimestamp(b.now()),
	})
}

func (b *Broker) sendLocked(connID string, frame models.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("Failed to marshal %s frame: %v", frame.Type, err)
		return
	}
	if err := b.conns.Send(connID, data); err != nil {
		b.handleSendError(connID, err)
	}
}

// broadcastLocked sends frame to every member of roomID except exclude.
// A failed recipient is queued for disconnect; delivery to the rest continues.
func (b *Broker) broadcastLocked(roomID string, frame models.Frame, exclude string) {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("Failed to marshal %s frame: %v", frame.Type, err)
		return
	}
	for _, id := range b.rooms.Members(roomID) {
		if id == exclude {
			continue
		}
		if err := b.conns.Send(id, data); err != nil {
			b.handleSendError(id, err)
		}
	}
}

func (b *Broker) handleSendError(connID string, err error) {
	if errors.Is(err, ErrUnknownConnection) {
		logger.Debug("Send skipped: %v", err)
		return
	}
	logger.Warn("Send to %s failed, scheduling disconnect: %v", connID, err)
	b.pendingDrops = append(b.pendingDrops, connID)
}

func (b *Broker) drainDropsLocked() {
	for len(b.pendingDrops) > 0 {
		id := b.pendingDrops[0]
		b.pendingDrops = b.pendingDrops[1:]
		b.disconnectLocked(id, "send failed")
	}
}

func (b *Broker) disconnectLocked(connID, reason string) {
	conn, ok := b.conns.Get(connID)
	if !ok {
		return
	}
	if conn.InRoom() {
		b.leaveRoomLocked(conn)
	}
	b.conns.Evict(connID)
	logger.Info("Connection %s (%s) disconnected: %s", connID, conn.Username, reason)
}

// leaveRoomLocked removes conn from its room, clears its typing indicator
// and tells the remaining members.
func (b *Broker) leaveRoomLocked(conn Connection) {
	now := b.now()
	roomID := conn.RoomID

	if empty := b.rooms.Leave(roomID, conn.ID, now); empty {
		logger.Debug("Room %s is empty, awaiting idle sweep", roomID)
	}
	cleared := b.typing.ClearForConnection(roomID, conn.UserID, conn.ID)
	_ = b.conns.SetRoom(conn.ID, "")
	if cleared && b.userInRoomLocked(roomID, conn.UserID) {
		// The user is still shown as present through another connection.
		b.broadcastTypingLocked(roomID, conn.UserID, conn.Username, conn.ID, false)
	}

	b.broadcastLocked(roomID, models.Frame{
		Type:      models.FrameUserLeft,
		RoomID:    roomID,
		UserID:    conn.UserID,
		Username:  conn.Username,
		Timestamp: models.FormatTimestamp(now),
	}, conn.ID)

	if b.recorder != nil {
		b.recorder.PresenceChanged(models.PresenceEvent{
			Kind:         models.PresenceLeft,
			ConnectionID: conn.ID,
			RoomID:       roomID,
			UserID:       conn.UserID,
			Username:     conn.Username,
			At:           now,
		})
	}
	logger.Info("User %s left room %s", conn.Username, roomID)
}

func (b *Broker) userInRoomLocked(roomID, userID string) bool {
	for _, id := range b.rooms.Members(roomID) {
		if conn, ok := b.conns.Get(id); ok && conn.UserID == userID {
			return true
		}
	}
	return false
}

func (b *Broker) participantsLocked(roomID string) []models.Participant {
	seen := make(map[string]bool)
	participants := make([]models.Participant, 0)
	for _, id := range b.rooms.Members(roomID) {
		conn, ok := b.conns.Get(id)
		if !ok || !conn.Identified() || seen[conn.UserID] {
			continue
		}
		seen[conn.UserID] = true
		participants = append(participants, models.Participant{UserID: conn.UserID, Username: conn.Username})
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Username != participants[j].Username {
			return participants[i].Username < participants[j].Username
		}
		return participants[i].UserID < participants[j].UserID
	})
	return participants
}

func (b *Broker) onTypingExpired(roomID, userID string, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ind, ok := b.typing.Expire(roomID, userID, seq)
	if !ok {
		return
	}
	b.broadcastTypingLocked(ind.RoomID, ind.UserID, ind.Username, ind.ConnectionID, false)
	b.drainDropsLocked()
}
