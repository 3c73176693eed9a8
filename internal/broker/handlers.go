package broker

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"room-broker/internal/models"
	"room-broker/pkg/logger"
)

func (b *Broker) dispatch(conn Connection, frame models.Frame) error {
	switch frame.Type {
	case models.FrameJoinRoom:
		return b.handleJoin(conn, frame)
	case models.FrameLeaveRoom:
		return b.handleLeave(conn)
	case models.FrameMessage:
		return b.handleMessage(conn, frame)
	case models.FrameTyping:
		return b.handleTyping(conn, frame)
	case models.FramePing:
		return b.handlePing(conn)
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrMalformedFrame, frame.Type)
	}
}

type joinRequest struct {
	roomID   string
	userID   string
	username string
}

// validateJoin checks the shape of a join_room frame against conn's identity.
func validateJoin(conn Connection, frame models.Frame) (joinRequest, error) {
	req := joinRequest{
		roomID:   strings.TrimSpace(frame.RoomID),
		userID:   strings.TrimSpace(frame.UserID),
		username: strings.TrimSpace(frame.Username),
	}
	if req.roomID == "" {
		return req, fmt.Errorf("%w: roomId is required", ErrMalformedFrame)
	}

	if conn.Verified {
		if req.userID != "" && req.userID != conn.UserID {
			return req, ErrIdentityMismatch
		}
		req.userID = conn.UserID
		req.username = conn.Username
	} else if req.userID == "" || req.username == "" {
		return req, fmt.Errorf("%w: userId and username are required", ErrMalformedFrame)
	}
	return req, nil
}

func (b *Broker) handleJoin(conn Connection, frame models.Frame) error {
	req, err := validateJoin(conn, frame)
	if err != nil {
		return err
	}
	roomID, userID, username := req.roomID, req.userID, req.username

	// Checked before the implicit leave so a refused join leaves the
	// connection where it was.
	if !b.rooms.CanJoin(roomID, conn.ID) {
		return ErrRoomFull
	}

	if conn.RoomID == roomID && conn.UserID == userID && conn.Username == username {
		b.rooms.Touch(roomID, b.now())
		b.replyRoomJoinedLocked(conn.ID, roomID)
		return nil
	}

	// Moving rooms, or rejoining under another identity, leaves first.
	if conn.InRoom() {
		b.leaveRoomLocked(conn)
	}

	if err := b.conns.BindIdentity(conn.ID, userID, username); err != nil {
		return err
	}
	now := b.now()
	if _, err := b.rooms.Join(roomID, conn.ID, now); err != nil {
		return err
	}
	if err := b.conns.SetRoom(conn.ID, roomID); err != nil {
		return err
	}

	b.replyRoomJoinedLocked(conn.ID, roomID)
	b.broadcastLocked(roomID, models.Frame{
		Type:      models.FrameUserJoined,
		RoomID:    roomID,
		UserID:    userID,
		Username:  username,
		Timestamp: models.FormatTimestamp(now),
	}, conn.ID)

	if b.recorder != nil {
		b.recorder.PresenceChanged(models.PresenceEvent{
			Kind:         models.PresenceJoined,
			ConnectionID: conn.ID,
			RoomID:       roomID,
			UserID:       userID,
			Username:     username,
			At:           now,
		})
	}
	logger.Info("User %s joined room %s", username, roomID)
	return nil
}

func (b *Broker) replyRoomJoinedLocked(connID, roomID string) {
	data, _ := json.Marshal(models.RoomJoinedData{Participants: b.participantsLocked(roomID)})
	b.sendLocked(connID, models.Frame{
		Type:      models.FrameRoomJoined,
		RoomID:    roomID,
		Data:      data,
		Timestamp: models.FormatTimestamp(b.now()),
	})
}

func (b *Broker) handleLeave(conn Connection) error {
	if !conn.InRoom() {
		return ErrNotInRoom
	}

	b.leaveRoomLocked(conn)
	if err := b.conns.ClearIdentity(conn.ID); err != nil {
		return err
	}
	b.sendLocked(conn.ID, models.Frame{
		Type:      models.FrameRoomLeft,
		RoomID:    conn.RoomID,
		Timestamp: models.FormatTimestamp(b.now()),
	})
	return nil
}

func (b *Broker) handleMessage(conn Connection, frame models.Frame) error {
	if !conn.InRoom() {
		return ErrNotInRoom
	}

	var data models.MessageData
	if len(frame.Data) == 0 {
		return fmt.Errorf("%w: message data is required", ErrMalformedFrame)
	}
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		return fmt.Errorf("%w: invalid message data", ErrMalformedFrame)
	}

	kind := data.Type
	switch kind {
	case "":
		kind = models.MessageKindText
	case models.MessageKindText, models.MessageKindImage:
	default:
		return fmt.Errorf("%w: unsupported message type %q", ErrMalformedFrame, kind)
	}

	content := strings.TrimSpace(data.Content)
	if content == "" {
		return fmt.Errorf("%w: message content is required", ErrInvalidMessage)
	}
	if n := utf8.RuneCountInString(content); n > b.cfg.MaxMessageLength {
		return fmt.Errorf("%w: message is %d characters, limit is %d", ErrInvalidMessage, n, b.cfg.MaxMessageLength)
	}

	now := b.now()
	if !b.conns.Allow(conn.ID, now) {
		return ErrRateLimited
	}

	msg := models.ChatMessage{
		ID:         b.newID(),
		RoomID:     conn.RoomID,
		Content:    content,
		SenderID:   conn.UserID,
		SenderName: conn.Username,
		Timestamp:  now.UTC(),
		Type:       kind,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	b.rooms.Touch(conn.RoomID, now)
	// The sender gets the same echo as everyone else.
	b.broadcastLocked(conn.RoomID, models.Frame{
		Type:      models.FrameMessage,
		RoomID:    conn.RoomID,
		UserID:    conn.UserID,
		Username:  conn.Username,
		ID:        msg.ID,
		Data:      payload,
		Timestamp: models.FormatTimestamp(now),
	}, "")

	if b.recorder != nil {
		b.recorder.MessageRelayed(msg)
	}
	return nil
}

func (b *Broker) handleTyping(conn Connection, frame models.Frame) error {
	if !conn.InRoom() || !conn.Identified() {
		return nil
	}

	var data models.TypingData
	if err := json.Unmarshal(frame.Data, &data); err != nil || data.IsTyping == nil {
		return fmt.Errorf("%w: typing data needs isTyping", ErrMalformedFrame)
	}

	if *data.IsTyping {
		if b.typing.Start(conn.RoomID, conn.UserID, conn.Username, conn.ID, b.cfg.TypingAutoStop) {
			b.broadcastTypingLocked(conn.RoomID, conn.UserID, conn.Username, conn.ID, true)
		}
		return nil
	}

	b.typing.Stop(conn.RoomID, conn.UserID)
	b.broadcastTypingLocked(conn.RoomID, conn.UserID, conn.Username, conn.ID, false)
	return nil
}

func (b *Broker) broadcastTypingLocked(roomID, userID, username, exclude string, isTyping bool) {
	data, _ := json.Marshal(models.TypingEventData{IsTyping: isTyping})
	b.broadcastLocked(roomID, models.Frame{
		Type:      models.FrameTyping,
		RoomID:    roomID,
		UserID:    userID,
		Username:  username,
		Data:      data,
		Timestamp: models.FormatTimestamp(b.now()),
	}, exclude)
}

func (b *Broker) handlePing(conn Connection) error {
	now := b.now()
	b.conns.MarkPong(conn.ID, now)
	b.sendLocked(conn.ID, models.Frame{
		Type:      models.FramePong,
		Timestamp: models.FormatTimestamp(now),
	})
	return nil
}
