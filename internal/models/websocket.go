package models

import (
	"encoding/json"
	"time"
)

type FrameType string

// Inbound frame types.
const (
	FrameJoinRoom  FrameType = "join_room"
	FrameLeaveRoom FrameType = "leave_room"
	FrameMessage   FrameType = "message"
	FrameTyping    FrameType = "typing"
	FramePing      FrameType = "ping"
)

// Outbound frame types. "message" and "typing" are shared with inbound.
const (
	FrameRoomJoined FrameType = "room_joined"
	FrameRoomLeft   FrameType = "room_left"
	FrameUserJoined FrameType = "user_joined"
	FrameUserLeft   FrameType = "user_left"
	FramePong       FrameType = "pong"
	FrameError      FrameType = "error"
)

type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
)

// Frame is the JSON envelope exchanged over the transport in both directions.
type Frame struct {
	Type      FrameType       `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Username  string          `json:"username,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	ID        string          `json:"id,omitempty"`
}

type JoinData struct {
	PIN string `json:"pin,omitempty"`
}

type MessageData struct {
	Content string      `json:"content"`
	Type    MessageKind `json:"type,omitempty"`
}

type TypingData struct {
	IsTyping *bool `json:"isTyping"`
}

type Participant struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type RoomJoinedData struct {
	Participants []Participant `json:"participants"`
}

// ChatMessage is a relayed chat message. The broker stamps it; persistence
// belongs to the Room/Session Store.
type ChatMessage struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"roomId"`
	Content    string      `json:"content"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       MessageKind `json:"type"`
}

type TypingEventData struct {
	IsTyping bool `json:"isTyping"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PresenceKind string

const (
	PresenceJoined PresenceKind = "joined"
	PresenceLeft   PresenceKind = "left"
)

// PresenceEvent reports a connection entering or leaving a room.
type PresenceEvent struct {
	Kind         PresenceKind
	ConnectionID string
	RoomID       string
	UserID       string
	Username     string
	At           time.Time
}

// FormatTimestamp renders timestamps the way every outbound frame carries them.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
