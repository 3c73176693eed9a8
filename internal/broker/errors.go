package broker

import "errors"

var (
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrNotInRoom         = errors.New("not in a room")
	ErrRoomFull          = errors.New("room is full")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrRateLimited       = errors.New("rate limit exceeded, please slow down")
	ErrIdentityMismatch  = errors.New("user id does not match authenticated identity")
	ErrRoomUnavailable   = errors.New("room unavailable")
)

// errorCode maps a handler error to the code carried by the outbound error frame.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrMalformedFrame):
		return "MALFORMED_FRAME"
	case errors.Is(err, ErrNotInRoom):
		return "NOT_IN_ROOM"
	case errors.Is(err, ErrRoomFull):
		return "ROOM_FULL"
	case errors.Is(err, ErrInvalidMessage):
		return "INVALID_MESSAGE"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrIdentityMismatch):
		return "IDENTITY_MISMATCH"
	case errors.Is(err, ErrRoomUnavailable):
		return "ROOM_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
