package handlers

import (
	"net/http"

	"room-broker/internal/auth"
	"room-broker/internal/config"
	"room-broker/internal/models"
	ws "room-broker/internal/websocket"
	"room-broker/pkg/logger"

	"github.com/gorilla/websocket"
)

// Broker is what the HTTP layer needs from the message broker.
type Broker interface {
	ws.FrameHandler
	Authenticate(connID, userID, username string) error
	Stats() (rooms, connections int)
	Participants(roomID string) []models.Participant
}

type WebSocketHandlers struct {
	authService *auth.Service
	broker      Broker
	cfg         *config.Config
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, broker Broker, cfg *config.Config) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		broker:      broker,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identify(w, r)
	if !ok {
		return
	}

	// Upgrade connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(conn, h.broker, h.cfg.Broker.SendBufferSize, h.cfg.Broker.MaxFrameBytes)
	id := client.Register()

	if identity != nil {
		if err := h.broker.Authenticate(id, identity.UserID, identity.Username); err != nil {
			logger.Error("Error binding identity to %s: %v", id, err)
			h.broker.Disconnect(id)
			conn.Close()
			return
		}
	}

	logger.Debug("WebSocket %s connected from %s", id, r.RemoteAddr)
	client.Serve(r.Context())
	logger.Debug("WebSocket %s finished", id)
}

// identify resolves the optional session token. Without a token the
// connection falls back to identities asserted in join_room.
func (h *WebSocketHandlers) identify(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		if h.cfg.JWT.RequireToken {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return nil, false
		}
		return nil, true
	}

	if !h.authService.Enabled() {
		logger.Debug("Ignoring session token, verification is not configured")
		return nil, true
	}

	identity, err := h.authService.IdentityFromToken(tokenStr)
	if err != nil {
		logger.Warn("Rejected WebSocket token: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}
	return identity, true
}
