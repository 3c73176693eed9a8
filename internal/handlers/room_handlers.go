package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"room-broker/internal/models"
)

type RoomHandlers struct {
	broker Broker
}

func NewRoomHandlers(broker Broker) *RoomHandlers {
	return &RoomHandlers{broker: broker}
}

// GetActiveUsers serves GET /rooms/{id}/active from live presence.
func (h *RoomHandlers) GetActiveUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID, ok := roomIDFromPath(r.URL.Path)
	if !ok {
		http.Error(w, "endpoint not found", http.StatusNotFound)
		return
	}

	participants := h.broker.Participants(roomID)
	activeUsers := make([]models.ActiveUser, 0, len(participants))
	for _, p := range participants {
		activeUsers = append(activeUsers, models.ActiveUser{
			UserID:   p.UserID,
			Username: p.Username,
			Status:   "online",
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":      roomID,
		"active_users": activeUsers,
		"count":        len(activeUsers),
	})
}

func (h *RoomHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	rooms, connections := h.broker.Stats()
	writeJSON(w, http.StatusOK, map[string]int{
		"rooms":       rooms,
		"connections": connections,
	})
}

func (h *RoomHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// roomIDFromPath extracts {id} from /rooms/{id}/active.
func roomIDFromPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "rooms" || parts[1] == "" || parts[2] != "active" {
		return "", false
	}
	return parts[1], true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
