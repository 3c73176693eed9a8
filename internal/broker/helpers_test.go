package broker

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"room-broker/internal/config"
	"room-broker/internal/models"
)

type mockTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	sendErr error
}

func (m *mockTransport) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("closed")
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockTransport) failSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

func (m *mockTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockTransport) frames(t *testing.T) []models.Frame {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	frames := make([]models.Frame, 0, len(m.sent))
	for _, data := range m.sent {
		var f models.Frame
		require.NoError(t, json.Unmarshal(data, &f))
		frames = append(frames, f)
	}
	return frames
}

func (m *mockTransport) framesOfType(t *testing.T, typ models.FrameType) []models.Frame {
	t.Helper()
	var out []models.Frame
	for _, f := range m.frames(t) {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func (m *mockTransport) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() config.BrokerConfig {
	cfg := config.DefaultBrokerConfig()
	cfg.TypingAutoStop = 50 * time.Millisecond
	cfg.MessageRateLimit = 0
	return cfg
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func joinFrame(t *testing.T, roomID, userID, username string) []byte {
	return mustJSON(t, models.Frame{Type: models.FrameJoinRoom, RoomID: roomID, UserID: userID, Username: username})
}

func messageFrame(t *testing.T, content string) []byte {
	return mustJSON(t, models.Frame{Type: models.FrameMessage, Data: mustJSON(t, models.MessageData{Content: content})})
}

func typingFrame(t *testing.T, isTyping bool) []byte {
	return mustJSON(t, models.Frame{Type: models.FrameTyping, Data: mustJSON(t, map[string]bool{"isTyping": isTyping})})
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
