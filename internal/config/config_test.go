package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DATABASE_URL", "JWT_SECRET", "REQUIRE_TOKEN", "HEARTBEAT_INTERVAL",
		"HEARTBEAT_TIMEOUT", "IDLE_ROOM_TIMEOUT", "ROOM_SWEEP_INTERVAL", "TYPING_AUTO_STOP",
		"MAX_MESSAGE_LENGTH", "MAX_PARTICIPANTS_PER_ROOM", "MESSAGE_RATE_LIMIT", "MESSAGE_BURST",
		"SEND_BUFFER_SIZE", "MAX_FRAME_BYTES", "RECORDER_QUEUE_SIZE", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Empty(t, cfg.Database.URL)
	assert.False(t, cfg.JWT.RequireToken)
	assert.Equal(t, DefaultBrokerConfig(), cfg.Broker)
	assert.Equal(t, 30*time.Second, cfg.Broker.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, cfg.Broker.HeartbeatTimeout)
	assert.Equal(t, time.Hour, cfg.Broker.IdleRoomTimeout)
	assert.Equal(t, 3*time.Second, cfg.Broker.TypingAutoStop)
	assert.Equal(t, 1000, cfg.Broker.MaxMessageLength)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("HEARTBEAT_INTERVAL", "10s")
	t.Setenv("HEARTBEAT_TIMEOUT", "25s")
	t.Setenv("TYPING_AUTO_STOP", "1500ms")
	t.Setenv("MAX_PARTICIPANTS_PER_ROOM", "8")
	t.Setenv("MESSAGE_RATE_LIMIT", "2.5")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REQUIRE_TOKEN", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Broker.HeartbeatInterval)
	assert.Equal(t, 25*time.Second, cfg.Broker.HeartbeatTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Broker.TypingAutoStop)
	assert.Equal(t, 8, cfg.Broker.MaxParticipantsPerRoom)
	assert.InDelta(t, 2.5, cfg.Broker.MessageRateLimit, 0.001)
	assert.Equal(t, []byte("s3cret"), cfg.JWT.Secret)
	assert.True(t, cfg.JWT.RequireToken)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad duration", env: map[string]string{"HEARTBEAT_TIMEOUT": "soon"}},
		{name: "bad int", env: map[string]string{"MAX_MESSAGE_LENGTH": "lots"}},
		{name: "bad bool", env: map[string]string{"REQUIRE_TOKEN": "maybe"}},
		{name: "timeout not above interval", env: map[string]string{"HEARTBEAT_INTERVAL": "30s", "HEARTBEAT_TIMEOUT": "30s"}},
		{name: "token required without secret", env: map[string]string{"REQUIRE_TOKEN": "true", "JWT_SECRET": ""}},
		{name: "zero message length", env: map[string]string{"MAX_MESSAGE_LENGTH": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
