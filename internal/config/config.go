package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Broker   BrokerConfig
	LogLevel string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig points at the Room/Session Store. An empty URL runs the
// broker without admission checks or event recording.
type DatabaseConfig struct {
	URL               string
	RecorderQueueSize int
}

type JWTConfig struct {
	Secret       []byte
	RequireToken bool
}

// BrokerConfig holds the tunables of the connection and room broker.
type BrokerConfig struct {
	HeartbeatInterval      time.Duration
	HeartbeatTimeout       time.Duration
	IdleRoomTimeout        time.Duration
	RoomSweepInterval      time.Duration
	TypingAutoStop         time.Duration
	MaxMessageLength       int
	MaxParticipantsPerRoom int
	MessageRateLimit       float64
	MessageBurst           int
	SendBufferSize         int
	MaxFrameBytes          int64
}

// DefaultBrokerConfig returns the broker defaults used when no environment overrides are set.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		HeartbeatInterval:      30 * time.Second,
		HeartbeatTimeout:       60 * time.Second,
		IdleRoomTimeout:        time.Hour,
		RoomSweepInterval:      5 * time.Minute,
		TypingAutoStop:         3 * time.Second,
		MaxMessageLength:       1000,
		MaxParticipantsPerRoom: 0,
		MessageRateLimit:       10,
		MessageBurst:           20,
		SendBufferSize:         256,
		MaxFrameBytes:          64 * 1024,
	}
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}

	l := &loader{}
	def := DefaultBrokerConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:            l.string("PORT", ":8080"),
			ReadTimeout:     l.duration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    l.duration("WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: l.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:               l.string("DATABASE_URL", ""),
			RecorderQueueSize: l.int("RECORDER_QUEUE_SIZE", 1024),
		},
		JWT: JWTConfig{
			Secret:       []byte(l.string("JWT_SECRET", "")),
			RequireToken: l.bool("REQUIRE_TOKEN", false),
		},
		Broker: BrokerConfig{
			HeartbeatInterval:      l.duration("HEARTBEAT_INTERVAL", def.HeartbeatInterval),
			HeartbeatTimeout:       l.duration("HEARTBEAT_TIMEOUT", def.HeartbeatTimeout),
			IdleRoomTimeout:        l.duration("IDLE_ROOM_TIMEOUT", def.IdleRoomTimeout),
			RoomSweepInterval:      l.duration("ROOM_SWEEP_INTERVAL", def.RoomSweepInterval),
			TypingAutoStop:         l.duration("TYPING_AUTO_STOP", def.TypingAutoStop),
			MaxMessageLength:       l.int("MAX_MESSAGE_LENGTH", def.MaxMessageLength),
			MaxParticipantsPerRoom: l.int("MAX_PARTICIPANTS_PER_ROOM", def.MaxParticipantsPerRoom),
			MessageRateLimit:       l.float("MESSAGE_RATE_LIMIT", def.MessageRateLimit),
			MessageBurst:           l.int("MESSAGE_BURST", def.MessageBurst),
			SendBufferSize:         l.int("SEND_BUFFER_SIZE", def.SendBufferSize),
			MaxFrameBytes:          int64(l.int("MAX_FRAME_BYTES", int(def.MaxFrameBytes))),
		},
		LogLevel: l.string("LOG_LEVEL", "info"),
	}

	if l.err != nil {
		return nil, l.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWT.RequireToken && len(c.JWT.Secret) == 0 {
		return fmt.Errorf("REQUIRE_TOKEN needs JWT_SECRET to be set")
	}
	if c.Database.RecorderQueueSize <= 0 {
		return fmt.Errorf("RECORDER_QUEUE_SIZE must be positive")
	}
	return c.Broker.Validate()
}

func (b BrokerConfig) Validate() error {
	positive := map[string]time.Duration{
		"HEARTBEAT_INTERVAL":  b.HeartbeatInterval,
		"HEARTBEAT_TIMEOUT":   b.HeartbeatTimeout,
		"IDLE_ROOM_TIMEOUT":   b.IdleRoomTimeout,
		"ROOM_SWEEP_INTERVAL": b.RoomSweepInterval,
		"TYPING_AUTO_STOP":    b.TypingAutoStop,
	}
	for key, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if b.HeartbeatTimeout <= b.HeartbeatInterval {
		return fmt.Errorf("HEARTBEAT_TIMEOUT (%s) must exceed HEARTBEAT_INTERVAL (%s)", b.HeartbeatTimeout, b.HeartbeatInterval)
	}
	if b.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive")
	}
	if b.MaxParticipantsPerRoom < 0 {
		return fmt.Errorf("MAX_PARTICIPANTS_PER_ROOM must not be negative")
	}
	if b.MessageRateLimit < 0 {
		return fmt.Errorf("MESSAGE_RATE_LIMIT must not be negative")
	}
	if b.MessageRateLimit > 0 && b.MessageBurst <= 0 {
		return fmt.Errorf("MESSAGE_BURST must be positive when rate limiting is enabled")
	}
	if b.SendBufferSize <= 0 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be positive")
	}
	if b.MaxFrameBytes <= 0 {
		return fmt.Errorf("MAX_FRAME_BYTES must be positive")
	}
	return nil
}

// loader keeps the first parse error so Load can report it instead of exiting.
type loader struct {
	err error
}

func (l *loader) fail(key, value string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
}

func (l *loader) string(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (l *loader) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		l.fail(key, value, err)
		return defaultValue
	}
	return d
}

func (l *loader) int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		l.fail(key, value, err)
		return defaultValue
	}
	return i
}

func (l *loader) float(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		l.fail(key, value, err)
		return defaultValue
	}
	return f
}

func (l *loader) bool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		l.fail(key, value, err)
		return defaultValue
	}
	return b
}
