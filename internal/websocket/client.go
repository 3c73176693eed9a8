package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"room-broker/internal/broker"
	"room-broker/pkg/logger"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var errSendBufferFull = errors.New("send buffer full")

// FrameHandler is the part of the broker a client pumps frames into.
type FrameHandler interface {
	Register(t broker.Transport) string
	HandleFrame(ctx context.Context, connID string, raw []byte)
	Disconnect(connID string)
}

// Client adapts one gorilla connection to broker.Transport. Outbound frames
// go through a bounded buffer drained by WritePump.
type Client struct {
	id      string
	conn    *websocket.Conn
	handler FrameHandler
	send    chan []byte
	done    chan struct{}
	once    sync.Once

	maxFrameBytes int64
}

func NewClient(conn *websocket.Conn, handler FrameHandler, sendBuffer int, maxFrameBytes int64) *Client {
	return &Client{
		conn:          conn,
		handler:       handler,
		send:          make(chan []byte, sendBuffer),
		done:          make(chan struct{}),
		maxFrameBytes: maxFrameBytes,
	}
}

// Send queues data without blocking. A full buffer or closed client is
// reported so the broker evicts the connection.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return broker.ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close signals the write pump to send a close frame and shut the socket.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Client) ID() string {
	return c.id
}

// Register hands the client to the broker and records its connection id.
func (c *Client) Register() string {
	c.id = c.handler.Register(c)
	return c.id
}

// Serve runs the write pump in the background and the read pump on the
// calling goroutine until the connection ends.
func (c *Client) Serve(ctx context.Context) {
	go c.WritePump()
	c.ReadPump(ctx)
}

func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.handler.Disconnect(c.id)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxFrameBytes)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error on %s: %v", c.id, err)
			}
			return
		}

		c.handler.HandleFrame(ctx, c.id, message)
	}
}

func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("Write error on %s: %v", c.id, err)
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes frames that were queued before Close, such as a final error.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
