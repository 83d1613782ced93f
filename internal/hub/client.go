package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/caseportal/messaging/internal/config"
	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/pkg/log"
)

// ErrSendQueueClosed is returned when writing to a client that has left.
var ErrSendQueueClosed = errors.New("send queue closed")

// ErrSendQueueFull is returned when a client is not draining its queue.
var ErrSendQueueFull = errors.New("send queue full")

// Client is one websocket session attached to the hub.
type Client struct {
	ID         string
	Hub        *Hub
	Conn       *websocket.Conn
	Connection *domain.Connection

	send   chan []byte
	mu     sync.Mutex
	closed bool
	config config.WebSocketConfig
}

// NewClient wraps conn. conn may be nil for clients that are driven
// without a transport.
func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	size := cfg.SendBuffer
	if size <= 0 {
		size = 256
	}
	return &Client{
		ID:         id,
		Hub:        hub,
		Conn:       conn,
		Connection: domain.NewConnection(id),
		send:       make(chan []byte, size),
		config:     cfg,
	}
}

// Outbound exposes the send queue. It is closed when the client leaves
// the hub.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Enqueue queues data without blocking. It reports false when the queue is
// full or closed.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendMessage marshals message and queues it.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if c.Enqueue(data) {
		return nil
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrSendQueueClosed
	}
	return ErrSendQueueFull
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump reads frames until the transport fails or the liveness window
// passes without a pong or frame, then unregisters the client. Frames are
// handled one at a time, in order.
func (c *Client) ReadPump(ctx context.Context, handler func(context.Context, *Client, []byte)) {
	defer func() {
		if err := c.Hub.Unregister(c); err != nil && !errors.Is(err, ErrHubStopped) {
			l := log.Ctx(ctx)
			l.Error().Err(err).Msg("failed to unregister client")
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Connection.Touch()
		return c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l := log.Ctx(ctx)
				l.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		c.Connection.Touch()
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))

		handler(ctx, c, message)
	}
}

// WritePump drains the send queue to the transport and pings on every
// PingInterval. It returns when the queue closes or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
