package websocket

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one subscriber connection to the live-update feed (order,
// trade, and book-snapshot events relayed from internal/events.Bus).
type Client struct {
	ID string

	Hub *Hub

	Conn *websocket.Conn

	// Send is the outbound queue WritePump drains into the socket.
	Send chan []byte

	Logger *zap.Logger
}

// ClientConfig bounds a client connection's buffering and keepalive
// timing.
type ClientConfig struct {
	SendBufferSize int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// DefaultClientConfig returns the timing this package uses for every
// client; spec.md names no per-connection tuning knobs, so these follow
// the gorilla/websocket chat-example conventions the teacher's own
// client carried.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SendBufferSize: 256,
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 1024 * 1024,
	}
}

// NewClient wraps an upgraded connection and registers it with hub.
func NewClient(id string, conn *websocket.Conn, hub *Hub, logger *zap.Logger) *Client {
	config := DefaultClientConfig()

	return &Client{
		ID:     id,
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, config.SendBufferSize),
		Logger: logger,
	}
}

// ReadPump drains inbound client messages (subscription requests, pings)
// until the connection closes, then unregisters the client. This feed is
// one-way in practice — the live-update bus has no inbound command set —
// but the loop still exists so a client disconnect is observed promptly.
func (c *Client) ReadPump() {
	config := DefaultClientConfig()

	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Logger.Error("websocket: unexpected close", zap.Error(err))
			}
			break
		}

		raw = bytes.TrimSpace(bytes.Replace(raw, []byte{'\n'}, []byte{' '}, -1))

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Logger.Warn("websocket: failed to parse inbound message", zap.Error(err))
			continue
		}

		c.Hub.HandleMessage(c, &msg)
	}
}

// WritePump drains Send into the socket, pinging on an idle timer so
// intermediate proxies don't reclaim the connection.
func (c *Client) WritePump() {
	config := DefaultClientConfig()

	ticker := time.NewTicker(config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))

			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage marshals msg and queues it for delivery to this client.
func (c *Client) SendMessage(msg *Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.Logger.Error("websocket: failed to marshal message", zap.Error(err))
		return
	}
	c.Send <- payload
}
