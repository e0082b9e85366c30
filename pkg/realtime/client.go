package realtime

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"chatrelay/pkg/identity"
)

// Client represents a connected WebSocket client.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	ident  identity.Identity
	send   chan []byte
	subs   map[string]bool // subscribed channel IDs
	subsMu sync.RWMutex
}

// Identity returns the authenticated identity behind the connection.
func (c *Client) Identity() identity.Identity {
	return c.ident
}

// Conn returns the client's WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan exposes the outbound frame channel for the write pump.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Channels returns a snapshot of the client's channel subscriptions.
func (c *Client) Channels() []string {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	return out
}

// Subscribed reports whether the client is subscribed to the channel.
func (c *Client) Subscribed(channelID string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subs[channelID]
}

// Send queues a raw frame for delivery. Frames are dropped when the
// client's buffer is full; the hub disconnects such clients on the next
// broadcast.
func (c *Client) Send(data []byte) {
	select {
	case c.send <- data:
	default:
		// buffer full
	}
}

// SendEvent sends a single enveloped event to this client only.
func (c *Client) SendEvent(event string, data any) error {
	env, err := NewEnvelope(event, data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.Send(raw)
	return nil
}

// SendError sends an error event to the client.
func (c *Client) SendError(message string) {
	relayErrors.Inc()
	_ = c.SendEvent(EventError, ErrorPayload{Message: message})
}
