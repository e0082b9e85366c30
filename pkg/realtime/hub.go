package realtime

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"chatrelay/pkg/identity"
	"chatrelay/pkg/logger"
)

// Hub tracks connected clients, their channel subscriptions and which
// identities are currently online. It is handed to the gateway and the
// HTTP API explicitly; there is no package-level instance.
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	channels   map[string]map[*Client]bool // channelID -> clients
	channelsMu sync.RWMutex

	identities   map[string]map[*Client]bool // subject -> connections
	identitiesMu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *channelMessage
}

type channelMessage struct {
	channelID string
	data      []byte
}

// NewHub creates a new Hub. Call Run in a goroutine before registering
// clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		channels:   make(map[string]map[*Client]bool),
		identities: make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *channelMessage, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()

			h.identitiesMu.Lock()
			subj := client.ident.Subject
			if h.identities[subj] == nil {
				h.identities[subj] = make(map[*Client]bool)
			}
			h.identities[subj][client] = true
			h.identitiesMu.Unlock()

			wsConnections.Inc()
			logger.Info("client_connected", "user", subj)

		case client := <-h.unregister:
			h.evict(client)

		case msg := <-h.broadcast:
			h.channelsMu.RLock()
			subs := make([]*Client, 0, len(h.channels[msg.channelID]))
			for client := range h.channels[msg.channelID] {
				subs = append(subs, client)
			}
			h.channelsMu.RUnlock()

			for _, client := range subs {
				select {
				case client.send <- msg.data:
				default:
					// buffer full; evict inline, the loop is the only
					// receiver of unregister and must never block on it
					h.evict(client)
				}
			}
		}
	}
}

// evict removes a client from every hub map and closes its send channel.
// Called only from the Run loop, either on unregister or when a slow
// consumer's buffer overflows.
func (h *Hub) evict(client *Client) {
	h.clientsMu.Lock()
	registered := h.clients[client]
	if registered {
		delete(h.clients, client)
		close(client.send)
	}
	h.clientsMu.Unlock()
	if !registered {
		return
	}

	h.identitiesMu.Lock()
	subj := client.ident.Subject
	if conns, ok := h.identities[subj]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.identities, subj)
		}
	}
	h.identitiesMu.Unlock()

	// remove from all channel subscriptions
	for _, channelID := range client.Channels() {
		h.removeFromChannel(client, channelID)
	}

	wsConnections.Dec()
	logger.Info("client_disconnected", "user", subj)
}

// Register registers a client with the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister unregisters a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe subscribes a client to a channel.
func (h *Hub) Subscribe(client *Client, channelID string) {
	h.channelsMu.Lock()
	if h.channels[channelID] == nil {
		h.channels[channelID] = make(map[*Client]bool)
	}
	h.channels[channelID][client] = true
	h.channelsMu.Unlock()

	client.subsMu.Lock()
	client.subs[channelID] = true
	client.subsMu.Unlock()
}

// Unsubscribe unsubscribes a client from a channel.
func (h *Hub) Unsubscribe(client *Client, channelID string) {
	h.removeFromChannel(client, channelID)

	client.subsMu.Lock()
	delete(client.subs, channelID)
	client.subsMu.Unlock()
}

func (h *Hub) removeFromChannel(client *Client, channelID string) {
	h.channelsMu.Lock()
	if clients, ok := h.channels[channelID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channelID)
		}
	}
	h.channelsMu.Unlock()
}

// Publish sends an event to every client subscribed to the channel.
func (h *Hub) Publish(channelID, event string, data any) {
	env, err := NewEnvelope(event, data)
	if err != nil {
		logger.Error("publish_marshal_failed", "event", event, "error", err)
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		logger.Error("publish_marshal_failed", "event", event, "error", err)
		return
	}
	eventsPublished.WithLabelValues(event).Inc()
	h.broadcast <- &channelMessage{channelID: channelID, data: raw}
}

// SendToIdentity delivers an event to every live connection of a user.
// It reports whether at least one connection received it.
func (h *Hub) SendToIdentity(subject, event string, data any) bool {
	env, err := NewEnvelope(event, data)
	if err != nil {
		logger.Error("send_marshal_failed", "event", event, "error", err)
		return false
	}
	raw, err := json.Marshal(env)
	if err != nil {
		logger.Error("send_marshal_failed", "event", event, "error", err)
		return false
	}

	h.identitiesMu.RLock()
	conns := make([]*Client, 0, len(h.identities[subject]))
	for c := range h.identities[subject] {
		conns = append(conns, c)
	}
	h.identitiesMu.RUnlock()

	delivered := false
	for _, c := range conns {
		c.Send(raw)
		delivered = true
	}
	if delivered {
		eventsPublished.WithLabelValues(event).Inc()
	}
	return delivered
}

// SubscribeIdentity subscribes every live connection of a user to a
// channel. Used when memberships change after connect, so new
// conversations and groups get traffic without a reconnect.
func (h *Hub) SubscribeIdentity(subject, channelID string) {
	h.identitiesMu.RLock()
	conns := make([]*Client, 0, len(h.identities[subject]))
	for c := range h.identities[subject] {
		conns = append(conns, c)
	}
	h.identitiesMu.RUnlock()
	for _, c := range conns {
		h.Subscribe(c, channelID)
	}
}

// UnsubscribeIdentity removes every live connection of a user from a
// channel, e.g. after leaving a group.
func (h *Hub) UnsubscribeIdentity(subject, channelID string) {
	h.identitiesMu.RLock()
	conns := make([]*Client, 0, len(h.identities[subject]))
	for c := range h.identities[subject] {
		conns = append(conns, c)
	}
	h.identitiesMu.RUnlock()
	for _, c := range conns {
		h.Unsubscribe(c, channelID)
	}
}

// Online reports whether the user has at least one live connection.
func (h *Hub) Online(subject string) bool {
	h.identitiesMu.RLock()
	defer h.identitiesMu.RUnlock()
	return len(h.identities[subject]) > 0
}

// NewClient creates a new client for the hub.
func (h *Hub) NewClient(conn *websocket.Conn, ident identity.Identity) *Client {
	return &Client{
		hub:   h,
		conn:  conn,
		ident: ident,
		send:  make(chan []byte, 256),
		subs:  make(map[string]bool),
	}
}
