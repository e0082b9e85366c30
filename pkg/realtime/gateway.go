package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/pkg/identity"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/store"
	"chatrelay/pkg/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	// generous enough for text plus inline call signal payloads
	maxFrameBytes = 512 * 1024

	// bound on token verification and other external lookups
	verifyTimeout = 10 * time.Second
)

// Gateway upgrades HTTP requests to WebSocket sessions, authenticates
// them once per connection and dispatches enveloped events.
type Gateway struct {
	hub      *Hub
	verifier identity.Verifier
	upgrader websocket.Upgrader
}

// NewGateway wires a gateway to an explicit hub and verifier. Origins are
// checked against allowedOrigins; an empty list allows all origins.
func NewGateway(hub *Hub, verifier identity.Verifier, allowedOrigins []string) *Gateway {
	return &Gateway{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				for _, a := range allowedOrigins {
					if a == "*" || strings.EqualFold(a, origin) {
						return true
					}
				}
				return false
			},
		},
	}
}

// bearerToken extracts the token from the Authorization header, or the
// `token` query parameter for browser WebSocket clients that cannot set
// headers.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// HandleWS handles WebSocket connections. The token is verified before
// the upgrade; unauthenticated requests never reach the hub.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		utils.JSONError(w, http.StatusUnauthorized, "missing token")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), verifyTimeout)
	defer cancel()
	ident, err := g.verifier.Verify(ctx, token)
	if err != nil {
		logger.Warn("ws_auth_failed", "remote", r.RemoteAddr, "error", err)
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := g.hub.NewClient(conn, ident)
	g.hub.Register(client)
	g.autoSubscribe(client)

	go g.writePump(client)
	g.readPump(client)
}

// autoSubscribe joins the connection to every channel derived from the
// user's stored memberships: one per friend conversation, one per group.
func (g *Gateway) autoSubscribe(client *Client) {
	subj := client.Identity().Subject

	friends, err := store.ListFriends(subj)
	if err != nil {
		logger.Warn("auto_subscribe_friends_failed", "user", subj, "error", err)
	}
	for _, f := range friends {
		if f.ConversationID != "" {
			g.hub.Subscribe(client, f.ConversationID)
		}
	}

	groups, err := store.ListGroups(subj)
	if err != nil {
		logger.Warn("auto_subscribe_groups_failed", "user", subj, "error", err)
	}
	for _, grp := range groups {
		g.hub.Subscribe(client, grp.GroupID)
	}
}

func (g *Gateway) readPump(client *Client) {
	defer func() {
		// a vanished peer should not leave the other side ringing
		g.endCallsFor(client)
		g.hub.Unregister(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxFrameBytes)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("ws_read_error", "user", client.Identity().Subject, "error", err)
			}
			break
		}
		g.handleMessage(client, message)
	}
}

func (g *Gateway) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// endCallsFor publishes a synthetic callEnd to every channel the client
// was subscribed to. The relay keeps no call state, so peers decide
// whether the event matters to them.
func (g *Gateway) endCallsFor(client *Client) {
	subj := client.Identity().Subject
	for _, ch := range client.Channels() {
		g.hub.Publish(ch, EventCallEnd, map[string]string{
			"from":    subj,
			"channel": ch,
			"reason":  "disconnected",
		})
	}
}
