package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"chatrelay/pkg/identity"
	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
)

const wsTestSecret = "ws-test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	verifier, err := identity.NewHS256Verifier(wsTestSecret)
	if err != nil {
		t.Fatalf("NewHS256Verifier: %v", err)
	}
	hub := NewHub()
	go hub.Run()
	gw := NewGateway(hub, verifier, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, hub
}

func tokenFor(t *testing.T, subject, name string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"name": name,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(wsTestSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func dialWS(t *testing.T, srv *httptest.Server, subject string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + tokenFor(t, subject, subject)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", subject, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	return env
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	env, err := NewEnvelope(event, payload)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func befriend(t *testing.T, a, b, conversationID string) {
	t.Helper()
	if err := store.SaveFriend(models.Friend{UserID: a, FriendID: b, FriendName: b, ConversationID: conversationID}); err != nil {
		t.Fatalf("SaveFriend: %v", err)
	}
	if err := store.SaveFriend(models.Friend{UserID: b, FriendID: a, FriendName: a, ConversationID: conversationID}); err != nil {
		t.Fatalf("SaveFriend: %v", err)
	}
}

func TestWSRejectsMissingAndBadTokens(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token; got %d", resp.StatusCode)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=not-a-jwt"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatalf("dial with bad token succeeded")
	}
}

func TestWSDirectMessageFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")

	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")

	writeEvent(t, alice, EventSendMessage, SendPayload{
		ConversationID: "conv1",
		Type:           "text",
		Content:        "hello bob",
	})

	env := readFrame(t, bob)
	if env.Event != EventReceiveMessage {
		t.Fatalf("expected receiveMessage; got %s", env.Event)
	}
	var m models.Message
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if m.SenderID != "alice" || m.Content != "hello bob" || m.ConversationID != "conv1" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.Status != models.StatusSent {
		t.Fatalf("expected status sent; got %s", m.Status)
	}

	// the channel update follows the message
	env = readFrame(t, bob)
	if env.Event != EventLastMessageUpdated {
		t.Fatalf("expected lastMessageUpdated; got %s", env.Event)
	}

	// persisted
	msgs, err := store.ListMessages(store.SpaceDirect, "conv1", 0, false)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello bob" {
		t.Fatalf("message not persisted: %+v", msgs)
	}
}

func TestWSSendDeniedForOutsider(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")

	mallory := dialWS(t, srv, "mallory")
	writeEvent(t, mallory, EventSendMessage, SendPayload{
		ConversationID: "conv1",
		Type:           "text",
		Content:        "let me in",
	})

	env := readFrame(t, mallory)
	if env.Event != EventError {
		t.Fatalf("expected error; got %s", env.Event)
	}
	msgs, _ := store.ListMessages(store.SpaceDirect, "conv1", 0, false)
	if len(msgs) != 0 {
		t.Fatalf("denied message was persisted")
	}
}

func TestWSRecallBroadcast(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")

	stored, err := store.AppendMessage(store.SpaceDirect, "conv1", models.Message{
		SenderID:       "alice",
		ConversationID: "conv1",
		Content:        "oops",
	})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")

	writeEvent(t, alice, EventRecallMessage, MutatePayload{
		ConversationID: "conv1",
		Timestamp:      stored.Timestamp,
	})

	env := readFrame(t, bob)
	if env.Event != EventMessageRecalled {
		t.Fatalf("expected messageRecalled; got %s", env.Event)
	}

	msgs, _ := store.ListMessages(store.SpaceDirect, "conv1", 0, false)
	if len(msgs) != 1 || msgs[0].Status != models.StatusRecalled || msgs[0].Content != "" {
		t.Fatalf("recall not persisted: %+v", msgs)
	}
	// a fetched recalled message identifies itself by type
	if msgs[0].Type != models.StatusRecalled {
		t.Fatalf("recalled message type = %q", msgs[0].Type)
	}
}

func TestWSRecallRejectedForNonSender(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")

	stored, err := store.AppendMessage(store.SpaceDirect, "conv1", models.Message{
		SenderID:       "alice",
		ConversationID: "conv1",
		Content:        "mine",
	})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	bob := dialWS(t, srv, "bob")
	writeEvent(t, bob, EventRecallMessage, MutatePayload{
		ConversationID: "conv1",
		Timestamp:      stored.Timestamp,
	})

	env := readFrame(t, bob)
	if env.Event != EventError {
		t.Fatalf("expected error; got %s", env.Event)
	}
	msgs, _ := store.ListMessages(store.SpaceDirect, "conv1", 0, false)
	if msgs[0].Status != models.StatusSent {
		t.Fatalf("non-sender recall applied: %+v", msgs[0])
	}
}

func TestWSCallRequestOffline(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")
	alice := dialWS(t, srv, "alice")

	writeEvent(t, alice, EventCallRequest, map[string]string{
		"conversationId": "conv1",
		"to":             "bob",
	})

	env := readFrame(t, alice)
	if env.Event != EventError {
		t.Fatalf("expected error; got %s", env.Event)
	}
	var p ErrorPayload
	_ = json.Unmarshal(env.Data, &p)
	if p.Message != "user is offline" {
		t.Fatalf("unexpected error: %s", p.Message)
	}
}

func TestWSCallSignalStampsSender(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")
	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")

	writeEvent(t, alice, EventOffer, map[string]any{
		"conversationId": "conv1",
		"to":             "bob",
		"sdp":            "v=0 fake-offer",
		"from":           "spoofed-identity",
	})

	env := readFrame(t, bob)
	if env.Event != EventOffer {
		t.Fatalf("expected offer; got %s", env.Event)
	}
	var m map[string]any
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("unmarshal signal: %v", err)
	}
	if m["from"] != "alice" {
		t.Fatalf("sender not stamped over spoofed value: %v", m["from"])
	}
	if m["sdp"] != "v=0 fake-offer" {
		t.Fatalf("signal body altered: %v", m["sdp"])
	}
}

func TestWSCallSignalDeniedForOutsider(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")
	bob := dialWS(t, srv, "bob")
	mallory := dialWS(t, srv, "mallory")

	writeEvent(t, mallory, EventOffer, map[string]any{
		"conversationId": "conv1",
		"to":             "bob",
		"sdp":            "v=0 intrusive-offer",
	})

	env := readFrame(t, mallory)
	if env.Event != EventError {
		t.Fatalf("expected error; got %s", env.Event)
	}

	// bob must not have received the signal
	_ = bob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, raw, err := bob.ReadMessage(); err == nil {
		t.Fatalf("unauthorized signal relayed: %s", raw)
	}
}

func TestWSCallSignalRequiresConversation(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")
	alice := dialWS(t, srv, "alice")

	writeEvent(t, alice, EventOffer, map[string]any{
		"to":  "bob",
		"sdp": "v=0 fake-offer",
	})

	env := readFrame(t, alice)
	if env.Event != EventError {
		t.Fatalf("expected error; got %s", env.Event)
	}
}

func TestWSCallRequestRejectsForeignCallee(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")
	alice := dialWS(t, srv, "alice")
	carol := dialWS(t, srv, "carol")

	// carol is online but not part of conv1
	writeEvent(t, alice, EventCallRequest, map[string]string{
		"conversationId": "conv1",
		"to":             "carol",
	})

	env := readFrame(t, alice)
	if env.Event != EventError {
		t.Fatalf("expected error; got %s", env.Event)
	}
	_ = carol.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, raw, err := carol.ReadMessage(); err == nil {
		t.Fatalf("ring reached a non-member: %s", raw)
	}
}

func TestWSDisconnectEndsCalls(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")

	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")

	// bob must be fully registered before alice leaves
	writeEvent(t, bob, EventJoinConversation, JoinPayload{ConversationID: "conv1"})
	time.Sleep(50 * time.Millisecond)

	_ = alice.Close()

	env := readFrame(t, bob)
	if env.Event != EventCallEnd {
		t.Fatalf("expected callEnd; got %s", env.Event)
	}
	var p map[string]string
	_ = json.Unmarshal(env.Data, &p)
	if p["from"] != "alice" || p["reason"] != "disconnected" {
		t.Fatalf("unexpected callEnd payload: %v", p)
	}
}

func TestWSForwardRequiresSource(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")
	alice := dialWS(t, srv, "alice")

	writeEvent(t, alice, EventForwardMessage, ForwardPayload{
		ToConversationID: "conv1",
		Type:             "text",
		Content:          "copied",
	})

	env := readFrame(t, alice)
	if env.Event != EventError {
		t.Fatalf("expected error; got %s", env.Event)
	}
	if msgs, _ := store.ListMessages(store.SpaceDirect, "conv1", 0, false); len(msgs) != 0 {
		t.Fatalf("sourceless forward persisted: %+v", msgs)
	}
}

func TestWSForwardDeniedForForeignSource(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")
	befriend(t, "mallory", "eve", "conv9")
	mallory := dialWS(t, srv, "mallory")

	writeEvent(t, mallory, EventForwardMessage, ForwardPayload{
		FromConversationID: "conv1",
		ToConversationID:   "conv9",
		Type:               "text",
		Content:            "stolen",
	})

	env := readFrame(t, mallory)
	if env.Event != EventError {
		t.Fatalf("expected error; got %s", env.Event)
	}
	if msgs, _ := store.ListMessages(store.SpaceDirect, "conv9", 0, false); len(msgs) != 0 {
		t.Fatalf("forward from foreign source persisted: %+v", msgs)
	}
}

func TestWSForwardBetweenConversations(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")
	befriend(t, "alice", "carol", "conv2")
	alice := dialWS(t, srv, "alice")

	writeEvent(t, alice, EventForwardMessage, ForwardPayload{
		FromConversationID: "conv1",
		ToConversationID:   "conv2",
		Type:               "text",
		Content:            "look at this",
		OriginalSenderID:   "bob",
	})

	env := readFrame(t, alice)
	if env.Event != EventReceiveMessage {
		t.Fatalf("expected receiveMessage; got %s", env.Event)
	}
	var m models.Message
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if m.ConversationID != "conv2" || m.ForwardedFrom != "bob" || m.Content != "look at this" {
		t.Fatalf("unexpected forwarded message: %+v", m)
	}
}

func TestWSNicknameChange(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")

	bob := dialWS(t, srv, "bob")

	writeEvent(t, bob, EventChangeNickname, NicknamePayload{
		FriendID: "alice",
		Nickname: "Al",
	})

	// a system message announces the change, then the dedicated event
	env := readFrame(t, bob)
	if env.Event != EventReceiveMessage {
		t.Fatalf("expected system message first; got %s", env.Event)
	}
	var m models.Message
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("unmarshal system message: %v", err)
	}
	if m.Type != "system" || m.SenderID != "bob" {
		t.Fatalf("unexpected system message: %+v", m)
	}

	env = readFrame(t, bob)
	if env.Event != EventLastMessageUpdated {
		t.Fatalf("expected lastMessageUpdated; got %s", env.Event)
	}
	env = readFrame(t, bob)
	if env.Event != EventNicknameChanged {
		t.Fatalf("expected nicknameChanged; got %s", env.Event)
	}

	// both friend edges carry the new nickname
	for _, pair := range [][2]string{{"bob", "alice"}, {"alice", "bob"}} {
		f, err := store.GetFriend(pair[0], pair[1])
		if err != nil {
			t.Fatalf("GetFriend: %v", err)
		}
		if f.Nickname != "Al" {
			t.Fatalf("nickname not written on %s->%s edge: %q", pair[0], pair[1], f.Nickname)
		}
	}
}

func TestWSValidationRejectsEmptyContent(t *testing.T) {
	srv, _ := newTestServer(t)
	befriend(t, "alice", "bob", "conv1")

	alice := dialWS(t, srv, "alice")
	writeEvent(t, alice, EventSendMessage, SendPayload{
		ConversationID: "conv1",
		Type:           "text",
		Content:        "",
	})

	env := readFrame(t, alice)
	if env.Event != EventError {
		t.Fatalf("expected error; got %s", env.Event)
	}
}
