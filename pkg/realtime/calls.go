package realtime

import (
	"encoding/json"

	"chatrelay/pkg/access"
)

// handleCallSignal relays WebRTC signaling between peers. The relay is
// stateless: signal bodies (SDP offers, answers, ICE candidates) pass
// through untouched, with only the sender identity stamped on.
func (g *Gateway) handleCallSignal(client *Client, env Envelope) {
	subj := client.Identity().Subject

	var m map[string]any
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &m); err != nil {
			client.SendError("invalid signal payload")
			return
		}
	}
	if m == nil {
		m = map[string]any{}
	}
	// the sender identity is authoritative; clients cannot spoof it
	m["from"] = subj
	m["fromName"] = client.Identity().DisplayName()

	// group call signals carry a groupId and fan out to the room, except
	// for directed mesh signals which name a single peer
	if gid, _ := m["groupId"].(string); gid != "" {
		if !access.CanAccess(subj, gid) {
			client.SendError("access denied")
			return
		}
		if to, _ := m["to"].(string); to != "" {
			if !g.hub.SendToIdentity(to, env.Event, m) && env.Event == EventGroupOffer {
				client.SendError("user is offline")
			}
			return
		}
		g.hub.Publish(gid, env.Event, m)
		return
	}

	// 1:1 signals are scoped to a conversation; a signal that names no
	// channel cannot be authorized and is dropped
	convID, _ := m["conversationId"].(string)
	if convID == "" {
		client.SendError("conversationId required")
		return
	}
	if !access.CanAccess(subj, convID) {
		client.SendError("access denied")
		return
	}
	to, _ := m["to"].(string)
	if to == "" {
		client.SendError("missing call target")
		return
	}
	// the ring additionally proves the callee belongs to the channel, so
	// a caller cannot route a ring at an arbitrary identity
	if env.Event == EventCallRequest && !access.CanAccess(to, convID) {
		client.SendError("access denied")
		return
	}
	delivered := g.hub.SendToIdentity(to, env.Event, m)
	// only the initial ring reports offline; later signals for a dead
	// peer are expected during teardown and stay silent
	if !delivered && env.Event == EventCallRequest {
		client.SendError("user is offline")
	}
}
