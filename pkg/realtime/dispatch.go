package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"chatrelay/pkg/access"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
	"chatrelay/pkg/validation"
)

func (g *Gateway) handleMessage(client *Client, data []byte) {
	env, err := ParseEnvelope(data)
	if err != nil {
		client.SendError("invalid message format")
		return
	}
	eventsDispatched.WithLabelValues(env.Event).Inc()

	switch env.Event {
	case EventSendMessage:
		var p SendPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			client.SendError("invalid sendMessage payload")
			return
		}
		g.handleSend(client, store.SpaceDirect, p)

	case EventSendGroupMessage:
		var p SendPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			client.SendError("invalid sendGroupMessage payload")
			return
		}
		g.handleSend(client, store.SpaceGroup, p)

	case EventRecallMessage, EventRecallGroupMessage:
		var p MutatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			client.SendError("invalid recall payload")
			return
		}
		g.handleRecall(client, spaceFor(env.Event, p), p)

	case EventDeleteMessage:
		var p MutatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			client.SendError("invalid delete payload")
			return
		}
		g.handleDeleteDirect(client, p)

	case EventDeleteGroupMessage:
		var p MutatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			client.SendError("invalid delete payload")
			return
		}
		g.handleDeleteGroup(client, p)

	case EventForwardMessage, EventForwardGroupMsg:
		var p ForwardPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			client.SendError("invalid forward payload")
			return
		}
		g.handleForward(client, p)

	case EventJoinConversation, EventJoinGroup:
		var p JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			client.SendError("invalid join payload")
			return
		}
		g.handleJoin(client, p)

	case EventChangeNickname:
		var p NicknamePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			client.SendError("invalid nickname payload")
			return
		}
		g.handleNickname(client, p)

	case EventChangeTheme:
		var p ThemePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			client.SendError("invalid theme payload")
			return
		}
		g.handleTheme(client, p)

	case EventCallRequest, EventCallResponse, EventOffer, EventAnswer,
		EventICECandidate, EventCallEnd, EventStartVideoCall,
		EventVideoCallEnded, EventGroupOffer, EventGroupAnswer,
		EventGroupCandidate:
		g.handleCallSignal(client, env)

	default:
		client.SendError("unknown event: " + env.Event)
	}
}

// spaceFor maps a mutate event to the key space implied by its payload.
func spaceFor(event string, p MutatePayload) string {
	if event == EventRecallGroupMessage || p.GroupID != "" {
		return store.SpaceGroup
	}
	return store.SpaceDirect
}

func (p MutatePayload) channel() string {
	if p.GroupID != "" {
		return p.GroupID
	}
	return p.ConversationID
}

// handleSend persists a message and fans it out to its channel. Direct
// and group sends share this path; they differ only in key space, access
// rule and the events emitted.
func (g *Gateway) handleSend(client *Client, space string, p SendPayload) {
	subj := client.Identity().Subject

	if err := validation.ValidateSend(p.Type, p.Content); err != nil {
		client.SendError(err.Error())
		return
	}

	var channelID string
	switch space {
	case store.SpaceDirect:
		channelID = p.ConversationID
		if channelID == "" {
			if p.ReceiverID == "" {
				client.SendError("receiverId or conversationId required")
				return
			}
			conv, err := store.ResolveConversation(subj, p.ReceiverID)
			if err != nil {
				logger.Warn("resolve_conversation_failed", "user", subj, "receiver", p.ReceiverID, "error", err)
				client.SendError("could not resolve conversation")
				return
			}
			channelID = conv
			// join live connections of both sides to the fresh channel
			g.hub.SubscribeIdentity(subj, channelID)
			g.hub.SubscribeIdentity(p.ReceiverID, channelID)
		} else if !access.CanAccess(subj, channelID) {
			client.SendError("access denied")
			return
		}
	case store.SpaceGroup:
		channelID = p.GroupID
		if channelID == "" || !access.CanAccess(subj, channelID) {
			client.SendError("access denied")
			return
		}
	}

	m := models.Message{
		SenderID:   subj,
		SenderName: client.Identity().DisplayName(),
		ReceiverID: p.ReceiverID,
		Type:       p.Type,
		Content:    p.Content,
		Timestamp:  p.Timestamp,
	}
	if space == store.SpaceDirect {
		m.ConversationID = channelID
	} else {
		m.GroupID = channelID
	}

	stored, err := store.AppendMessage(space, channelID, m)
	if err != nil {
		logger.Error("append_message_failed", "user", subj, "channel", channelID, "error", err)
		client.SendError("failed to save message")
		return
	}

	if space == store.SpaceDirect {
		g.hub.Publish(channelID, EventReceiveMessage, stored)
		g.hub.Publish(channelID, EventLastMessageUpdated, map[string]any{
			"conversationId": channelID,
			"lastMessage":    stored,
		})
	} else {
		g.hub.Publish(channelID, EventReceiveGroupMessage, stored)
		g.hub.Publish(channelID, EventLastMessageUpdated, map[string]any{
			"groupId":     channelID,
			"lastMessage": stored,
		})
	}
}

// handleRecall marks a message recalled for everyone. Only the sender may
// recall; recalling twice is a no-op.
func (g *Gateway) handleRecall(client *Client, space string, p MutatePayload) {
	subj := client.Identity().Subject
	channelID := p.channel()
	if channelID == "" || p.Timestamp == "" {
		client.SendError("channel and timestamp required")
		return
	}
	if !access.CanAccess(subj, channelID) {
		client.SendError("access denied")
		return
	}

	_, err := store.MutateMessage(space, channelID, p.Timestamp, func(m *models.Message) error {
		if m.SenderID != subj {
			return fmt.Errorf("only the sender can recall a message")
		}
		m.Status = models.StatusRecalled
		m.Type = models.StatusRecalled
		m.Content = ""
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			client.SendError("message not found")
		} else {
			client.SendError(err.Error())
		}
		return
	}
	g.hub.Publish(channelID, EventMessageRecalled, p)
}

// handleDeleteDirect hides a direct message for the requesting viewer
// only. The peer's view is untouched, so only the requester is notified.
func (g *Gateway) handleDeleteDirect(client *Client, p MutatePayload) {
	subj := client.Identity().Subject
	if p.ConversationID == "" || p.Timestamp == "" {
		client.SendError("conversationId and timestamp required")
		return
	}
	if !access.CanAccess(subj, p.ConversationID) {
		client.SendError("access denied")
		return
	}

	_, err := store.MutateMessage(store.SpaceDirect, p.ConversationID, p.Timestamp, func(m *models.Message) error {
		m.MarkDeletedFor(subj)
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			client.SendError("message not found")
		} else {
			client.SendError(err.Error())
		}
		return
	}
	_ = client.SendEvent(EventMessageDeleted, p)
}

// handleDeleteGroup soft-deletes a group message for the whole room. Only
// the sender may delete.
func (g *Gateway) handleDeleteGroup(client *Client, p MutatePayload) {
	subj := client.Identity().Subject
	if p.GroupID == "" || p.Timestamp == "" {
		client.SendError("groupId and timestamp required")
		return
	}
	if !access.CanAccess(subj, p.GroupID) {
		client.SendError("access denied")
		return
	}

	_, err := store.MutateMessage(store.SpaceGroup, p.GroupID, p.Timestamp, func(m *models.Message) error {
		if m.SenderID != subj {
			return fmt.Errorf("only the sender can delete a group message")
		}
		m.Status = models.StatusDeleted
		m.Content = ""
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			client.SendError("message not found")
		} else {
			client.SendError(err.Error())
		}
		return
	}
	g.hub.Publish(p.GroupID, EventMessageDeleted, p)
}

// handleForward copies message content into another channel the sender
// also has access to, stamped with its origin.
func (g *Gateway) handleForward(client *Client, p ForwardPayload) {
	subj := client.Identity().Subject

	if err := validation.ValidateSend(p.Type, p.Content); err != nil {
		client.SendError(err.Error())
		return
	}

	// the sender must prove access to the source channel; a forward
	// naming no source cannot be authorized
	src := p.FromConversationID
	if src == "" {
		src = p.FromGroupID
	}
	if src == "" {
		client.SendError("forward source required")
		return
	}
	if !access.CanAccess(subj, src) {
		client.SendError("access denied")
		return
	}

	forwardedName := p.OriginalSenderID
	if p.OriginalSenderID != "" {
		// best-effort display name from the forwarder's contact list
		if f, err := store.GetFriend(subj, p.OriginalSenderID); err == nil {
			if f.Nickname != "" {
				forwardedName = f.Nickname
			} else if f.FriendName != "" {
				forwardedName = f.FriendName
			}
		}
	}

	send := SendPayload{Type: p.Type, Content: p.Content}
	switch {
	case p.ToGroupID != "":
		send.GroupID = p.ToGroupID
	case p.ToConversationID != "":
		send.ConversationID = p.ToConversationID
	case p.ToReceiverID != "":
		send.ReceiverID = p.ToReceiverID
	default:
		client.SendError("forward target required")
		return
	}

	// reuse the send path, then stamp the forward origin on the stored row
	space := store.SpaceDirect
	channelID := send.ConversationID
	if send.GroupID != "" {
		space = store.SpaceGroup
		channelID = send.GroupID
	}
	if channelID != "" && !access.CanAccess(subj, channelID) {
		client.SendError("access denied")
		return
	}

	m := models.Message{
		SenderID:      subj,
		SenderName:    client.Identity().DisplayName(),
		Type:          p.Type,
		Content:       p.Content,
		ForwardedFrom: p.OriginalSenderID,
		ForwardedName: forwardedName,
	}
	if space == store.SpaceDirect {
		if channelID == "" {
			conv, err := store.ResolveConversation(subj, send.ReceiverID)
			if err != nil {
				client.SendError("could not resolve conversation")
				return
			}
			channelID = conv
			g.hub.SubscribeIdentity(subj, channelID)
			g.hub.SubscribeIdentity(send.ReceiverID, channelID)
		}
		m.ConversationID = channelID
	} else {
		m.GroupID = channelID
	}

	stored, err := store.AppendMessage(space, channelID, m)
	if err != nil {
		client.SendError("failed to save message")
		return
	}
	if space == store.SpaceDirect {
		g.hub.Publish(channelID, EventReceiveMessage, stored)
	} else {
		g.hub.Publish(channelID, EventReceiveGroupMessage, stored)
	}
	g.hub.Publish(channelID, EventLastMessageUpdated, map[string]any{
		"conversationId": stored.ConversationID,
		"groupId":        stored.GroupID,
		"lastMessage":    stored,
	})
}

// handleJoin subscribes the connection to an extra channel. Every dynamic
// join is access-checked, even for channels the client claims to know.
func (g *Gateway) handleJoin(client *Client, p JoinPayload) {
	channelID := p.ConversationID
	if channelID == "" {
		channelID = p.GroupID
	}
	if channelID == "" {
		client.SendError("channel required")
		return
	}
	if !access.CanAccess(client.Identity().Subject, channelID) {
		client.SendError("access denied")
		return
	}
	g.hub.Subscribe(client, channelID)
}

// handleNickname renames a friend. Both friend rows are updated so the
// name is consistent from either side, then the room is notified.
func (g *Gateway) handleNickname(client *Client, p NicknamePayload) {
	subj := client.Identity().Subject
	if p.FriendID == "" {
		client.SendError("friendId required")
		return
	}
	f, err := store.GetFriend(subj, p.FriendID)
	if err != nil {
		client.SendError("not friends")
		return
	}
	if err := store.UpdateFriendPair(subj, p.FriendID, func(fr *models.Friend) {
		fr.Nickname = p.Nickname
	}); err != nil {
		logger.Error("nickname_update_failed", "user", subj, "friend", p.FriendID, "error", err)
		client.SendError("failed to update nickname")
		return
	}
	if f.ConversationID != "" {
		g.publishSystemMessage(f.ConversationID, client,
			fmt.Sprintf("%s set the nickname to %q", client.Identity().DisplayName(), p.Nickname))
		g.hub.Publish(f.ConversationID, EventNicknameChanged, map[string]string{
			"conversationId": f.ConversationID,
			"friendId":       p.FriendID,
			"nickname":       p.Nickname,
			"changedBy":      subj,
		})
	}
}

// publishSystemMessage appends a server-generated announcement to the
// conversation and fans it out like a regular message.
func (g *Gateway) publishSystemMessage(conversationID string, client *Client, content string) {
	stored, err := store.AppendMessage(store.SpaceDirect, conversationID, models.Message{
		SenderID:       client.Identity().Subject,
		SenderName:     client.Identity().DisplayName(),
		ConversationID: conversationID,
		Type:           "system",
		Content:        content,
	})
	if err != nil {
		logger.Error("system_message_failed", "channel", conversationID, "error", err)
		return
	}
	g.hub.Publish(conversationID, EventReceiveMessage, stored)
	g.hub.Publish(conversationID, EventLastMessageUpdated, map[string]any{
		"conversationId": conversationID,
		"lastMessage":    stored,
	})
}

// handleTheme restyles a conversation for both sides.
func (g *Gateway) handleTheme(client *Client, p ThemePayload) {
	subj := client.Identity().Subject
	if p.FriendID == "" {
		client.SendError("friendId required")
		return
	}
	f, err := store.GetFriend(subj, p.FriendID)
	if err != nil {
		client.SendError("not friends")
		return
	}
	if err := store.UpdateFriendPair(subj, p.FriendID, func(fr *models.Friend) {
		fr.Theme = p.Theme
	}); err != nil {
		logger.Error("theme_update_failed", "user", subj, "friend", p.FriendID, "error", err)
		client.SendError("failed to update theme")
		return
	}
	if f.ConversationID != "" {
		g.publishSystemMessage(f.ConversationID, client,
			fmt.Sprintf("%s changed the theme to %q", client.Identity().DisplayName(), p.Theme))
		g.hub.Publish(f.ConversationID, EventThemeChanged, map[string]string{
			"conversationId": f.ConversationID,
			"theme":          p.Theme,
			"changedBy":      subj,
		})
	}
}
