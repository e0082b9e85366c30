// Package access decides whether a user may read or publish to a
// channel. Every check fails closed: a store error denies access rather
// than letting the caller through.
package access

import (
	"errors"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/store"
)

// CanAccess reports whether userID may use the channel. A channel id is
// either a group id or a direct conversation id; groups are checked by
// membership, conversations by scanning the user's friend edges.
func CanAccess(userID, channelID string) bool {
	if userID == "" || channelID == "" {
		return false
	}
	if g, err := store.GetGroup(channelID); err == nil {
		_, ok := g.Member(userID)
		return ok
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("access_check_failed", "user", userID, "channel", channelID, "error", err)
		return false
	}

	friends, err := store.ListFriends(userID)
	if err != nil {
		logger.Warn("access_check_failed", "user", userID, "channel", channelID, "error", err)
		return false
	}
	for _, f := range friends {
		if f.ConversationID == channelID {
			return true
		}
	}
	return false
}

// Peer returns the other participant of a direct conversation, from the
// perspective of userID. The second return value is false when the
// conversation is unknown to the user.
func Peer(userID, conversationID string) (string, bool) {
	friends, err := store.ListFriends(userID)
	if err != nil {
		return "", false
	}
	for _, f := range friends {
		if f.ConversationID == conversationID {
			return f.FriendID, true
		}
	}
	return "", false
}
