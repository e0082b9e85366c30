package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/utils"
)

func friendKey(userID, friendID string) string {
	return "friend:" + userID + ":" + friendID
}

func requestKey(receiverID, requestID string) string {
	return "friendreq:" + receiverID + ":" + requestID
}

// RequestID derives the canonical request id for a sender/receiver pair,
// so a re-sent request overwrites the previous one.
func RequestID(senderID, receiverID string) string {
	return senderID + "_" + receiverID
}

// SaveFriend writes one direction of a friendship edge.
func SaveFriend(f models.Friend) error {
	if f.UserID == "" || f.FriendID == "" {
		return fmt.Errorf("friend edge requires userId and friendId")
	}
	if f.CreatedAt == "" {
		f.CreatedAt = utils.NowTimestamp()
	}
	return setJSON(friendKey(f.UserID, f.FriendID), f)
}

// GetFriend loads one direction of a friendship edge.
func GetFriend(userID, friendID string) (models.Friend, error) {
	var f models.Friend
	err := getJSON(friendKey(userID, friendID), &f)
	return f, err
}

// ListFriends returns every friend edge owned by userID.
func ListFriends(userID string) ([]models.Friend, error) {
	iter, err := prefixIter([]byte("friend:" + userID + ":"))
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Friend
	for ok := iter.First(); ok; ok = iter.Next() {
		var f models.Friend
		if err := json.Unmarshal(iter.Value(), &f); err != nil {
			return nil, fmt.Errorf("invalid friend JSON at %s: %w", iter.Key(), err)
		}
		out = append(out, f)
	}
	return out, iter.Error()
}

// DeleteFriendPair removes both directions of a friendship edge.
func DeleteFriendPair(a, b string) error {
	var g errgroup.Group
	g.Go(func() error { return deleteKey(friendKey(a, b)) })
	g.Go(func() error { return deleteKey(friendKey(b, a)) })
	return g.Wait()
}

// ResolveConversation returns the conversation id shared by two friends,
// allocating one lazily on first use. Both friend rows are updated so the
// id is stable regardless of which side asks first. The two writes are
// not atomic; a crash between them leaves one row behind, and the next
// resolve adopts whichever id survived.
func ResolveConversation(userID, friendID string) (string, error) {
	fa, errA := GetFriend(userID, friendID)
	if errA != nil {
		if errors.Is(errA, ErrNotFound) {
			return "", fmt.Errorf("users %s and %s are not friends", userID, friendID)
		}
		return "", errA
	}
	if fa.ConversationID != "" {
		return fa.ConversationID, nil
	}

	fb, errB := GetFriend(friendID, userID)
	if errB != nil && !errors.Is(errB, ErrNotFound) {
		return "", errB
	}

	convID := fb.ConversationID
	if convID == "" {
		convID = utils.GenID()
	}
	fa.ConversationID = convID
	fb.ConversationID = convID
	if fb.UserID == "" {
		// the reverse edge was missing; repair it
		fb = models.Friend{UserID: friendID, FriendID: userID, FriendName: userID, ConversationID: convID}
	}

	var g errgroup.Group
	g.Go(func() error { return SaveFriend(fa) })
	g.Go(func() error { return SaveFriend(fb) })
	if err := g.Wait(); err != nil {
		return "", err
	}
	logger.Info("conversation_resolved", "user", userID, "friend", friendID, "conversation", convID)
	return convID, nil
}

// UpdateFriendPair applies fn to both directions of a friendship edge and
// persists them. Used for nickname and theme changes, which the product
// treats as shared conversation state.
func UpdateFriendPair(a, b string, fn func(*models.Friend)) error {
	fa, err := GetFriend(a, b)
	if err != nil {
		return err
	}
	fb, err := GetFriend(b, a)
	if err != nil {
		return err
	}
	fn(&fa)
	fn(&fb)
	var g errgroup.Group
	g.Go(func() error { return SaveFriend(fa) })
	g.Go(func() error { return SaveFriend(fb) })
	return g.Wait()
}

// SaveFriendRequest writes a contact request, deriving RequestID and
// CreatedAt when absent.
func SaveFriendRequest(fr models.FriendRequest) error {
	if fr.SenderID == "" || fr.ReceiverID == "" {
		return fmt.Errorf("friend request requires senderId and receiverId")
	}
	if fr.RequestID == "" {
		fr.RequestID = RequestID(fr.SenderID, fr.ReceiverID)
	}
	if fr.Status == "" {
		fr.Status = models.RequestPending
	}
	if fr.CreatedAt == "" {
		fr.CreatedAt = utils.NowTimestamp()
	}
	return setJSON(requestKey(fr.ReceiverID, fr.RequestID), fr)
}

// GetFriendRequest loads a contact request addressed to receiverID.
func GetFriendRequest(receiverID, requestID string) (models.FriendRequest, error) {
	var fr models.FriendRequest
	err := getJSON(requestKey(receiverID, requestID), &fr)
	return fr, err
}

// DeleteFriendRequest removes a contact request.
func DeleteFriendRequest(receiverID, requestID string) error {
	return deleteKey(requestKey(receiverID, requestID))
}

// ListFriendRequests returns every request addressed to receiverID.
func ListFriendRequests(receiverID string) ([]models.FriendRequest, error) {
	iter, err := prefixIter([]byte("friendreq:" + receiverID + ":"))
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.FriendRequest
	for ok := iter.First(); ok; ok = iter.Next() {
		var fr models.FriendRequest
		if err := json.Unmarshal(iter.Value(), &fr); err != nil {
			return nil, fmt.Errorf("invalid friend request JSON at %s: %w", iter.Key(), err)
		}
		out = append(out, fr)
	}
	return out, iter.Error()
}

// ListSettledRequestsBefore returns accepted or rejected requests whose
// settle time is older than the cutoff. Used by the retention runner.
func ListSettledRequestsBefore(cutoff time.Time) ([]models.FriendRequest, error) {
	iter, err := prefixIter([]byte("friendreq:"))
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.FriendRequest
	for ok := iter.First(); ok; ok = iter.Next() {
		var fr models.FriendRequest
		if err := json.Unmarshal(iter.Value(), &fr); err != nil {
			continue
		}
		if fr.Status == models.RequestPending {
			continue
		}
		settled := fr.SettledAt
		if settled == "" {
			settled = fr.CreatedAt
		}
		t, err := time.Parse(time.RFC3339Nano, settled)
		if err != nil {
			continue
		}
		if t.Before(cutoff) {
			out = append(out, fr)
		}
	}
	return out, iter.Error()
}
