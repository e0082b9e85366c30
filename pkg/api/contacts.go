package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/realtime"
	"chatrelay/pkg/store"
	"chatrelay/pkg/utils"

	"golang.org/x/sync/errgroup"
)

func (a *API) listFriends(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	friends, err := store.ListFriends(ident.Subject)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list friends")
		return
	}
	if friends == nil {
		friends = []models.Friend{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, friends)
}

func (a *API) listRequests(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	reqs, err := store.ListFriendRequests(ident.Subject)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}
	pending := make([]models.FriendRequest, 0, len(reqs))
	for _, fr := range reqs {
		if fr.Status == models.RequestPending {
			pending = append(pending, fr)
		}
	}
	_ = utils.JSONWrite(w, http.StatusOK, pending)
}

func (a *API) sendRequest(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		ReceiverID string `json:"receiverId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ReceiverID == "" {
		utils.JSONError(w, http.StatusBadRequest, "receiverId required")
		return
	}
	if body.ReceiverID == ident.Subject {
		utils.JSONError(w, http.StatusBadRequest, "cannot add yourself")
		return
	}
	if _, err := store.GetFriend(ident.Subject, body.ReceiverID); err == nil {
		utils.JSONError(w, http.StatusBadRequest, "already friends")
		return
	}

	fr := models.FriendRequest{
		SenderID:   ident.Subject,
		SenderName: ident.DisplayName(),
		ReceiverID: body.ReceiverID,
	}
	if err := store.SaveFriendRequest(fr); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to save request")
		return
	}
	fr.RequestID = store.RequestID(fr.SenderID, fr.ReceiverID)
	a.hub.SendToIdentity(body.ReceiverID, realtime.EventReceiveFriendRequest, fr)
	logger.Info("friend_request_sent", "sender", ident.Subject, "receiver", body.ReceiverID)
	_ = utils.JSONWrite(w, http.StatusCreated, fr)
}

func (a *API) acceptRequest(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	requestID := mux.Vars(r)["requestId"]
	fr, err := store.GetFriendRequest(ident.Subject, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "request not found")
		} else {
			utils.JSONError(w, http.StatusInternalServerError, "failed to load request")
		}
		return
	}
	if fr.Status != models.RequestPending {
		utils.JSONError(w, http.StatusBadRequest, "request already settled")
		return
	}

	convID := utils.GenID()
	var g errgroup.Group
	g.Go(func() error {
		return store.SaveFriend(models.Friend{
			UserID:         ident.Subject,
			FriendID:       fr.SenderID,
			FriendName:     fr.SenderName,
			ConversationID: convID,
		})
	})
	g.Go(func() error {
		return store.SaveFriend(models.Friend{
			UserID:         fr.SenderID,
			FriendID:       ident.Subject,
			FriendName:     ident.DisplayName(),
			ConversationID: convID,
		})
	})
	if err := g.Wait(); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to save friendship")
		return
	}

	fr.Status = models.RequestAccepted
	fr.SettledAt = utils.NowTimestamp()
	if err := store.SaveFriendRequest(fr); err != nil {
		logger.Error("request_settle_failed", "request", requestID, "error", err)
	}

	// join live connections of both sides to the new conversation
	a.hub.SubscribeIdentity(ident.Subject, convID)
	a.hub.SubscribeIdentity(fr.SenderID, convID)

	payload := map[string]string{
		"conversationId": convID,
		"friendId":       ident.Subject,
		"friendName":     ident.DisplayName(),
	}
	a.hub.SendToIdentity(fr.SenderID, realtime.EventFriendRequestAccepted, payload)
	a.hub.SendToIdentity(fr.SenderID, realtime.EventFriendAdded, payload)
	a.hub.SendToIdentity(ident.Subject, realtime.EventFriendAdded, map[string]string{
		"conversationId": convID,
		"friendId":       fr.SenderID,
		"friendName":     fr.SenderName,
	})
	logger.Info("friend_request_accepted", "request", requestID, "conversation", convID)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"conversationId": convID})
}

func (a *API) rejectRequest(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	requestID := mux.Vars(r)["requestId"]
	fr, err := store.GetFriendRequest(ident.Subject, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "request not found")
		} else {
			utils.JSONError(w, http.StatusInternalServerError, "failed to load request")
		}
		return
	}
	if fr.Status != models.RequestPending {
		utils.JSONError(w, http.StatusBadRequest, "request already settled")
		return
	}
	fr.Status = models.RequestRejected
	fr.SettledAt = utils.NowTimestamp()
	if err := store.SaveFriendRequest(fr); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to save request")
		return
	}
	a.hub.SendToIdentity(fr.SenderID, realtime.EventFriendRequestRejected, map[string]string{
		"requestId": requestID,
		"by":        ident.Subject,
	})
	_ = utils.JSONWrite(w, http.StatusOK, fr)
}

func (a *API) removeFriend(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	friendID := mux.Vars(r)["friendId"]
	f, err := store.GetFriend(ident.Subject, friendID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "not friends")
		} else {
			utils.JSONError(w, http.StatusInternalServerError, "failed to load friend")
		}
		return
	}
	if err := store.DeleteFriendPair(ident.Subject, friendID); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to remove friend")
		return
	}
	if f.ConversationID != "" {
		a.hub.UnsubscribeIdentity(ident.Subject, f.ConversationID)
		a.hub.UnsubscribeIdentity(friendID, f.ConversationID)
	}
	payload := map[string]string{"friendId": ident.Subject}
	a.hub.SendToIdentity(friendID, realtime.EventFriendRemoved, payload)
	logger.Info("friend_removed", "user", ident.Subject, "friend", friendID)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "removed"})
}
