package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"chatrelay/pkg/access"
	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
	"chatrelay/pkg/utils"
)

// conversationView is a friend edge enriched for the chat list.
type conversationView struct {
	ConversationID string `json:"conversationId"`
	FriendID       string `json:"friendId"`
	FriendName     string `json:"friendName,omitempty"`
	Nickname       string `json:"nickname,omitempty"`
	Theme          string `json:"theme,omitempty"`
}

func (a *API) listConversations(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	friends, err := store.ListFriends(ident.Subject)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	out := make([]conversationView, 0, len(friends))
	for _, f := range friends {
		out = append(out, conversationView{
			ConversationID: f.ConversationID,
			FriendID:       f.FriendID,
			FriendName:     f.FriendName,
			Nickname:       f.Nickname,
			Theme:          f.Theme,
		})
	}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

func listParams(r *http.Request) (limit int, desc bool) {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	desc = strings.EqualFold(r.URL.Query().Get("sort"), "desc")
	return limit, desc
}

// visibleTo filters out messages the viewer deleted from their own
// view. Recalled content is already blanked on the stored row.
func visibleTo(userID string, msgs []models.Message) []models.Message {
	out := msgs[:0]
	for _, m := range msgs {
		if m.DeletedFor(userID) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	convID := mux.Vars(r)["conversationId"]
	if !access.CanAccess(ident.Subject, convID) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	limit, desc := listParams(r)
	msgs, err := store.ListMessages(store.SpaceDirect, convID, limit, desc)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, visibleTo(ident.Subject, msgs))
}

func (a *API) listGroupMessages(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	groupID := mux.Vars(r)["groupId"]
	if !access.CanAccess(ident.Subject, groupID) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	limit, desc := listParams(r)
	msgs, err := store.ListMessages(store.SpaceGroup, groupID, limit, desc)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, msgs)
}

// lastMessageView pairs a channel with its newest message.
type lastMessageView struct {
	ConversationID string          `json:"conversationId,omitempty"`
	GroupID        string          `json:"groupId,omitempty"`
	LastMessage    *models.Message `json:"lastMessage,omitempty"`
}

func (a *API) listLastMessages(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	var out []lastMessageView

	friends, err := store.ListFriends(ident.Subject)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}
	for _, f := range friends {
		if f.ConversationID == "" {
			continue
		}
		v := lastMessageView{ConversationID: f.ConversationID}
		if m, found, err := store.LatestMessage(store.SpaceDirect, f.ConversationID); err == nil && found {
			if !m.DeletedFor(ident.Subject) {
				v.LastMessage = &m
			}
		}
		out = append(out, v)
	}

	groups, err := store.ListGroups(ident.Subject)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}
	for _, g := range groups {
		v := lastMessageView{GroupID: g.GroupID}
		if m, found, err := store.LatestMessage(store.SpaceGroup, g.GroupID); err == nil && found {
			v.LastMessage = &m
		}
		out = append(out, v)
	}

	if out == nil {
		out = []lastMessageView{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}
