// Package api exposes the REST surface: conversation history, contact
// management, group administration and media upload. Real-time fan-out
// for API-driven changes goes through the hub passed in explicitly.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatrelay/pkg/auth"
	"chatrelay/pkg/blob"
	"chatrelay/pkg/identity"
	"chatrelay/pkg/realtime"
	"chatrelay/pkg/utils"
)

// API bundles the dependencies the HTTP handlers need.
type API struct {
	hub       *realtime.Hub
	blobs     *blob.Store
	maxUpload int64
}

// New creates the API with an explicit hub and optional blob store.
func New(hub *realtime.Hub, blobs *blob.Store, maxUpload int64) *API {
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}
	return &API{hub: hub, blobs: blobs, maxUpload: maxUpload}
}

// Router builds the route table.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()

	chats := r.PathPrefix("/api/chats").Subrouter()
	chats.HandleFunc("/conversations", a.listConversations).Methods(http.MethodGet)
	chats.HandleFunc("/messages/{conversationId}", a.listMessages).Methods(http.MethodGet)
	chats.HandleFunc("/group-messages/{groupId}", a.listGroupMessages).Methods(http.MethodGet)
	chats.HandleFunc("/last-messages", a.listLastMessages).Methods(http.MethodGet)

	contacts := r.PathPrefix("/api/contacts").Subrouter()
	contacts.HandleFunc("/friends", a.listFriends).Methods(http.MethodGet)
	contacts.HandleFunc("/friends/{friendId}", a.removeFriend).Methods(http.MethodDelete)
	contacts.HandleFunc("/requests", a.listRequests).Methods(http.MethodGet)
	contacts.HandleFunc("/requests", a.sendRequest).Methods(http.MethodPost)
	contacts.HandleFunc("/requests/{requestId}/accept", a.acceptRequest).Methods(http.MethodPost)
	contacts.HandleFunc("/requests/{requestId}/reject", a.rejectRequest).Methods(http.MethodPost)

	groups := r.PathPrefix("/api/groups").Subrouter()
	groups.HandleFunc("", a.createGroup).Methods(http.MethodPost)
	groups.HandleFunc("", a.listGroups).Methods(http.MethodGet)
	groups.HandleFunc("/{groupId}", a.getGroup).Methods(http.MethodGet)
	groups.HandleFunc("/{groupId}", a.renameGroup).Methods(http.MethodPut)
	groups.HandleFunc("/{groupId}", a.dissolveGroup).Methods(http.MethodDelete)
	groups.HandleFunc("/{groupId}/members", a.addMember).Methods(http.MethodPost)
	groups.HandleFunc("/{groupId}/members/{userId}", a.removeMember).Methods(http.MethodDelete)
	groups.HandleFunc("/{groupId}/members/{userId}/role", a.assignRole).Methods(http.MethodPut)

	r.HandleFunc("/api/upload", a.upload).Methods(http.MethodPost)

	return r
}

// caller returns the verified identity or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
	}
	return ident, ok
}
