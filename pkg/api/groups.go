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
)

func (a *API) createGroup(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		Name      string   `json:"name"`
		MemberIDs []string `json:"memberIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		utils.JSONError(w, http.StatusBadRequest, "name required")
		return
	}
	if len(body.MemberIDs) == 0 {
		utils.JSONError(w, http.StatusBadRequest, "memberIds required")
		return
	}

	// every invited member must be a friend of the creator
	for _, uid := range body.MemberIDs {
		if uid == ident.Subject {
			continue
		}
		if _, err := store.GetFriend(ident.Subject, uid); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "all members must be in your friend list")
			return
		}
	}

	g := models.Group{
		GroupID:   utils.GenID(),
		Name:      body.Name,
		CreatedBy: ident.Subject,
		Members:   []models.GroupMember{{UserID: ident.Subject, Role: models.RoleAdmin}},
	}
	for _, uid := range body.MemberIDs {
		if uid == ident.Subject {
			continue
		}
		g.Members = append(g.Members, models.GroupMember{UserID: uid, Role: models.RoleMember})
	}
	if err := store.SaveGroup(g); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to save group")
		return
	}

	for _, m := range g.Members {
		a.hub.SubscribeIdentity(m.UserID, g.GroupID)
		a.hub.SendToIdentity(m.UserID, realtime.EventGroupCreated, g)
	}
	logger.Info("group_created", "group", g.GroupID, "creator", ident.Subject, "members", len(g.Members))
	_ = utils.JSONWrite(w, http.StatusCreated, g)
}

func (a *API) listGroups(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	groups, err := store.ListGroups(ident.Subject)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, groups)
}

// loadGroupMember loads the group and checks the caller is a member.
func loadGroupMember(w http.ResponseWriter, r *http.Request, subject string) (models.Group, bool) {
	groupID := mux.Vars(r)["groupId"]
	g, err := store.GetGroup(groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "group not found")
		} else {
			utils.JSONError(w, http.StatusInternalServerError, "failed to load group")
		}
		return g, false
	}
	if _, ok := g.Member(subject); !ok {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return g, false
	}
	return g, true
}

func (a *API) getGroup(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	g, ok := loadGroupMember(w, r, ident.Subject)
	if !ok {
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, g)
}

func (a *API) renameGroup(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	g, ok := loadGroupMember(w, r, ident.Subject)
	if !ok {
		return
	}
	if !g.IsAdmin(ident.Subject) {
		utils.JSONError(w, http.StatusForbidden, "admin role required")
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		utils.JSONError(w, http.StatusBadRequest, "name required")
		return
	}
	g.Name = body.Name
	if err := store.SaveGroup(g); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to save group")
		return
	}
	a.hub.Publish(g.GroupID, realtime.EventGroupUpdated, g)
	_ = utils.JSONWrite(w, http.StatusOK, g)
}

func (a *API) addMember(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	g, ok := loadGroupMember(w, r, ident.Subject)
	if !ok {
		return
	}
	if !g.IsAdmin(ident.Subject) {
		utils.JSONError(w, http.StatusForbidden, "admin role required")
		return
	}
	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		utils.JSONError(w, http.StatusBadRequest, "userId required")
		return
	}
	if _, err := store.GetFriend(ident.Subject, body.UserID); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "new members must be in your friend list")
		return
	}
	updated, err := store.AddGroupMember(g.GroupID, models.GroupMember{UserID: body.UserID, Role: models.RoleMember})
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to add member")
		return
	}
	a.hub.SubscribeIdentity(body.UserID, g.GroupID)
	a.hub.SendToIdentity(body.UserID, realtime.EventGroupCreated, updated)
	a.hub.Publish(g.GroupID, realtime.EventGroupUpdated, updated)
	_ = utils.JSONWrite(w, http.StatusOK, updated)
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	g, ok := loadGroupMember(w, r, ident.Subject)
	if !ok {
		return
	}
	if !g.IsAdmin(ident.Subject) {
		utils.JSONError(w, http.StatusForbidden, "admin role required")
		return
	}
	target := mux.Vars(r)["userId"]
	// the creator's admin role is fixed
	if target == g.CreatedBy {
		utils.JSONError(w, http.StatusBadRequest, "the creator's role cannot be changed")
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		(body.Role != models.RoleAdmin && body.Role != models.RoleMember) {
		utils.JSONError(w, http.StatusBadRequest, "role must be admin or member")
		return
	}
	if _, ok := g.Member(target); !ok {
		utils.JSONError(w, http.StatusNotFound, "not a member")
		return
	}
	updated, err := store.SetGroupMemberRole(g.GroupID, target, body.Role)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to change role")
		return
	}
	a.hub.Publish(g.GroupID, realtime.EventGroupUpdated, updated)
	logger.Info("group_role_assigned", "group", g.GroupID, "user", target, "role", body.Role, "by", ident.Subject)
	_ = utils.JSONWrite(w, http.StatusOK, updated)
}

func (a *API) removeMember(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	g, ok := loadGroupMember(w, r, ident.Subject)
	if !ok {
		return
	}
	target := mux.Vars(r)["userId"]
	// admins can remove anyone; members may only remove themselves
	if target != ident.Subject && !g.IsAdmin(ident.Subject) {
		utils.JSONError(w, http.StatusForbidden, "admin role required")
		return
	}
	if target == g.CreatedBy {
		utils.JSONError(w, http.StatusBadRequest, "the creator cannot leave; dissolve the group instead")
		return
	}
	updated, err := store.RemoveGroupMember(g.GroupID, target)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}
	a.hub.UnsubscribeIdentity(target, g.GroupID)
	a.hub.SendToIdentity(target, realtime.EventGroupUpdated, updated)
	a.hub.Publish(g.GroupID, realtime.EventGroupUpdated, updated)
	logger.Info("group_member_removed", "group", g.GroupID, "user", target, "by", ident.Subject)
	_ = utils.JSONWrite(w, http.StatusOK, updated)
}

func (a *API) dissolveGroup(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	g, ok := loadGroupMember(w, r, ident.Subject)
	if !ok {
		return
	}
	if g.CreatedBy != ident.Subject {
		utils.JSONError(w, http.StatusForbidden, "only the creator can dissolve a group")
		return
	}
	// notify before the room is torn down
	a.hub.Publish(g.GroupID, realtime.EventGroupDissolved, map[string]string{
		"groupId": g.GroupID,
		"by":      ident.Subject,
	})
	if err := store.DeleteGroup(g.GroupID); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to dissolve group")
		return
	}
	for _, m := range g.Members {
		a.hub.UnsubscribeIdentity(m.UserID, g.GroupID)
	}
	logger.Info("group_dissolved", "group", g.GroupID, "by", ident.Subject)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "dissolved"})
}
