package store

import (
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/utils"
)

func groupKey(groupID string) string {
	return "group:" + groupID
}

// memberKey is a membership index entry so a user's groups can be listed
// without scanning every group.
func memberKey(userID, groupID string) string {
	return "groupmember:" + userID + ":" + groupID
}

// SaveGroup writes the group row and a membership index entry per member.
func SaveGroup(g models.Group) error {
	if g.GroupID == "" {
		return fmt.Errorf("group requires groupId")
	}
	if g.CreatedAt == "" {
		g.CreatedAt = utils.NowTimestamp()
	}
	if err := setJSON(groupKey(g.GroupID), g); err != nil {
		return err
	}
	var eg errgroup.Group
	for _, m := range g.Members {
		m := m
		eg.Go(func() error { return setJSON(memberKey(m.UserID, g.GroupID), g.GroupID) })
	}
	return eg.Wait()
}

// GetGroup loads a group by id.
func GetGroup(groupID string) (models.Group, error) {
	var g models.Group
	err := getJSON(groupKey(groupID), &g)
	return g, err
}

// ListGroups returns every group the user belongs to.
func ListGroups(userID string) ([]models.Group, error) {
	iter, err := prefixIter([]byte("groupmember:" + userID + ":"))
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Group
	for ok := iter.First(); ok; ok = iter.Next() {
		var gid string
		if err := json.Unmarshal(iter.Value(), &gid); err != nil {
			continue
		}
		g, err := GetGroup(gid)
		if err != nil {
			// stale index entry; skip
			continue
		}
		out = append(out, g)
	}
	return out, iter.Error()
}

// AddGroupMember appends a member to the group and updates the index.
// Adding an existing member is a no-op.
func AddGroupMember(groupID string, member models.GroupMember) (models.Group, error) {
	g, err := GetGroup(groupID)
	if err != nil {
		return g, err
	}
	if _, ok := g.Member(member.UserID); ok {
		return g, nil
	}
	if member.Role == "" {
		member.Role = models.RoleMember
	}
	g.Members = append(g.Members, member)
	if err := setJSON(groupKey(groupID), g); err != nil {
		return g, err
	}
	if err := setJSON(memberKey(member.UserID, groupID), groupID); err != nil {
		return g, err
	}
	logger.Info("group_member_added", "group", groupID, "user", member.UserID)
	return g, nil
}

// SetGroupMemberRole changes a member's role in place.
func SetGroupMemberRole(groupID, userID, role string) (models.Group, error) {
	g, err := GetGroup(groupID)
	if err != nil {
		return g, err
	}
	found := false
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			g.Members[i].Role = role
			found = true
			break
		}
	}
	if !found {
		return g, fmt.Errorf("user %s is not a member of group %s", userID, groupID)
	}
	if err := setJSON(groupKey(groupID), g); err != nil {
		return g, err
	}
	logger.Info("group_role_changed", "group", groupID, "user", userID, "role", role)
	return g, nil
}

// RemoveGroupMember removes a member and its index entry.
func RemoveGroupMember(groupID, userID string) (models.Group, error) {
	g, err := GetGroup(groupID)
	if err != nil {
		return g, err
	}
	kept := g.Members[:0]
	for _, m := range g.Members {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	g.Members = kept
	if err := setJSON(groupKey(groupID), g); err != nil {
		return g, err
	}
	if err := deleteKey(memberKey(userID, groupID)); err != nil {
		return g, err
	}
	logger.Info("group_member_removed", "group", groupID, "user", userID)
	return g, nil
}

// DeleteGroup removes the group row, all membership index entries and the
// group's message history.
func DeleteGroup(groupID string) error {
	g, err := GetGroup(groupID)
	if err != nil {
		return err
	}
	var eg errgroup.Group
	for _, m := range g.Members {
		m := m
		eg.Go(func() error { return deleteKey(memberKey(m.UserID, groupID)) })
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	if err := deleteKey(groupKey(groupID)); err != nil {
		return err
	}
	if err := DeleteChannelMessages(SpaceGroup, groupID); err != nil {
		return err
	}
	logger.Info("group_deleted", "group", groupID)
	return nil
}
