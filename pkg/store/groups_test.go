package store

import (
	"errors"
	"testing"

	"chatrelay/pkg/models"
)

func testGroup(id string) models.Group {
	return models.Group{
		GroupID:   id,
		Name:      "friends",
		CreatedBy: "alice",
		Members: []models.GroupMember{
			{UserID: "alice", Role: models.RoleAdmin},
			{UserID: "bob", Role: models.RoleMember},
		},
	}
}

func TestSaveAndGetGroup(t *testing.T) {
	openTestDB(t)

	if err := SaveGroup(testGroup("g1")); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	g, err := GetGroup("g1")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if g.Name != "friends" || len(g.Members) != 2 {
		t.Fatalf("unexpected group: %+v", g)
	}
	if g.CreatedAt == "" {
		t.Fatalf("CreatedAt not filled")
	}
	if !g.IsAdmin("alice") {
		t.Fatalf("creator must be admin")
	}
	if g.IsAdmin("bob") {
		t.Fatalf("bob must not be admin")
	}
}

func TestListGroupsUsesMemberIndex(t *testing.T) {
	openTestDB(t)

	if err := SaveGroup(testGroup("g1")); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	other := models.Group{
		GroupID:   "g2",
		Name:      "no-bob",
		CreatedBy: "carol",
		Members:   []models.GroupMember{{UserID: "carol", Role: models.RoleAdmin}},
	}
	if err := SaveGroup(other); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}

	groups, err := ListGroups("bob")
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 1 || groups[0].GroupID != "g1" {
		t.Fatalf("expected only g1 for bob; got %+v", groups)
	}
}

func TestAddGroupMember(t *testing.T) {
	openTestDB(t)

	if err := SaveGroup(testGroup("g1")); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}

	g, err := AddGroupMember("g1", models.GroupMember{UserID: "carol"})
	if err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}
	if len(g.Members) != 3 {
		t.Fatalf("expected 3 members; got %d", len(g.Members))
	}
	m, ok := g.Member("carol")
	if !ok || m.Role != models.RoleMember {
		t.Fatalf("carol not added with member role: %+v", m)
	}

	// idempotent
	g, err = AddGroupMember("g1", models.GroupMember{UserID: "carol"})
	if err != nil {
		t.Fatalf("AddGroupMember again: %v", err)
	}
	if len(g.Members) != 3 {
		t.Fatalf("duplicate member added: %d", len(g.Members))
	}

	groups, _ := ListGroups("carol")
	if len(groups) != 1 {
		t.Fatalf("member index not updated for carol")
	}
}

func TestRemoveGroupMember(t *testing.T) {
	openTestDB(t)

	if err := SaveGroup(testGroup("g1")); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	g, err := RemoveGroupMember("g1", "bob")
	if err != nil {
		t.Fatalf("RemoveGroupMember: %v", err)
	}
	if _, ok := g.Member("bob"); ok {
		t.Fatalf("bob still a member")
	}
	groups, _ := ListGroups("bob")
	if len(groups) != 0 {
		t.Fatalf("member index not cleaned for bob")
	}
}

func TestDeleteGroupPurgesHistory(t *testing.T) {
	openTestDB(t)

	if err := SaveGroup(testGroup("g1")); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	if _, err := AppendMessage(SpaceGroup, "g1", models.Message{SenderID: "alice", Content: "hello"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if err := DeleteGroup("g1"); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	if _, err := GetGroup("g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("group row still present: %v", err)
	}
	msgs, _ := ListMessages(SpaceGroup, "g1", 0, false)
	if len(msgs) != 0 {
		t.Fatalf("history not purged: %d messages", len(msgs))
	}
	for _, uid := range []string{"alice", "bob"} {
		if groups, _ := ListGroups(uid); len(groups) != 0 {
			t.Fatalf("member index not cleaned for %s", uid)
		}
	}
}
