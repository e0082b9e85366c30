package access

import (
	"testing"

	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
)

func openTestDB(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestCanAccessGroupMembership(t *testing.T) {
	openTestDB(t)

	g := models.Group{
		GroupID:   "g1",
		Name:      "room",
		CreatedBy: "alice",
		Members: []models.GroupMember{
			{UserID: "alice", Role: models.RoleAdmin},
			{UserID: "bob", Role: models.RoleMember},
		},
	}
	if err := store.SaveGroup(g); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}

	if !CanAccess("alice", "g1") {
		t.Fatalf("admin denied")
	}
	if !CanAccess("bob", "g1") {
		t.Fatalf("member denied")
	}
	if CanAccess("carol", "g1") {
		t.Fatalf("non-member allowed")
	}
}

func TestCanAccessConversation(t *testing.T) {
	openTestDB(t)

	if err := store.SaveFriend(models.Friend{UserID: "alice", FriendID: "bob", ConversationID: "conv1"}); err != nil {
		t.Fatalf("SaveFriend: %v", err)
	}

	if !CanAccess("alice", "conv1") {
		t.Fatalf("participant denied")
	}
	if CanAccess("carol", "conv1") {
		t.Fatalf("outsider allowed")
	}
}

func TestCanAccessFailsClosed(t *testing.T) {
	openTestDB(t)

	if CanAccess("", "conv1") {
		t.Fatalf("empty user allowed")
	}
	if CanAccess("alice", "") {
		t.Fatalf("empty channel allowed")
	}
	if CanAccess("alice", "unknown-channel") {
		t.Fatalf("unknown channel allowed")
	}
}

func TestPeer(t *testing.T) {
	openTestDB(t)

	if err := store.SaveFriend(models.Friend{UserID: "alice", FriendID: "bob", ConversationID: "conv1"}); err != nil {
		t.Fatalf("SaveFriend: %v", err)
	}

	peer, ok := Peer("alice", "conv1")
	if !ok || peer != "bob" {
		t.Fatalf("expected bob; got %q ok=%v", peer, ok)
	}
	if _, ok := Peer("alice", "conv-unknown"); ok {
		t.Fatalf("unknown conversation resolved a peer")
	}
}
