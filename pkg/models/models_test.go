package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessagePerViewerDelete(t *testing.T) {
	m := Message{MessageID: "m1", SenderID: "alice", Content: "hi"}

	require.False(t, m.DeletedFor("bob"))
	m.MarkDeletedFor("bob")
	require.True(t, m.DeletedFor("bob"))
	require.False(t, m.DeletedFor("alice"))

	// idempotent
	m.MarkDeletedFor("bob")
	require.Len(t, m.DeletedBy, 1)
}

func TestMessageJSONOmitsEmptyFields(t *testing.T) {
	m := Message{MessageID: "m1", SenderID: "alice", Type: "text", Content: "hi", Timestamp: "t"}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.NotContains(t, string(b), "groupId")
	require.NotContains(t, string(b), "deletedBy")
	require.NotContains(t, string(b), "forwardedFrom")
}

func TestGroupMembership(t *testing.T) {
	g := Group{
		GroupID:   "g1",
		CreatedBy: "alice",
		Members: []GroupMember{
			{UserID: "alice", Role: RoleAdmin},
			{UserID: "bob", Role: RoleMember},
		},
	}

	m, ok := g.Member("bob")
	require.True(t, ok)
	require.Equal(t, RoleMember, m.Role)

	_, ok = g.Member("stranger")
	require.False(t, ok)

	require.True(t, g.IsAdmin("alice"))
	require.False(t, g.IsAdmin("bob"))
	require.False(t, g.IsAdmin("stranger"))
}
