package models

// Group member roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// GroupMember ties a user to a group with a role.
type GroupMember struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Group is a multi-party room. The creator starts as the only admin.
type Group struct {
	GroupID   string        `json:"groupId"`
	Name      string        `json:"name"`
	CreatedBy string        `json:"createdBy"`
	CreatedAt string        `json:"createdAt,omitempty"`
	Members   []GroupMember `json:"members"`
}

// Member returns the membership entry for userID, if any.
func (g *Group) Member(userID string) (GroupMember, bool) {
	for _, m := range g.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return GroupMember{}, false
}

// IsAdmin reports whether userID holds the admin role in the group.
func (g *Group) IsAdmin(userID string) bool {
	m, ok := g.Member(userID)
	return ok && m.Role == RoleAdmin
}
