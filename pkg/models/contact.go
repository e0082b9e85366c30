package models

// Friend is one direction of a friendship edge. Every accepted friendship
// is stored twice, once per owner, and the two rows share a ConversationID.
type Friend struct {
	UserID         string `json:"userId"`
	FriendID       string `json:"friendId"`
	FriendName     string `json:"friendName,omitempty"`
	Nickname       string `json:"nickname,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Theme          string `json:"theme,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

// Friend request statuses.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// FriendRequest is a pending or settled contact request. RequestID is
// derived from the sender/receiver pair so duplicates overwrite.
type FriendRequest struct {
	RequestID  string `json:"requestId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
	ReceiverID string `json:"receiverId"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt,omitempty"`
	SettledAt  string `json:"settledAt,omitempty"`
}
