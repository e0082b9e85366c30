package models

// Message statuses. A recalled message keeps its row but its content is no
// longer shown to anyone; a deleted group message is hidden for the whole
// room. Direct-chat deletes are tracked per viewer in DeletedBy instead.
const (
	StatusSent     = "sent"
	StatusRecalled = "recalled"
	StatusDeleted  = "deleted"
)

// Message is a single chat message in a direct conversation or a group
// room. ConversationID and GroupID are mutually exclusive.
type Message struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName,omitempty"`
	ReceiverID     string `json:"receiverId,omitempty"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
	Status         string `json:"status,omitempty"`
	// Set when the message was forwarded from another channel.
	ForwardedFrom string `json:"forwardedFrom,omitempty"`
	ForwardedName string `json:"forwardedName,omitempty"`
	// Users who removed this message from their own view.
	DeletedBy []string `json:"deletedBy,omitempty"`
}

// DeletedFor reports whether the given user removed the message from
// their view.
func (m *Message) DeletedFor(userID string) bool {
	for _, u := range m.DeletedBy {
		if u == userID {
			return true
		}
	}
	return false
}

// MarkDeletedFor records a per-viewer delete. It is idempotent.
func (m *Message) MarkDeletedFor(userID string) {
	if m.DeletedFor(userID) {
		return
	}
	m.DeletedBy = append(m.DeletedBy, userID)
}
