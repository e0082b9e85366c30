package realtime

import "encoding/json"

// Event names carried on the wire. Client-initiated events are handled by
// the gateway dispatcher; server-initiated ones are published by handlers
// and by the HTTP API.
const (
	// Client -> Server
	EventSendMessage        = "sendMessage"
	EventRecallMessage      = "recallMessage"
	EventDeleteMessage      = "deleteMessage"
	EventForwardMessage     = "forwardMessage"
	EventJoinConversation   = "joinConversation"
	EventJoinGroup          = "joinGroup"
	EventSendGroupMessage   = "sendGroupMessage"
	EventRecallGroupMessage = "recallGroupMessage"
	EventDeleteGroupMessage = "deleteGroupMessage"
	EventForwardGroupMsg    = "forwardGroupMessage"
	EventChangeNickname     = "changeNickname"
	EventChangeTheme        = "changeTheme"

	// Call signaling, relayed without inspecting the signal body.
	EventCallRequest    = "callRequest"
	EventCallResponse   = "callResponse"
	EventOffer          = "offer"
	EventAnswer         = "answer"
	EventICECandidate   = "iceCandidate"
	EventCallEnd        = "callEnd"
	EventStartVideoCall = "startVideoCall"
	EventVideoCallEnded = "videoCallEnded"
	EventGroupOffer     = "group:offer"
	EventGroupAnswer    = "group:answer"
	EventGroupCandidate = "group:candidate"

	// Server -> Client
	EventReceiveMessage      = "receiveMessage"
	EventReceiveGroupMessage = "receiveGroupMessage"
	EventMessageRecalled     = "messageRecalled"
	EventMessageDeleted      = "messageDeleted"
	EventLastMessageUpdated  = "lastMessageUpdated"
	EventNicknameChanged     = "nicknameChanged"
	EventThemeChanged        = "themeChanged"
	EventError               = "error"

	// Contact and group lifecycle, emitted by the HTTP API.
	EventReceiveFriendRequest   = "receiveFriendRequest"
	EventFriendRequestAccepted  = "friendRequestAccepted"
	EventFriendRequestRejected  = "friendRequestRejected"
	EventFriendAdded            = "friendAdded"
	EventFriendRemoved          = "friendRemoved"
	EventGroupCreated           = "groupCreated"
	EventGroupUpdated           = "groupUpdated"
	EventGroupDissolved         = "groupDissolved"
)

// Envelope wraps every WebSocket message with an event name.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ParseEnvelope decodes a raw frame into an envelope.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// NewEnvelope builds an envelope with the payload marshaled in place.
func NewEnvelope(event string, data any) (Envelope, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: b}, nil
}

// SendPayload carries a new direct or group message.
type SendPayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
	ReceiverID     string `json:"receiverId,omitempty"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// MutatePayload identifies a stored message by channel and wire timestamp.
type MutatePayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// ForwardPayload copies message content into another channel.
type ForwardPayload struct {
	FromConversationID string `json:"fromConversationId,omitempty"`
	FromGroupID        string `json:"fromGroupId,omitempty"`
	ToConversationID   string `json:"toConversationId,omitempty"`
	ToGroupID          string `json:"toGroupId,omitempty"`
	ToReceiverID       string `json:"toReceiverId,omitempty"`
	Type               string `json:"type"`
	Content            string `json:"content"`
	OriginalSenderID   string `json:"originalSenderId,omitempty"`
}

// JoinPayload subscribes the connection to an extra channel.
type JoinPayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
}

// NicknamePayload renames a friend in a direct conversation.
type NicknamePayload struct {
	FriendID string `json:"friendId"`
	Nickname string `json:"nickname"`
}

// ThemePayload restyles a direct conversation.
type ThemePayload struct {
	FriendID string `json:"friendId"`
	Theme    string `json:"theme"`
}

// ErrorPayload is sent to a single client when an operation fails.
type ErrorPayload struct {
	Message string `json:"message"`
}
