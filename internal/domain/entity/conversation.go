package entity

import "time"

// Firestore field names for conversation documents.
const (
	FieldParticipants      = "participants"
	FieldLastMessage       = "lastMessage"
	FieldLastMessageTime   = "lastMessageTime"
	FieldCreatedAt         = "createdAt"
	FieldUpdatedAt         = "updatedAt"
	FieldLastReadAt        = "lastReadAt"
	FieldUnreadCountByUser = "unreadCountByUser"
)

type Conversation struct {
	ID                string         `json:"id" firestore:"-"`
	Participants      []string       `json:"participants" firestore:"participants"`
	LastMessage       string         `json:"last_message" firestore:"lastMessage"`
	LastMessageTime   time.Time      `json:"last_message_time" firestore:"lastMessageTime"`
	CreatedAt         time.Time      `json:"created_at" firestore:"createdAt"`
	UpdatedAt         time.Time      `json:"updated_at" firestore:"updatedAt"`
	LastReadAt        time.Time      `json:"last_read_at" firestore:"lastReadAt"`
	UnreadCountByUser map[string]int `json:"unread_count_by_user,omitempty" firestore:"unreadCountByUser"` // cache, may be stale
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the first participant that is not userID, or "".
func (c *Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// CachedUnread returns the precomputed unread counter for userID. A missing or
// negative counter is a miss.
func (c *Conversation) CachedUnread(userID string) (int, bool) {
	if c.UnreadCountByUser == nil {
		return 0, false
	}
	n, ok := c.UnreadCountByUser[userID]
	if !ok || n < 0 {
		return 0, false
	}
	return n, true
}

// ConversationFromFields decodes a stored conversation document.
func ConversationFromFields(id string, data map[string]interface{}) (*Conversation, error) {
	participants, err := stringSlice(data[FieldParticipants])
	if err != nil {
		return nil, fieldError(FieldParticipants, err)
	}
	unread, err := intMap(data[FieldUnreadCountByUser])
	if err != nil {
		return nil, fieldError(FieldUnreadCountByUser, err)
	}

	return &Conversation{
		ID:                id,
		Participants:      participants,
		LastMessage:       str(data[FieldLastMessage]),
		LastMessageTime:   timestamp(data[FieldLastMessageTime]),
		CreatedAt:         timestamp(data[FieldCreatedAt]),
		UpdatedAt:         timestamp(data[FieldUpdatedAt]),
		LastReadAt:        timestamp(data[FieldLastReadAt]),
		UnreadCountByUser: unread,
	}, nil
}
