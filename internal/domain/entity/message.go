package entity

import "time"

// Firestore field names for message documents.
const (
	FieldSenderID     = "senderId"
	FieldSenderName   = "senderName"
	FieldSenderType   = "senderType"
	FieldSenderAvatar = "senderAvatar"
	FieldText         = "text"
	FieldReadBy       = "readBy"
	FieldEdited       = "edited"
	FieldDeletedAt    = "deletedAt"
)

// MaxMessageLength is the longest accepted message, in characters.
const MaxMessageLength = 5000

type Message struct {
	ID           string               `json:"id" firestore:"-"`
	SenderID     string               `json:"sender_id" firestore:"senderId"`
	SenderName   string               `json:"sender_name" firestore:"senderName"`
	SenderType   string               `json:"sender_type" firestore:"senderType"`
	SenderAvatar string               `json:"sender_avatar,omitempty" firestore:"senderAvatar,omitempty"`
	Text         string               `json:"text" firestore:"text"`
	CreatedAt    time.Time            `json:"created_at" firestore:"createdAt"`
	ReadBy       map[string]time.Time `json:"read_by" firestore:"readBy"`
	Edited       bool                 `json:"edited" firestore:"edited"`
	DeletedAt    *time.Time           `json:"deleted_at" firestore:"deletedAt"`
}

func (m *Message) IsReadBy(userID string) bool {
	_, ok := m.ReadBy[userID]
	return ok
}

// IsUnreadFor reports whether the message counts as unread for userID: sent by
// someone else and without a read receipt from userID.
func (m *Message) IsUnreadFor(userID string) bool {
	return m.SenderID != userID && !m.IsReadBy(userID)
}

// MessageFromFields decodes a stored message document.
func MessageFromFields(id string, data map[string]interface{}) (*Message, error) {
	readBy, err := timeMap(data[FieldReadBy])
	if err != nil {
		return nil, fieldError(FieldReadBy, err)
	}

	msg := &Message{
		ID:           id,
		SenderID:     str(data[FieldSenderID]),
		SenderName:   str(data[FieldSenderName]),
		SenderType:   str(data[FieldSenderType]),
		SenderAvatar: str(data[FieldSenderAvatar]),
		Text:         str(data[FieldText]),
		CreatedAt:    timestamp(data[FieldCreatedAt]),
		ReadBy:       readBy,
	}
	if edited, ok := data[FieldEdited].(bool); ok {
		msg.Edited = edited
	}
	if t, ok := data[FieldDeletedAt].(time.Time); ok {
		msg.DeletedAt = &t
	}
	return msg, nil
}
