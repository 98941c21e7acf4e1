package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message one support chat message, immutable once stored
type Message struct {
	ID         string          `bson:"_id" json:"id"`
	RoomCode   string          `bson:"room_code" json:"room_code"`
	SenderType ParticipantType `bson:"sender_type" json:"sender_type"`
	SenderID   string          `bson:"sender_id" json:"sender_id"`
	SenderName string          `bson:"sender_name" json:"sender_name"`
	Content    string          `bson:"content" json:"content"`
	SentAt     time.Time       `bson:"sent_at" json:"sent_at"`
}

// NewMessage build a message with a fresh time-ordered id
func NewMessage(roomCode string, senderType ParticipantType, senderID, senderName, content string) *Message {
	return &Message{
		ID:         NewMessageID(),
		RoomCode:   roomCode,
		SenderType: senderType,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		SentAt:     time.Now().UTC(),
	}
}

// NewMessageID UUIDv7 string. The time prefix and fixed width keep the
// lexical ordering of ids aligned with send order, so read-status
// comparison never needs a database round trip.
func NewMessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}

const previewLimit = 50

// Preview shorten message content for the room's last-message summary
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit]) + "…"
}
