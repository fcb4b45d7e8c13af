package domain

import (
	"strconv"
	"time"
)

// RoomID is the durable identifier of a chat room row.
type RoomID int64

// ChatKey is the client-facing durable chat identifier. An empty key is a
// placeholder asking for a brand-new room.
type ChatKey string

// UserID identifies a user of the surrounding app. Zero means anonymous.
type UserID int64

func (id RoomID) String() string { return strconv.FormatInt(int64(id), 10) }

func (id UserID) Valid() bool { return id > 0 }

// ChatRoom is the durable room record.
type ChatRoom struct {
	ID        RoomID    `json:"id"`
	Key       ChatKey   `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is a persisted chat event. Exactly one of Text or the media
// pair is populated.
type ChatMessage struct {
	ID        int64      `json:"id"`
	RoomID    RoomID     `json:"room_id"`
	SenderID  UserID     `json:"sender_id"`
	Text      *string    `json:"text"`
	MediaURL  *string    `json:"media_url"`
	MediaType *string    `json:"media_type"`
	SentAt    time.Time  `json:"sent_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

func NewTextMessage(roomID RoomID, senderID UserID, text string) *ChatMessage {
	return &ChatMessage{RoomID: roomID, SenderID: senderID, Text: &text}
}

func NewMediaMessage(roomID RoomID, senderID UserID, mediaURL, mediaType string) *ChatMessage {
	return &ChatMessage{RoomID: roomID, SenderID: senderID, MediaURL: &mediaURL, MediaType: &mediaType}
}

func (m *ChatMessage) IsMedia() bool {
	return m.MediaURL != nil
}

// HistoryEntry is one row of recent history as read back from storage.
type HistoryEntry struct {
	SenderName string    `json:"name"`
	Text       *string   `json:"text"`
	MediaURL   *string   `json:"mediaUrl"`
	MediaType  *string   `json:"mediaType"`
	SentAt     time.Time `json:"time"`
}
