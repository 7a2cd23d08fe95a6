package domain

import (
	"context"
	"time"
)

// MaxContentLength is the longest message body accepted anywhere in the
// pipeline, in runes.
const MaxContentLength = 2000

// Attachment is a file reference attached to a message. Immutable once the
// message is created.
type Attachment struct {
	ID          string `json:"id"`
	MessageID   string `json:"message_id"`
	URL         string `json:"url"`
	DisplayName string `json:"display_name"`
	MimeType    string `json:"mime_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Message represents one chat message in a conversation.
//
// ID is globally unique within the conversation. CreatedAt is assigned by the
// store and is the canonical ordering key; clients must not assume their own
// clock agrees with it.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	RecipientID    string       `json:"recipient_id"`
	Subject        string       `json:"subject,omitempty"`
	Content        string       `json:"content"`
	IsRead         bool         `json:"is_read"`
	CreatedAt      time.Time    `json:"created_at"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Less reports whether m sorts before other in the canonical display order:
// ascending by CreatedAt, ties broken by ID so the order stays total even when
// timestamps collide.
func (m *Message) Less(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// MessageRepository defines the interface for message data access
type MessageRepository interface {
	// Create persists the message and its attachment rows, assigning ID and
	// CreatedAt.
	Create(ctx context.Context, message *Message) error
	// GetByID returns the full message record including attachments.
	GetByID(ctx context.Context, id string) (*Message, error)
	// Latest returns the newest limit messages of a conversation in ascending
	// order.
	Latest(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	// ListBefore returns up to limit messages with CreatedAt strictly before
	// the boundary, ascending.
	ListBefore(ctx context.Context, conversationID string, before time.Time, limit int) ([]*Message, error)
	// ListAfter is the symmetric query on the upper boundary.
	ListAfter(ctx context.Context, conversationID string, after time.Time, limit int) ([]*Message, error)
	// CountBefore reports how many messages exist strictly before the boundary.
	CountBefore(ctx context.Context, conversationID string, before time.Time) (int, error)
	// CountAfter reports how many messages exist strictly after the boundary.
	CountAfter(ctx context.Context, conversationID string, after time.Time) (int, error)
	// MarkRead flips is_read on the given message ids.
	MarkRead(ctx context.Context, ids []string) error
	// MarkReadForRecipient flips is_read on every unread message addressed to
	// the recipient in the conversation and returns the affected ids.
	MarkReadForRecipient(ctx context.Context, conversationID, recipientID string) ([]string, error)
}
