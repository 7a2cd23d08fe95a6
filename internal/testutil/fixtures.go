package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"yamo-chat/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// MessageOptions allows customizing message fixture creation
type MessageOptions struct {
	ID             string
	ConversationID string
	SenderID       string
	RecipientID    string
	Content        string
	IsRead         bool
	CreatedAt      time.Time
	Attachments    []domain.Attachment
}

// NewTestMessage creates a test message with sensible defaults
// Pass options to override specific fields
func NewTestMessage(opts ...func(*MessageOptions)) *domain.Message {
	o := &MessageOptions{
		ID:             nextID("msg"),
		ConversationID: "conv-1",
		SenderID:       "user-a",
		RecipientID:    "user-b",
		Content:        "hello",
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	return &domain.Message{
		ID:             o.ID,
		ConversationID: o.ConversationID,
		SenderID:       o.SenderID,
		RecipientID:    o.RecipientID,
		Content:        o.Content,
		IsRead:         o.IsRead,
		CreatedAt:      o.CreatedAt,
		Attachments:    o.Attachments,
	}
}

// WithMessageID sets the message id
func WithMessageID(id string) func(*MessageOptions) {
	return func(o *MessageOptions) { o.ID = id }
}

// WithConversation sets the conversation id
func WithConversation(id string) func(*MessageOptions) {
	return func(o *MessageOptions) { o.ConversationID = id }
}

// WithSender sets sender and recipient
func WithSender(senderID, recipientID string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.SenderID = senderID
		o.RecipientID = recipientID
	}
}

// WithContent sets the message body
func WithContent(content string) func(*MessageOptions) {
	return func(o *MessageOptions) { o.Content = content }
}

// WithCreatedAt sets the timestamp
func WithCreatedAt(at time.Time) func(*MessageOptions) {
	return func(o *MessageOptions) { o.CreatedAt = at }
}

// WithRead marks the message read
func WithRead() func(*MessageOptions) {
	return func(o *MessageOptions) { o.IsRead = true }
}

// NewTestConversation creates a two-participant conversation fixture
func NewTestConversation(id, userA, userB string) *domain.Conversation {
	return &domain.Conversation{
		ID:           id,
		ParticipantA: userA,
		ParticipantB: userB,
		CreatedAt:    time.Now(),
	}
}

// NewTestProfile creates a profile fixture
func NewTestProfile(id, displayName string) *domain.Profile {
	return &domain.Profile{
		ID:          id,
		DisplayName: displayName,
		Email:       displayName + "@example.com",
		CreatedAt:   time.Now(),
	}
}

// MessageSeries creates n messages in one conversation with strictly
// increasing timestamps spaced one second apart, starting at base.
func MessageSeries(conversationID string, n int, base time.Time) []*domain.Message {
	msgs := make([]*domain.Message, 0, n)
	for i := 0; i < n; i++ {
		sender, recipient := "user-a", "user-b"
		if i%2 == 1 {
			sender, recipient = recipient, sender
		}
		msgs = append(msgs, &domain.Message{
			ID:             fmt.Sprintf("%s-msg-%04d", conversationID, i),
			ConversationID: conversationID,
			SenderID:       sender,
			RecipientID:    recipient,
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
	}
	return msgs
}
