package domain

import (
	"context"
	"time"
)

// EventType discriminates change-feed notifications.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// MessageEvent announces that a message row was inserted or updated. The
// payload is deliberately thin: consumers refetch the full record by id
// before acting on it, because the event may predate joined attachment rows.
type MessageEvent struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
}

// MessageSubscription is one conversation-scoped change feed. Events carries
// no ordering guarantee; Err reports why the feed closed, if it did.
type MessageSubscription interface {
	Events() <-chan MessageEvent
	Err() error
	Close() error
}

// MessageFeed is the pub/sub channel for message change events.
type MessageFeed interface {
	PublishMessageEvent(ctx context.Context, ev MessageEvent) error
	SubscribeMessages(conversationID string) (MessageSubscription, error)
}

// TypingSignal is an ephemeral "user is typing" broadcast. Never persisted;
// any signal older than the staleness window is pruned by consumers whether
// or not a Stopped signal arrives.
type TypingSignal struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	Stopped        bool      `json:"stopped,omitempty"`
	At             time.Time `json:"at"`
}

// TypingSubscription is one conversation-scoped presence feed.
type TypingSubscription interface {
	Signals() <-chan TypingSignal
	Err() error
	Close() error
}

// TypingFeed is the pub/sub channel for typing presence.
type TypingFeed interface {
	PublishTypingSignal(ctx context.Context, sig TypingSignal) error
	SubscribeTyping(conversationID string) (TypingSubscription, error)
}
