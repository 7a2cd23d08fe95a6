package domain

import (
	"context"
	"time"
)

// MaxConversationsPerUser is the anti-spam ceiling on how many conversations
// a single sender may participate in.
const MaxConversationsPerUser = 50

// Conversation is a two-participant message thread, optionally tied to a
// classified ad.
type Conversation struct {
	ID            string    `json:"id"`
	ParticipantA  string    `json:"participant_a"`
	ParticipantB  string    `json:"participant_b"`
	AdID          string    `json:"ad_id,omitempty"`
	AdTitle       string    `json:"ad_title,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// OtherParticipant returns the participant id that is not userID. Returns ""
// if userID is not a participant.
func (c *Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return ""
}

// ConversationRepository defines the interface for conversation data access
type ConversationRepository interface {
	// GetByID returns a conversation with its ad title joined in.
	GetByID(ctx context.Context, id string) (*Conversation, error)
	// GetOrCreate finds the conversation between two participants for an ad,
	// creating it if absent. Participant order is irrelevant.
	GetOrCreate(ctx context.Context, userA, userB, adID string) (*Conversation, error)
	// CountByParticipant reports how many conversations a user is part of.
	CountByParticipant(ctx context.Context, userID string) (int, error)
	// Touch updates last_message_at.
	Touch(ctx context.Context, id string, at time.Time) error
}
