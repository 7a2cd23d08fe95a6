package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"yamo-chat/internal/domain"
	"yamo-chat/internal/observability"
	"yamo-chat/internal/ratelimit"
	"yamo-chat/internal/validate"
)

// Sender runs the send pipeline: content validation, advisory rate limit,
// recipient validation, then the store insert. Validation and rate-limit
// rejections short-circuit before any network write.
//
// Stateless per message, shared by the stateful Controller and the HTTP
// handlers.
type Sender struct {
	messages      domain.MessageRepository
	conversations domain.ConversationRepository
	validator     *validate.Validator
	limiter       *ratelimit.Limiter
}

func NewSender(messages domain.MessageRepository, conversations domain.ConversationRepository,
	validator *validate.Validator, limiter *ratelimit.Limiter) *Sender {
	return &Sender{
		messages:      messages,
		conversations: conversations,
		validator:     validator,
		limiter:       limiter,
	}
}

// Send submits one message from the given identity into the conversation.
// On success the stored message (with server-assigned id and timestamp) is
// returned; the caller's view receives it through the realtime echo rather
// than an optimistic insert.
func (s *Sender) Send(ctx context.Context, from domain.Identity, conv *domain.Conversation,
	content, subject string, attachments []domain.Attachment) (*domain.Message, error) {

	if !conv.HasParticipant(from.UserID) {
		return nil, domain.ErrNotParticipant
	}

	if err := s.validator.ValidateContent(content); err != nil {
		observability.MessageSendRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	if !s.limiter.TryConsume(from.UserID) {
		observability.RateLimitRejectionsTotal.Inc()
		observability.MessageSendRejectedTotal.WithLabelValues("rate_limited").Inc()
		return nil, domain.ErrRateLimited
	}

	recipient := conv.OtherParticipant(from.UserID)
	if err := s.validator.ValidateRecipient(ctx, recipient, from.UserID); err != nil {
		if domain.IsValidation(err) {
			observability.MessageSendRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		}
		return nil, err
	}

	msg := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       from.UserID,
		RecipientID:    recipient,
		Subject:        subject,
		Content:        content,
		Attachments:    attachments,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, &domain.StoreError{Op: "send message", Err: err}
	}
	observability.MessagesSentTotal.Inc()

	// Best effort; the conversation list sorts on this but the message itself
	// is already durable.
	if err := s.conversations.Touch(ctx, conv.ID, msg.CreatedAt); err != nil {
		observability.FromContext(ctx).Warn("failed to touch conversation",
			slog.String("conversation_id", conv.ID),
			slog.String("error", err.Error()))
	}

	return msg, nil
}

// MarkRead flips is_read on every unread message addressed to the reader and
// returns the affected ids.
func (s *Sender) MarkRead(ctx context.Context, conversationID, readerID string) ([]string, error) {
	ids, err := s.messages.MarkReadForRecipient(ctx, conversationID, readerID)
	if err != nil {
		return nil, &domain.StoreError{Op: "mark messages read", Err: err}
	}
	return ids, nil
}

// rejectReason maps a pre-network rejection to its metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyContent):
		return "empty"
	case errors.Is(err, domain.ErrContentTooLong):
		return "too_long"
	case errors.Is(err, domain.ErrRepeatedContent):
		return "spam_pattern"
	case errors.Is(err, domain.ErrSelfMessage):
		return "self_message"
	case errors.Is(err, domain.ErrRecipientNotFound):
		return "invalid_recipient"
	case errors.Is(err, domain.ErrConversationCeiling):
		return "conversation_ceiling"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	}
	return "other"
}

// sendDeadline bounds fire-and-forget writes spawned off the request path.
const sendDeadline = 5 * time.Second
