package realtime

import (
	"context"
	"log/slog"

	"yamo-chat/internal/domain"
)

// PublishingRepository decorates a MessageRepository so every committed write
// announces itself on the change feed. This is what makes the store behave
// like a subscribable remote source: senders just insert, and every open view
// (including the sender's own) learns about the row through the feed.
//
// Publishing is best effort. A failed publish is logged and dropped; readers
// reconcile on their next refresh or page load.
type PublishingRepository struct {
	domain.MessageRepository
	feed domain.MessageFeed
}

func NewPublishingRepository(inner domain.MessageRepository, feed domain.MessageFeed) *PublishingRepository {
	return &PublishingRepository{MessageRepository: inner, feed: feed}
}

func (r *PublishingRepository) Create(ctx context.Context, message *domain.Message) error {
	if err := r.MessageRepository.Create(ctx, message); err != nil {
		return err
	}
	r.publish(ctx, domain.MessageEvent{
		Type:           domain.EventInsert,
		ConversationID: message.ConversationID,
		MessageID:      message.ID,
	})
	return nil
}

func (r *PublishingRepository) MarkRead(ctx context.Context, ids []string) error {
	if err := r.MessageRepository.MarkRead(ctx, ids); err != nil {
		return err
	}
	for _, id := range ids {
		// The id list carries no conversation, so look each row up for the
		// routing key. Batches here are small (one view's unread messages).
		msg, err := r.MessageRepository.GetByID(ctx, id)
		if err != nil {
			slog.Warn("cannot publish read event, message lookup failed",
				slog.String("message_id", id),
				slog.String("error", err.Error()))
			continue
		}
		r.publish(ctx, domain.MessageEvent{
			Type:           domain.EventUpdate,
			ConversationID: msg.ConversationID,
			MessageID:      id,
		})
	}
	return nil
}

func (r *PublishingRepository) MarkReadForRecipient(ctx context.Context, conversationID, recipientID string) ([]string, error) {
	ids, err := r.MessageRepository.MarkReadForRecipient(ctx, conversationID, recipientID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		r.publish(ctx, domain.MessageEvent{
			Type:           domain.EventUpdate,
			ConversationID: conversationID,
			MessageID:      id,
		})
	}
	return ids, nil
}

func (r *PublishingRepository) publish(ctx context.Context, ev domain.MessageEvent) {
	if err := r.feed.PublishMessageEvent(ctx, ev); err != nil {
		slog.Warn("failed to publish message event",
			slog.String("type", string(ev.Type)),
			slog.String("message_id", ev.MessageID),
			slog.String("error", err.Error()))
	}
}
