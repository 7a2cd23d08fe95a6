// Package realtime feeds change notifications for a conversation into the
// client-held message store.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"yamo-chat/internal/domain"
	"yamo-chat/internal/observability"
)

// Target is where the bridge delivers full message records. Implemented by
// conversation.Store.
type Target interface {
	// Merge inserts messages, deduplicating by id.
	Merge(incoming ...*domain.Message) int
	// ApplyUpdate replaces an existing message's fields in place, returning
	// false when the id is not loaded.
	ApplyUpdate(msg *domain.Message) bool
}

// Bridge consumes a conversation's change feed and merges the referenced
// messages into a Target.
//
// The push event is treated only as an id: the bridge refetches the full
// record (including attachment rows) before merging, trading one round trip
// for never acting on a partial payload. Delivery order does not matter; the
// target's sort-on-merge supplies the ordering.
type Bridge struct {
	feed     domain.MessageFeed
	messages domain.MessageRepository
}

func NewBridge(feed domain.MessageFeed, messages domain.MessageRepository) *Bridge {
	return &Bridge{feed: feed, messages: messages}
}

// Open subscribes to one conversation and starts delivering into target until
// the stream is closed or the feed drops. One stream per open conversation
// view; callers must Close it when the view closes.
//
// If the feed drops, the stream ends without reconnecting: the view degrades
// to explicit refreshes until reopened.
func (b *Bridge) Open(ctx context.Context, conversationID string, target Target) (*Stream, error) {
	sub, err := b.feed.SubscribeMessages(conversationID)
	if err != nil {
		return nil, &domain.StoreError{Op: "subscribe to conversation feed", Err: err}
	}

	s := &Stream{sub: sub, done: make(chan struct{})}
	go b.pump(ctx, conversationID, sub, target, s)
	return s, nil
}

func (b *Bridge) pump(ctx context.Context, conversationID string, sub domain.MessageSubscription, target Target, s *Stream) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					slog.Warn("conversation feed dropped",
						slog.String("conversation_id", conversationID),
						slog.String("error", err.Error()))
				}
				return
			}
			b.apply(ctx, ev, target)
		}
	}
}

// apply refetches the full record and hands it to the target. A fetch failure
// skips the event; the next refresh or event for the same id covers the gap.
func (b *Bridge) apply(ctx context.Context, ev domain.MessageEvent, target Target) {
	observability.RealtimeEventsTotal.WithLabelValues(string(ev.Type)).Inc()

	full, err := b.messages.GetByID(ctx, ev.MessageID)
	if err != nil {
		slog.Warn("failed to refetch message for feed event",
			slog.String("message_id", ev.MessageID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()))
		return
	}

	switch ev.Type {
	case domain.EventUpdate:
		if !target.ApplyUpdate(full) {
			// Update for a row outside the loaded range; treat as insert
			target.Merge(full)
		}
	default:
		target.Merge(full)
	}
}

// Stream is one live subscription. Close tears it down; Done is closed once
// the pump goroutine has exited.
type Stream struct {
	sub       domain.MessageSubscription
	done      chan struct{}
	closeOnce sync.Once
}

// Close unsubscribes and waits for the pump to stop.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.sub.Close()
		<-s.done
	})
	return err
}

// Done is closed when the stream has stopped, whether by Close or by a feed
// drop.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err reports why the underlying subscription ended, nil for a clean close.
func (s *Stream) Err() error {
	return s.sub.Err()
}
