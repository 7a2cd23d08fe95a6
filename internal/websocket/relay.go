package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"yamo-chat/internal/domain"
)

// StreamSource provides the relay-wide feeds the Relay consumes. The broker
// satisfies this with wildcard bindings across all conversations.
type StreamSource interface {
	SubscribeAllMessages() (domain.MessageSubscription, error)
	SubscribeAllTyping() (domain.TypingSubscription, error)
}

// Relay bridges the broker's change feeds onto the websocket hub. Message
// events carry only ids, so the relay refetches the full record before
// broadcasting; stale events whose rows have since vanished are dropped.
type Relay struct {
	source   StreamSource
	messages domain.MessageRepository
	hub      *Hub

	// Delay before resubscribing after a feed failure
	retryDelay time.Duration
}

// NewRelay creates a relay wired to the given feeds and hub
func NewRelay(source StreamSource, messages domain.MessageRepository, hub *Hub) *Relay {
	return &Relay{
		source:     source,
		messages:   messages,
		hub:        hub,
		retryDelay: 2 * time.Second,
	}
}

// Run consumes both feeds until the context is cancelled, resubscribing
// whenever the broker drops a subscription
func (r *Relay) Run(ctx context.Context) error {
	go r.runTyping(ctx)

	for {
		sub, err := r.source.SubscribeAllMessages()
		if err != nil {
			slog.Error("message feed subscription failed", slog.String("error", err.Error()))
			if !r.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		r.consumeMessages(ctx, sub)
		_ = sub.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := sub.Err(); err != nil {
			slog.Warn("message feed dropped, resubscribing", slog.String("error", err.Error()))
		}
		if !r.sleep(ctx) {
			return ctx.Err()
		}
	}
}

func (r *Relay) consumeMessages(ctx context.Context, sub domain.MessageSubscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			r.relayMessageEvent(ctx, ev)
		}
	}
}

func (r *Relay) relayMessageEvent(ctx context.Context, ev domain.MessageEvent) {
	msg, err := r.messages.GetByID(ctx, ev.MessageID)
	if err != nil {
		// The row may have been deleted between publish and refetch
		slog.Warn("dropping unresolvable message event",
			slog.String("message_id", ev.MessageID),
			slog.String("conversation_id", ev.ConversationID),
			slog.String("error", err.Error()))
		return
	}

	kind := "message_created"
	if ev.Type == domain.EventUpdate {
		kind = "message_updated"
	}

	payload, err := json.Marshal(ServerMessage{Type: kind, Message: msg})
	if err != nil {
		slog.Error("failed to marshal server message", slog.String("error", err.Error()))
		return
	}

	r.hub.Broadcast(ev.ConversationID, kind, payload)
}

func (r *Relay) runTyping(ctx context.Context) {
	for {
		sub, err := r.source.SubscribeAllTyping()
		if err != nil {
			slog.Error("typing feed subscription failed", slog.String("error", err.Error()))
			if !r.sleep(ctx) {
				return
			}
			continue
		}

		r.consumeTyping(ctx, sub)
		_ = sub.Close()

		select {
		case <-ctx.Done():
			return
		default:
		}
		if !r.sleep(ctx) {
			return
		}
	}
}

func (r *Relay) consumeTyping(ctx context.Context, sub domain.TypingSubscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sub.Signals():
			if !ok {
				return
			}
			kind := "typing"
			if sig.Stopped {
				kind = "typing_stopped"
			}
			payload, err := json.Marshal(ServerMessage{
				Type:        kind,
				UserID:      sig.UserID,
				DisplayName: sig.DisplayName,
			})
			if err != nil {
				slog.Error("failed to marshal typing signal", slog.String("error", err.Error()))
				continue
			}
			r.hub.Broadcast(sig.ConversationID, kind, payload)
		}
	}
}

func (r *Relay) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(r.retryDelay):
		return true
	}
}
