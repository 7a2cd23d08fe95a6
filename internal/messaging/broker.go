// Package messaging implements the realtime feeds on top of RabbitMQ.
// Message events fan out through a durable topic exchange keyed by
// conversation id; typing signals ride a separate transient exchange so
// the broker never queues them for offline consumers.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"yamo-chat/internal/domain"
)

const (
	eventsExchange = "conversation.events"
	typingExchange = "conversation.typing"
)

type Broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

type messageEventPayload struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Timestamp      int64  `json:"timestamp"`
}

type typingPayload struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	Stopped        bool      `json:"stopped,omitempty"`
	At             time.Time `json:"at"`
}

func NewBroker(url string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	b := &Broker{
		conn:    conn,
		channel: ch,
	}

	if err := b.Setup(); err != nil {
		b.Close()
		return nil, err
	}

	return b, nil
}

// NewBrokerWithRetry dials the broker until it answers. RabbitMQ routinely
// comes up after the service in compose environments.
func NewBrokerWithRetry(url string, attempts int, delay time.Duration) (*Broker, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		b, err := NewBroker(url)
		if err == nil {
			return b, nil
		}
		lastErr = err
		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", i),
			slog.Int("max_attempts", attempts),
			slog.String("error", err.Error()))
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("rabbitmq unreachable after %d attempts: %w", attempts, lastErr)
}

func (b *Broker) Setup() error {
	if err := b.channel.ExchangeDeclare(
		eventsExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	if err := b.channel.ExchangeDeclare(
		typingExchange, // name
		"topic",        // type
		false,          // durable
		true,           // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("failed to declare typing exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// PublishMessageEvent implements domain.MessageFeed. Events are persistent
// so a briefly disconnected relay can still drain its queue.
func (b *Broker) PublishMessageEvent(ctx context.Context, ev domain.MessageEvent) error {
	body, err := json.Marshal(messageEventPayload{
		Type:           string(ev.Type),
		ConversationID: ev.ConversationID,
		MessageID:      ev.MessageID,
		Timestamp:      time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}

	err = b.channel.PublishWithContext(
		ctx,
		eventsExchange,
		ev.ConversationID,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message event: %w", err)
	}

	slog.Debug("published message event",
		slog.String("type", string(ev.Type)),
		slog.String("conversation_id", ev.ConversationID),
		slog.String("message_id", ev.MessageID))
	return nil
}

// PublishTypingSignal implements domain.TypingFeed. Typing is fire-and-forget
// and transient: a signal nobody is around to see is worthless.
func (b *Broker) PublishTypingSignal(ctx context.Context, sig domain.TypingSignal) error {
	body, err := json.Marshal(typingPayload{
		ConversationID: sig.ConversationID,
		UserID:         sig.UserID,
		DisplayName:    sig.DisplayName,
		Stopped:        sig.Stopped,
		At:             sig.At,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal typing signal: %w", err)
	}

	err = b.channel.PublishWithContext(
		ctx,
		typingExchange,
		sig.ConversationID,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Transient,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish typing signal: %w", err)
	}
	return nil
}

func (b *Broker) IsClosed() bool {
	return b.conn == nil || b.conn.IsClosed()
}

func (b *Broker) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
