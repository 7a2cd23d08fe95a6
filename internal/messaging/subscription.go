package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"yamo-chat/internal/domain"
)

// SubscribeMessages opens a per-subscriber queue bound to one conversation's
// events. Each subscription gets its own channel so closing it never
// disturbs the broker's publish channel.
func (b *Broker) SubscribeMessages(conversationID string) (domain.MessageSubscription, error) {
	ch, deliveries, err := b.consume(eventsExchange, conversationID)
	if err != nil {
		return nil, err
	}

	sub := &messageSubscription{
		ch:     ch,
		events: make(chan domain.MessageEvent, 64),
	}
	go sub.pump(deliveries)
	return sub, nil
}

// SubscribeAllMessages receives events from every conversation. The
// websocket relay uses it to serve all connected clients off one queue.
func (b *Broker) SubscribeAllMessages() (domain.MessageSubscription, error) {
	ch, deliveries, err := b.consume(eventsExchange, "#")
	if err != nil {
		return nil, err
	}

	sub := &messageSubscription{
		ch:     ch,
		events: make(chan domain.MessageEvent, 256),
	}
	go sub.pump(deliveries)
	return sub, nil
}

// SubscribeAllTyping receives typing signals from every conversation, for
// the websocket relay.
func (b *Broker) SubscribeAllTyping() (domain.TypingSubscription, error) {
	ch, deliveries, err := b.consume(typingExchange, "#")
	if err != nil {
		return nil, err
	}

	sub := &typingSubscription{
		ch:      ch,
		signals: make(chan domain.TypingSignal, 256),
	}
	go sub.pump(deliveries)
	return sub, nil
}

// SubscribeTyping opens a per-subscriber queue for one conversation's typing
// signals.
func (b *Broker) SubscribeTyping(conversationID string) (domain.TypingSubscription, error) {
	ch, deliveries, err := b.consume(typingExchange, conversationID)
	if err != nil {
		return nil, err
	}

	sub := &typingSubscription{
		ch:      ch,
		signals: make(chan domain.TypingSignal, 64),
	}
	go sub.pump(deliveries)
	return sub, nil
}

// consume declares an exclusive auto-delete queue on a fresh channel, binds
// it to the exchange with the given routing key, and starts an auto-ack
// consumer.
func (b *Broker) consume(exchange, routingKey string) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open subscriber channel: %w", err)
	}

	queue, err := ch.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to declare subscriber queue: %w", err)
	}

	if err := ch.QueueBind(queue.Name, routingKey, exchange, false, nil); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to bind subscriber queue: %w", err)
	}

	deliveries, err := ch.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Debug("subscribed",
		slog.String("exchange", exchange),
		slog.String("routing_key", routingKey),
		slog.String("queue", queue.Name))
	return ch, deliveries, nil
}

type messageSubscription struct {
	ch     *amqp.Channel
	events chan domain.MessageEvent

	mu     sync.Mutex
	closed bool
	err    error
}

func (s *messageSubscription) pump(deliveries <-chan amqp.Delivery) {
	closeErrs := s.ch.NotifyClose(make(chan *amqp.Error, 1))

	for d := range deliveries {
		var payload messageEventPayload
		if err := json.Unmarshal(d.Body, &payload); err != nil {
			slog.Error("error unmarshaling message event",
				slog.String("error", err.Error()),
				slog.String("body", string(d.Body)))
			continue
		}
		s.events <- domain.MessageEvent{
			Type:           domain.EventType(payload.Type),
			ConversationID: payload.ConversationID,
			MessageID:      payload.MessageID,
		}
	}

	// Deliveries ended: either Close() or the broker went away.
	var cause error
	select {
	case amqpErr := <-closeErrs:
		if amqpErr != nil {
			cause = amqpErr
		}
	default:
	}
	s.finish(cause)
}

func (s *messageSubscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.err == nil {
		s.err = err
	}
	close(s.events)
}

func (s *messageSubscription) Events() <-chan domain.MessageEvent { return s.events }

func (s *messageSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *messageSubscription) Close() error {
	return s.ch.Close()
}

type typingSubscription struct {
	ch      *amqp.Channel
	signals chan domain.TypingSignal

	mu     sync.Mutex
	closed bool
	err    error
}

func (s *typingSubscription) pump(deliveries <-chan amqp.Delivery) {
	closeErrs := s.ch.NotifyClose(make(chan *amqp.Error, 1))

	for d := range deliveries {
		var payload typingPayload
		if err := json.Unmarshal(d.Body, &payload); err != nil {
			slog.Error("error unmarshaling typing signal",
				slog.String("error", err.Error()))
			continue
		}
		// Stale typing signals are dropped by the tracker, not here.
		select {
		case s.signals <- domain.TypingSignal{
			ConversationID: payload.ConversationID,
			UserID:         payload.UserID,
			DisplayName:    payload.DisplayName,
			Stopped:        payload.Stopped,
			At:             payload.At,
		}:
		default:
		}
	}

	var cause error
	select {
	case amqpErr := <-closeErrs:
		if amqpErr != nil {
			cause = amqpErr
		}
	default:
	}
	s.finish(cause)
}

func (s *typingSubscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.err == nil {
		s.err = err
	}
	close(s.signals)
}

func (s *typingSubscription) Signals() <-chan domain.TypingSignal { return s.signals }

func (s *typingSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *typingSubscription) Close() error {
	return s.ch.Close()
}
