package testutil

import (
	"context"
	"sync"

	"yamo-chat/internal/domain"
)

// MockMessageFeed is an in-process pub/sub implementing domain.MessageFeed.
// Tests drive the realtime bridge by publishing synthetic events instead of
// standing up a broker.
type MockMessageFeed struct {
	mu   sync.Mutex
	subs map[string][]*mockMessageSub

	// PublishErr, when set, makes PublishMessageEvent fail
	PublishErr error
	// SubscribeErr, when set, makes SubscribeMessages fail
	SubscribeErr error
}

func NewMockMessageFeed() *MockMessageFeed {
	return &MockMessageFeed{subs: make(map[string][]*mockMessageSub)}
}

func (f *MockMessageFeed) PublishMessageEvent(ctx context.Context, ev domain.MessageEvent) error {
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs[ev.ConversationID] {
		select {
		case sub.events <- ev:
		default:
			// Slow test subscriber; drop like a real broker would
		}
	}
	return nil
}

func (f *MockMessageFeed) SubscribeMessages(conversationID string) (domain.MessageSubscription, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &mockMessageSub{
		feed:           f,
		conversationID: conversationID,
		events:         make(chan domain.MessageEvent, 64),
	}
	f.subs[conversationID] = append(f.subs[conversationID], sub)
	return sub, nil
}

// CloseAll closes every open subscription, simulating a broker drop.
func (f *MockMessageFeed) CloseAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, subs := range f.subs {
		for _, sub := range subs {
			sub.closeWithErr(err)
		}
	}
	f.subs = make(map[string][]*mockMessageSub)
}

type mockMessageSub struct {
	feed           *MockMessageFeed
	conversationID string
	events         chan domain.MessageEvent

	mu     sync.Mutex
	closed bool
	err    error
}

func (s *mockMessageSub) Events() <-chan domain.MessageEvent { return s.events }

func (s *mockMessageSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *mockMessageSub) Close() error {
	s.feed.mu.Lock()
	subs := s.feed.subs[s.conversationID]
	for i, sub := range subs {
		if sub == s {
			s.feed.subs[s.conversationID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.feed.mu.Unlock()

	s.closeWithErr(nil)
	return nil
}

func (s *mockMessageSub) closeWithErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.events)
}

// MockTypingFeed is an in-process pub/sub implementing domain.TypingFeed.
type MockTypingFeed struct {
	mu   sync.Mutex
	subs map[string][]*mockTypingSub

	// Published records every signal for assertions
	Published []domain.TypingSignal
}

func NewMockTypingFeed() *MockTypingFeed {
	return &MockTypingFeed{subs: make(map[string][]*mockTypingSub)}
}

func (f *MockTypingFeed) PublishTypingSignal(ctx context.Context, sig domain.TypingSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = append(f.Published, sig)
	for _, sub := range f.subs[sig.ConversationID] {
		select {
		case sub.signals <- sig:
		default:
		}
	}
	return nil
}

func (f *MockTypingFeed) SubscribeTyping(conversationID string) (domain.TypingSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &mockTypingSub{
		feed:           f,
		conversationID: conversationID,
		signals:        make(chan domain.TypingSignal, 64),
	}
	f.subs[conversationID] = append(f.subs[conversationID], sub)
	return sub, nil
}

type mockTypingSub struct {
	feed           *MockTypingFeed
	conversationID string
	signals        chan domain.TypingSignal

	mu     sync.Mutex
	closed bool
}

func (s *mockTypingSub) Signals() <-chan domain.TypingSignal { return s.signals }

func (s *mockTypingSub) Err() error { return nil }

func (s *mockTypingSub) Close() error {
	s.feed.mu.Lock()
	subs := s.feed.subs[s.conversationID]
	for i, sub := range subs {
		if sub == s {
			s.feed.subs[s.conversationID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.feed.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.signals)
	}
	return nil
}
