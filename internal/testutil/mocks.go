// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the yamo-chat service.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"yamo-chat/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockNotFound       = errors.New("mock: not found")
)

// MockProfileRepository implements domain.ProfileRepository for testing
type MockProfileRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	GetByIDFunc func(ctx context.Context, id string) (*domain.Profile, error)

	// In-memory storage for simple tests
	Profiles map[string]*domain.Profile
}

// NewMockProfileRepository creates a new MockProfileRepository with initialized maps
func NewMockProfileRepository() *MockProfileRepository {
	return &MockProfileRepository{
		Profiles: make(map[string]*domain.Profile),
	}
}

// Add stores a profile, filling CreatedAt if zero.
func (m *MockProfileRepository) Add(p *domain.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.Profiles[p.ID] = p
}

func (m *MockProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.Profiles[id]; ok {
		return p, nil
	}
	return nil, domain.ErrProfileNotFound
}

// MockConversationRepository implements domain.ConversationRepository for testing
type MockConversationRepository struct {
	mu sync.RWMutex

	// Function overrides
	GetByIDFunc            func(ctx context.Context, id string) (*domain.Conversation, error)
	GetOrCreateFunc        func(ctx context.Context, userA, userB, adID string) (*domain.Conversation, error)
	CountByParticipantFunc func(ctx context.Context, userID string) (int, error)
	TouchFunc              func(ctx context.Context, id string, at time.Time) error

	// In-memory storage for simple tests
	Conversations map[string]*domain.Conversation
}

// NewMockConversationRepository creates a new MockConversationRepository with initialized maps
func NewMockConversationRepository() *MockConversationRepository {
	return &MockConversationRepository{
		Conversations: make(map[string]*domain.Conversation),
	}
}

// Add stores a conversation.
func (m *MockConversationRepository) Add(c *domain.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Conversations[c.ID] = c
}

func (m *MockConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.Conversations[id]; ok {
		return c, nil
	}
	return nil, domain.ErrConversationNotFound
}

func (m *MockConversationRepository) GetOrCreate(ctx context.Context, userA, userB, adID string) (*domain.Conversation, error) {
	if m.GetOrCreateFunc != nil {
		return m.GetOrCreateFunc(ctx, userA, userB, adID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.Conversations {
		samePair := (c.ParticipantA == userA && c.ParticipantB == userB) ||
			(c.ParticipantA == userB && c.ParticipantB == userA)
		if samePair && c.AdID == adID {
			return c, nil
		}
	}

	c := &domain.Conversation{
		ID:           fmt.Sprintf("conv-%d", len(m.Conversations)+1),
		ParticipantA: userA,
		ParticipantB: userB,
		AdID:         adID,
		CreatedAt:    time.Now(),
	}
	m.Conversations[c.ID] = c
	return c, nil
}

func (m *MockConversationRepository) CountByParticipant(ctx context.Context, userID string) (int, error) {
	if m.CountByParticipantFunc != nil {
		return m.CountByParticipantFunc(ctx, userID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, c := range m.Conversations {
		if c.HasParticipant(userID) {
			count++
		}
	}
	return count, nil
}

func (m *MockConversationRepository) Touch(ctx context.Context, id string, at time.Time) error {
	if m.TouchFunc != nil {
		return m.TouchFunc(ctx, id, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.Conversations[id]
	if !ok {
		return domain.ErrConversationNotFound
	}
	c.LastMessageAt = at
	return nil
}

// MockMessageRepository implements domain.MessageRepository for testing
type MockMessageRepository struct {
	mu sync.RWMutex

	// Function overrides
	CreateFunc               func(ctx context.Context, message *domain.Message) error
	GetByIDFunc              func(ctx context.Context, id string) (*domain.Message, error)
	LatestFunc               func(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error)
	ListBeforeFunc           func(ctx context.Context, conversationID string, before time.Time, limit int) ([]*domain.Message, error)
	ListAfterFunc            func(ctx context.Context, conversationID string, after time.Time, limit int) ([]*domain.Message, error)
	CountBeforeFunc          func(ctx context.Context, conversationID string, before time.Time) (int, error)
	CountAfterFunc           func(ctx context.Context, conversationID string, after time.Time) (int, error)
	MarkReadFunc             func(ctx context.Context, ids []string) error
	MarkReadForRecipientFunc func(ctx context.Context, conversationID, recipientID string) ([]string, error)

	// In-memory storage for simple tests
	Messages []*domain.Message
	// Clock used to timestamp created messages; defaults to time.Now
	Now func() time.Time

	seq int
}

// NewMockMessageRepository creates a new MockMessageRepository
func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{}
}

// Seed stores messages directly, bypassing Create.
func (m *MockMessageRepository) Seed(msgs ...*domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msgs...)
}

func (m *MockMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, message)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	if message.ID == "" {
		message.ID = fmt.Sprintf("msg-%04d", m.seq)
	}
	if message.CreatedAt.IsZero() {
		now := time.Now
		if m.Now != nil {
			now = m.Now
		}
		message.CreatedAt = now()
	}
	stored := *message
	m.Messages = append(m.Messages, &stored)
	return nil
}

func (m *MockMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msg := range m.Messages {
		if msg.ID == id {
			copied := *msg
			return &copied, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func (m *MockMessageRepository) Latest(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	if m.LatestFunc != nil {
		return m.LatestFunc(ctx, conversationID, limit)
	}
	all := m.sortedConversation(conversationID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *MockMessageRepository) ListBefore(ctx context.Context, conversationID string, before time.Time, limit int) ([]*domain.Message, error) {
	if m.ListBeforeFunc != nil {
		return m.ListBeforeFunc(ctx, conversationID, before, limit)
	}
	all := m.sortedConversation(conversationID)
	filtered := all[:0:0]
	for _, msg := range all {
		if msg.CreatedAt.Before(before) {
			filtered = append(filtered, msg)
		}
	}
	// Page is anchored at the boundary: the newest limit of what remains
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

func (m *MockMessageRepository) ListAfter(ctx context.Context, conversationID string, after time.Time, limit int) ([]*domain.Message, error) {
	if m.ListAfterFunc != nil {
		return m.ListAfterFunc(ctx, conversationID, after, limit)
	}
	all := m.sortedConversation(conversationID)
	filtered := all[:0:0]
	for _, msg := range all {
		if msg.CreatedAt.After(after) {
			filtered = append(filtered, msg)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (m *MockMessageRepository) CountBefore(ctx context.Context, conversationID string, before time.Time) (int, error) {
	if m.CountBeforeFunc != nil {
		return m.CountBeforeFunc(ctx, conversationID, before)
	}
	count := 0
	for _, msg := range m.sortedConversation(conversationID) {
		if msg.CreatedAt.Before(before) {
			count++
		}
	}
	return count, nil
}

func (m *MockMessageRepository) CountAfter(ctx context.Context, conversationID string, after time.Time) (int, error) {
	if m.CountAfterFunc != nil {
		return m.CountAfterFunc(ctx, conversationID, after)
	}
	count := 0
	for _, msg := range m.sortedConversation(conversationID) {
		if msg.CreatedAt.After(after) {
			count++
		}
	}
	return count, nil
}

func (m *MockMessageRepository) MarkRead(ctx context.Context, ids []string) error {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, ids)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	for _, msg := range m.Messages {
		if wanted[msg.ID] {
			msg.IsRead = true
		}
	}
	return nil
}

func (m *MockMessageRepository) MarkReadForRecipient(ctx context.Context, conversationID, recipientID string) ([]string, error) {
	if m.MarkReadForRecipientFunc != nil {
		return m.MarkReadForRecipientFunc(ctx, conversationID, recipientID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var flipped []string
	for _, msg := range m.Messages {
		if msg.ConversationID == conversationID && msg.RecipientID == recipientID && !msg.IsRead {
			msg.IsRead = true
			flipped = append(flipped, msg.ID)
		}
	}
	return flipped, nil
}

// sortedConversation returns copies of a conversation's messages in canonical
// ascending order.
func (m *MockMessageRepository) sortedConversation(conversationID string) []*domain.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Message
	for _, msg := range m.Messages {
		if msg.ConversationID == conversationID {
			copied := *msg
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Less(result[j]) })
	return result
}
