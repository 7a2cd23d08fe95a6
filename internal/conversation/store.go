// Package conversation implements the client-held view of one message
// thread: an ordered, dedup-safe message store, pagination against the
// remote repository, typing presence, and the controller that ties them to
// the send pipeline.
package conversation

import (
	"sort"
	"sync"

	"yamo-chat/internal/domain"
)

// View is a point-in-time copy of the conversation's visible state.
type View struct {
	Messages []domain.Message
	HasOlder bool
	HasNewer bool
}

// Store holds the ordered message sequence for one open conversation.
//
// The sequence is always sorted ascending by (CreatedAt, ID) and never
// contains duplicate ids. All local state is a cache of the canonical remote
// source: inserts are reconciled by id with existing entries winning, so the
// realtime echo of a message already obtained from a page fetch is dropped
// rather than duplicated. Safe for concurrent use; page loads and feed
// deliveries arrive on different goroutines.
type Store struct {
	mu       sync.RWMutex
	messages []*domain.Message
	byID     map[string]*domain.Message
	hasOlder bool
	hasNewer bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*domain.Message)}
}

// Merge unions incoming messages into the store. Incoming messages whose id
// is already present are dropped; the remainder is inserted and the whole
// sequence re-sorted. Idempotent: merging the same batch twice leaves the
// store unchanged.
func (s *Store) Merge(incoming ...*domain.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, msg := range incoming {
		if msg == nil || msg.ID == "" {
			continue
		}
		if _, exists := s.byID[msg.ID]; exists {
			continue
		}
		copied := *msg
		s.byID[copied.ID] = &copied
		s.messages = append(s.messages, &copied)
		added++
	}

	if added > 0 {
		sort.Slice(s.messages, func(i, j int) bool {
			return s.messages[i].Less(s.messages[j])
		})
	}
	return added
}

// ApplyUpdate replaces the fields of an already-present message in place,
// for example a read-receipt flip delivered by the change feed. Returns false
// if the id is unknown; the caller may then Merge it as an insert.
func (s *Store) ApplyUpdate(msg *domain.Message) bool {
	if msg == nil || msg.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[msg.ID]
	if !ok {
		return false
	}
	// CreatedAt is immutable server-side, so the sort position cannot move.
	*existing = *msg
	return true
}

// Snapshot returns a copy of the current view.
func (s *Store) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = *msg
	}
	return View{Messages: out, HasOlder: s.hasOlder, HasNewer: s.hasNewer}
}

// Len reports how many messages are loaded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Oldest returns the first message in display order, or nil if empty.
func (s *Store) Oldest() *domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return nil
	}
	copied := *s.messages[0]
	return &copied
}

// Newest returns the last message in display order, or nil if empty.
func (s *Store) Newest() *domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return nil
	}
	copied := *s.messages[len(s.messages)-1]
	return &copied
}

// UnreadFor returns the ids of loaded messages addressed to userID that are
// not yet marked read.
func (s *Store) UnreadFor(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, msg := range s.messages {
		if msg.RecipientID == userID && !msg.IsRead {
			ids = append(ids, msg.ID)
		}
	}
	return ids
}

// MarkReadLocal flips is_read on the given ids in the local cache. The
// authoritative flip happens remotely; the feed's update events reconcile any
// divergence.
func (s *Store) MarkReadLocal(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if msg, ok := s.byID[id]; ok {
			msg.IsRead = true
		}
	}
}

// SetHasOlder records whether more history exists below the loaded range.
func (s *Store) SetHasOlder(v bool) {
	s.mu.Lock()
	s.hasOlder = v
	s.mu.Unlock()
}

// SetHasNewer records whether more messages exist above the loaded range.
func (s *Store) SetHasNewer(v bool) {
	s.mu.Lock()
	s.hasNewer = v
	s.mu.Unlock()
}

// Merge is the pure form of Store.Merge: it unions two message slices,
// dropping incoming duplicates (existing wins) and returning a fresh slice
// sorted ascending by (CreatedAt, ID).
func Merge(existing, incoming []*domain.Message) []*domain.Message {
	seen := make(map[string]bool, len(existing))
	result := make([]*domain.Message, 0, len(existing)+len(incoming))

	for _, msg := range existing {
		if msg == nil || seen[msg.ID] {
			continue
		}
		seen[msg.ID] = true
		result = append(result, msg)
	}
	for _, msg := range incoming {
		if msg == nil || seen[msg.ID] {
			continue
		}
		seen[msg.ID] = true
		result = append(result, msg)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Less(result[j]) })
	return result
}
