package conversation

import (
	"context"
	"sync"
	"time"

	"yamo-chat/internal/domain"
)

const (
	// typingTTL is how long a received signal stays visible without renewal.
	typingTTL = 5 * time.Second
	// typingSweepInterval is how often stale signals are pruned.
	typingSweepInterval = time.Second
	// TypingDebounce is how long after the last keystroke the announcer sends
	// an implicit retract.
	TypingDebounce = time.Second
)

// TypingTracker is the consumer side of typing presence: it collects signals
// for one conversation and prunes anything older than typingTTL, whether or
// not a retract ever arrived. Lost retracts therefore bound staleness at the
// TTL instead of leaking a typist forever.
type TypingTracker struct {
	mu      sync.Mutex
	signals map[string]domain.TypingSignal
	now     func() time.Time
}

// NewTypingTracker creates a tracker using the real clock.
func NewTypingTracker() *TypingTracker {
	return NewTypingTrackerWithClock(time.Now)
}

// NewTypingTrackerWithClock creates a tracker with an injected clock for tests.
func NewTypingTrackerWithClock(now func() time.Time) *TypingTracker {
	return &TypingTracker{
		signals: make(map[string]domain.TypingSignal),
		now:     now,
	}
}

// Observe applies one received signal. A Stopped signal removes the typist
// immediately; anything else records them with a receive-side timestamp.
func (t *TypingTracker) Observe(sig domain.TypingSignal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sig.Stopped {
		delete(t.signals, sig.UserID)
		return
	}
	// Local receive time, not the sender's clock, drives expiry.
	sig.At = t.now()
	t.signals[sig.UserID] = sig
}

// Active returns the non-stale typists, excluding excludeUserID (the viewer
// does not see their own signal). Stale entries are pruned as a side effect.
func (t *TypingTracker) Active(excludeUserID string) []domain.TypingSignal {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked()
	out := make([]domain.TypingSignal, 0, len(t.signals))
	for _, sig := range t.signals {
		if sig.UserID == excludeUserID {
			continue
		}
		out = append(out, sig)
	}
	return out
}

// Sweep prunes stale signals once.
func (t *TypingTracker) Sweep() {
	t.mu.Lock()
	t.pruneLocked()
	t.mu.Unlock()
}

// Run sweeps every typingSweepInterval until ctx is cancelled.
func (t *TypingTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(typingSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

func (t *TypingTracker) pruneLocked() {
	cutoff := t.now().Add(-typingTTL)
	for id, sig := range t.signals {
		if sig.At.Before(cutoff) {
			delete(t.signals, id)
		}
	}
}

// TypingAnnouncer is the producer side: the first keystroke broadcasts a
// typing signal at once, and a debounce timer broadcasts the implicit retract
// once keystrokes stop. Broadcasts are at-most-now; a failed publish is
// dropped, the TTL on the consumer side covers the gap.
type TypingAnnouncer struct {
	feed           domain.TypingFeed
	conversationID string
	identity       domain.Identity
	debounce       time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	active bool
}

// NewTypingAnnouncer creates an announcer with the default debounce.
func NewTypingAnnouncer(feed domain.TypingFeed, conversationID string, identity domain.Identity) *TypingAnnouncer {
	return &TypingAnnouncer{
		feed:           feed,
		conversationID: conversationID,
		identity:       identity,
		debounce:       TypingDebounce,
	}
}

// NewTypingAnnouncerWithDebounce allows tests to shorten the debounce.
func NewTypingAnnouncerWithDebounce(feed domain.TypingFeed, conversationID string, identity domain.Identity, debounce time.Duration) *TypingAnnouncer {
	a := NewTypingAnnouncer(feed, conversationID, identity)
	a.debounce = debounce
	return a
}

// Keystroke notes user input: announces on the first stroke, then keeps
// resetting the retract timer.
func (a *TypingAnnouncer) Keystroke(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		a.active = true
		a.publish(ctx, false)
	}

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.debounce, a.retract)
}

// Stop retracts explicitly, for example when the user sends the message or
// closes the view.
func (a *TypingAnnouncer) Stop(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.active {
		a.active = false
		a.publish(ctx, true)
	}
}

func (a *TypingAnnouncer) retract() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return
	}
	a.active = false
	a.timer = nil
	a.publish(context.Background(), true)
}

// publish broadcasts best-effort; callers hold a.mu.
func (a *TypingAnnouncer) publish(ctx context.Context, stopped bool) {
	_ = a.feed.PublishTypingSignal(ctx, domain.TypingSignal{
		ConversationID: a.conversationID,
		UserID:         a.identity.UserID,
		DisplayName:    a.identity.DisplayName,
		Stopped:        stopped,
		At:             time.Now(),
	})
}
