// Package ratelimit implements the advisory per-user message-send throttle:
// a fixed window of DefaultLimit sends per DefaultWindow. It is in-memory
// only and lost on restart; any authoritative limit must live server-side.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultLimit is the number of sends allowed per window.
	DefaultLimit = 10
	// DefaultWindow is the window duration.
	DefaultWindow = 60 * time.Second

	// Time after which an inactive window is removed
	cleanupInterval = 5 * time.Minute
	// Window is considered inactive if not touched for this duration
	windowTTL = 15 * time.Minute
)

type window struct {
	count      int
	start      time.Time
	lastAccess time.Time
}

// Limiter holds one send window per user id. Construct with New and inject it
// where needed; it is not a package-level singleton so tests and conversations
// can hold isolated instances.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
	stopCh  chan struct{}
	stopped sync.Once
}

// New creates a limiter with the default 10 sends / 60s window and starts the
// background cleanup goroutine. Call Stop when done.
func New() *Limiter {
	l := NewWithClock(DefaultLimit, DefaultWindow, time.Now)
	go l.cleanupLoop()
	return l
}

// NewWithClock creates a limiter with explicit parameters and clock. No
// cleanup goroutine is started; intended for tests and embedding apps that
// sweep on their own schedule.
func NewWithClock(limit int, period time.Duration, now func() time.Time) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     now,
		stopCh:  make(chan struct{}),
	}
}

// TryConsume reports whether userID may send now, counting the send if so.
// Purely synchronous; never returns an error.
func (l *Limiter) TryConsume(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[userID]
	if !ok {
		w = &window{start: now}
		l.windows[userID] = w
	}

	// Expired window restarts from zero
	if now.Sub(w.start) > l.period {
		w.count = 0
		w.start = now
	}
	w.lastAccess = now

	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Remaining reports how many sends are left in the user's current window.
func (l *Limiter) Remaining(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[userID]
	if !ok || l.now().Sub(w.start) > l.period {
		return l.limit
	}
	if w.count >= l.limit {
		return 0
	}
	return l.limit - w.count
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopped.Do(func() { close(l.stopCh) })
}

// cleanupLoop periodically drops idle windows to keep the map bounded.
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if now.Sub(w.lastAccess) > windowTTL {
			delete(l.windows, key)
		}
	}
}
