package conversation

import (
	"context"
	"log/slog"
	"sync"

	"yamo-chat/internal/domain"
	"yamo-chat/internal/realtime"
)

// State is the controller's lifecycle phase.
type State string

const (
	StateLoading          State = "loading"
	StateReady            State = "ready"
	StateSending          State = "sending"
	StatePaginatingOlder  State = "paginating_older"
	StatePaginatingNewer  State = "paginating_newer"
	StateError            State = "error"
	StateClosed           State = "closed"
)

// ViewModel is everything the UI needs to render one conversation.
type ViewModel struct {
	Conversation *domain.Conversation
	Messages     []domain.Message
	HasOlder     bool
	HasNewer     bool
	Typists      []domain.TypingSignal
	State        State
	LastError    error
}

// Deps are the collaborators a Controller composes. The message repository
// should already be wrapped by realtime.PublishingRepository so sends echo
// back through the feed.
type Deps struct {
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
	Sender        *Sender
	Bridge        *realtime.Bridge
	TypingFeed    domain.TypingFeed
}

// Controller orchestrates one open conversation view: initial load, realtime
// wiring, pagination, the send pipeline, read receipts, and typing presence.
//
// Operations are serialized by an internal mutex, mirroring the single
// event-loop model of the UI it serves; only the change feed writes into the
// store concurrently, which the store's own locking covers. Failures are
// recoverable: the controller parks in StateError with the cause, and the
// next operation proceeds normally.
type Controller struct {
	identity       domain.Identity
	conversationID string
	deps           Deps

	store     *Store
	pager     *Paginator
	tracker   *TypingTracker
	announcer *TypingAnnouncer

	opMu sync.Mutex // serializes Open/Send/LoadOlder/LoadNewer/Refresh

	mu        sync.Mutex // guards the fields below
	state     State
	lastErr   error
	conv      *domain.Conversation
	stream    *realtime.Stream
	typingSub domain.TypingSubscription
	cancelBG  context.CancelFunc
}

// NewController creates a controller for one conversation. Call Open before
// anything else and Close when the view goes away.
func NewController(identity domain.Identity, conversationID string, deps Deps) *Controller {
	store := NewStore()
	return &Controller{
		identity:       identity,
		conversationID: conversationID,
		deps:           deps,
		store:          store,
		pager:          NewPaginator(store, deps.Messages, conversationID),
		tracker:        NewTypingTracker(),
		announcer:      NewTypingAnnouncer(deps.TypingFeed, conversationID, identity),
		state:          StateLoading,
	}
}

// Open loads the conversation metadata and the most recent page, wires the
// realtime and typing feeds, and kicks off the fire-and-forget read-receipt
// update for visible messages addressed to the current user.
func (c *Controller) Open(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.setState(StateLoading)

	conv, err := c.deps.Conversations.GetByID(ctx, c.conversationID)
	if err != nil {
		return c.fail(&domain.StoreError{Op: "load conversation", Err: err})
	}
	if !conv.HasParticipant(c.identity.UserID) {
		return c.fail(domain.ErrNotParticipant)
	}

	if err := c.pager.LoadInitial(ctx); err != nil {
		return c.fail(err)
	}

	bgCtx, cancel := context.WithCancel(context.Background())

	stream, err := c.deps.Bridge.Open(bgCtx, c.conversationID, c.store)
	if err != nil {
		// Degraded mode: the view works off explicit refreshes
		slog.Warn("conversation opened without live updates",
			slog.String("conversation_id", c.conversationID),
			slog.String("error", err.Error()))
	}

	typingSub, subErr := c.deps.TypingFeed.SubscribeTyping(c.conversationID)
	if subErr != nil {
		slog.Warn("typing presence unavailable",
			slog.String("conversation_id", c.conversationID),
			slog.String("error", subErr.Error()))
	} else {
		go c.pumpTyping(bgCtx, typingSub)
	}
	go c.tracker.Run(bgCtx)

	c.mu.Lock()
	c.conv = conv
	c.stream = stream
	c.typingSub = typingSub
	c.cancelBG = cancel
	c.mu.Unlock()

	c.markVisibleRead()
	c.setState(StateReady)
	return nil
}

// Close tears down the feed subscriptions and background goroutines. In-flight
// fetches are not cancelled; their results are simply discarded.
func (c *Controller) Close() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.announcer.Stop(context.Background())

	c.mu.Lock()
	stream, typingSub, cancel := c.stream, c.typingSub, c.cancelBG
	c.stream, c.typingSub, c.cancelBG = nil, nil, nil
	c.state = StateClosed
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		stream.Close()
	}
	if typingSub != nil {
		typingSub.Close()
	}
}

// Send runs the full send pipeline. The returned message is the stored
// record; it reaches the view through the realtime echo, not an optimistic
// insert, so there is a single source of ordering truth.
func (c *Controller) Send(ctx context.Context, content, subject string, attachments []domain.Attachment) (*domain.Message, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	conv := c.conversation()
	if conv == nil {
		return nil, c.fail(domain.ErrConversationNotFound)
	}

	c.setState(StateSending)

	// The user is no longer typing once they hit send
	c.announcer.Stop(ctx)

	msg, err := c.deps.Sender.Send(ctx, c.identity, conv, content, subject, attachments)
	if err != nil {
		return nil, c.fail(err)
	}

	c.setState(StateReady)
	return msg, nil
}

// LoadOlder pulls the next page of history below the loaded range.
func (c *Controller) LoadOlder(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.setState(StatePaginatingOlder)
	if _, err := c.pager.LoadOlder(ctx); err != nil {
		return c.fail(err)
	}
	c.markVisibleRead()
	c.setState(StateReady)
	return nil
}

// LoadNewer pulls the next page above the loaded range.
func (c *Controller) LoadNewer(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.setState(StatePaginatingNewer)
	if _, err := c.pager.LoadNewer(ctx); err != nil {
		return c.fail(err)
	}
	c.markVisibleRead()
	c.setState(StateReady)
	return nil
}

// Refresh re-pulls the newest page. This is the fallback when the feed is
// down (for example triggered on window refocus); merge-by-id makes it safe
// to call any time.
func (c *Controller) Refresh(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if _, err := c.pager.LoadNewer(ctx); err != nil {
		return c.fail(err)
	}
	c.markVisibleRead()
	c.setState(StateReady)
	return nil
}

// Typing notes a keystroke in the compose box.
func (c *Controller) Typing(ctx context.Context) {
	c.announcer.Keystroke(ctx)
}

// Live reports whether the realtime stream is still delivering.
func (c *Controller) Live() bool {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return false
	}
	select {
	case <-stream.Done():
		return false
	default:
		return true
	}
}

// View returns the current render state.
func (c *Controller) View() ViewModel {
	snap := c.store.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	return ViewModel{
		Conversation: c.conv,
		Messages:     snap.Messages,
		HasOlder:     snap.HasOlder,
		HasNewer:     snap.HasNewer,
		Typists:      c.tracker.Active(c.identity.UserID),
		State:        c.state,
		LastError:    c.lastErr,
	}
}

// markVisibleRead flips read receipts for loaded unread messages addressed to
// the current user. Fire and forget: the UI never blocks on it, and the feed's
// update events reconcile other views.
func (c *Controller) markVisibleRead() {
	ids := c.store.UnreadFor(c.identity.UserID)
	if len(ids) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendDeadline)
		defer cancel()

		if err := c.deps.Messages.MarkRead(ctx, ids); err != nil {
			slog.Warn("failed to mark messages read",
				slog.String("conversation_id", c.conversationID),
				slog.Int("count", len(ids)),
				slog.String("error", err.Error()))
			return
		}
		c.store.MarkReadLocal(ids)
	}()
}

func (c *Controller) pumpTyping(ctx context.Context, sub domain.TypingSubscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sub.Signals():
			if !ok {
				return
			}
			c.tracker.Observe(sig)
		}
	}
}

func (c *Controller) conversation() *domain.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	if s == StateReady {
		c.lastErr = nil
	}
	c.mu.Unlock()
}

// fail parks the controller in StateError with the cause and passes the error
// through. The state is recoverable: the next operation proceeds normally.
func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.state = StateError
	c.lastErr = err
	c.mu.Unlock()
	return err
}
