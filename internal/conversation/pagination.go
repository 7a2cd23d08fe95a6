package conversation

import (
	"context"

	"yamo-chat/internal/domain"
	"yamo-chat/internal/observability"
)

// PageSize is the fixed number of messages fetched per page.
const PageSize = 50

// Paginator loads message pages into a Store and tracks whether more history
// exists at either boundary.
//
// The boundary flags are eventually consistent on purpose: after each page
// merge an independent count query asks whether anything exists beyond the new
// edge, rather than inferring from page fullness alone. A row inserted between
// the page fetch and the count can be missed until the next load.
type Paginator struct {
	store          *Store
	messages       domain.MessageRepository
	conversationID string
	pageSize       int
}

// NewPaginator creates a paginator bound to one conversation.
func NewPaginator(store *Store, messages domain.MessageRepository, conversationID string) *Paginator {
	return &Paginator{
		store:          store,
		messages:       messages,
		conversationID: conversationID,
		pageSize:       PageSize,
	}
}

// LoadInitial fetches the most recent page. The view starts pinned to the
// newest edge, so hasNewer begins false.
func (p *Paginator) LoadInitial(ctx context.Context) error {
	msgs, err := p.messages.Latest(ctx, p.conversationID, p.pageSize)
	if err != nil {
		return &domain.StoreError{Op: "load initial page", Err: err}
	}
	p.store.Merge(msgs...)
	p.store.SetHasNewer(false)
	observability.PaginationLoadsTotal.WithLabelValues("initial").Inc()
	return p.refreshOlderBoundary(ctx)
}

// LoadOlder fetches the page below the current oldest loaded message and
// merges it. Returns how many messages were new to the store. A failed fetch
// leaves the store and flags untouched.
func (p *Paginator) LoadOlder(ctx context.Context) (int, error) {
	oldest := p.store.Oldest()
	if oldest == nil {
		return 0, p.LoadInitial(ctx)
	}

	msgs, err := p.messages.ListBefore(ctx, p.conversationID, oldest.CreatedAt, p.pageSize)
	if err != nil {
		return 0, &domain.StoreError{Op: "load older page", Err: err}
	}
	added := p.store.Merge(msgs...)
	observability.PaginationLoadsTotal.WithLabelValues("older").Inc()
	return added, p.refreshOlderBoundary(ctx)
}

// LoadNewer is the symmetric fetch above the current newest loaded message.
func (p *Paginator) LoadNewer(ctx context.Context) (int, error) {
	newest := p.store.Newest()
	if newest == nil {
		return 0, p.LoadInitial(ctx)
	}

	msgs, err := p.messages.ListAfter(ctx, p.conversationID, newest.CreatedAt, p.pageSize)
	if err != nil {
		return 0, &domain.StoreError{Op: "load newer page", Err: err}
	}
	added := p.store.Merge(msgs...)
	observability.PaginationLoadsTotal.WithLabelValues("newer").Inc()
	return added, p.refreshNewerBoundary(ctx)
}

// refreshOlderBoundary re-queries whether anything exists below the loaded
// range. On count failure the flag keeps its previous value; the merged page
// itself is already applied.
func (p *Paginator) refreshOlderBoundary(ctx context.Context) error {
	oldest := p.store.Oldest()
	if oldest == nil {
		p.store.SetHasOlder(false)
		return nil
	}
	count, err := p.messages.CountBefore(ctx, p.conversationID, oldest.CreatedAt)
	if err != nil {
		return &domain.StoreError{Op: "check older boundary", Err: err}
	}
	p.store.SetHasOlder(count > 0)
	return nil
}

func (p *Paginator) refreshNewerBoundary(ctx context.Context) error {
	newest := p.store.Newest()
	if newest == nil {
		p.store.SetHasNewer(false)
		return nil
	}
	count, err := p.messages.CountAfter(ctx, p.conversationID, newest.CreatedAt)
	if err != nil {
		return &domain.StoreError{Op: "check newer boundary", Err: err}
	}
	p.store.SetHasNewer(count > 0)
	return nil
}
