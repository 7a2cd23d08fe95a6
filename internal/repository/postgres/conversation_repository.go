package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"yamo-chat/internal/domain"
)

// ConversationRepository implements domain.ConversationRepository for PostgreSQL
type ConversationRepository struct {
	db *sql.DB
}

// NewConversationRepository creates a new PostgreSQL conversation repository
func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetByID retrieves a conversation with its ad title joined in
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	defer observe("get_by_id", "conversations")()

	query := `
		SELECT c.id, c.participant_a, c.participant_b, c.ad_id,
		       COALESCE(a.title, ''), c.last_message_at, c.created_at
		FROM conversations c
		LEFT JOIN ads a ON c.ad_id = a.id
		WHERE c.id = $1
	`
	conv := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID,
		&conv.ParticipantA,
		&conv.ParticipantB,
		&conv.AdID,
		&conv.AdTitle,
		&conv.LastMessageAt,
		&conv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// GetOrCreate finds the conversation between two participants for an ad,
// creating it if absent. Participants are stored in lexical order so the
// pair maps to one row regardless of who initiated.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, userA, userB, adID string) (*domain.Conversation, error) {
	defer observe("get_or_create", "conversations")()

	if userB < userA {
		userA, userB = userB, userA
	}

	lookup := `
		SELECT id FROM conversations
		WHERE participant_a = $1 AND participant_b = $2 AND ad_id = $3
	`
	var id string
	err := r.db.QueryRowContext(ctx, lookup, userA, userB, adID).Scan(&id)
	if err == nil {
		return r.GetByID(ctx, id)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}

	insert := `
		INSERT INTO conversations (id, participant_a, participant_b, ad_id)
		VALUES ($1, $2, $3, $4)
	`
	id = uuid.NewString()
	if _, err := r.db.ExecContext(ctx, insert, id, userA, userB, adID); err != nil {
		// Concurrent creation of the same pair loses the race on the
		// unique index; the winner's row is the one we want.
		if IsUniqueViolation(err, "conversations_participants_ad_key") {
			if lookupErr := r.db.QueryRowContext(ctx, lookup, userA, userB, adID).Scan(&id); lookupErr != nil {
				return nil, fmt.Errorf("failed to resolve conversation race: %w", lookupErr)
			}
			return r.GetByID(ctx, id)
		}
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return r.GetByID(ctx, id)
}

// CountByParticipant reports how many conversations a user is part of
func (r *ConversationRepository) CountByParticipant(ctx context.Context, userID string) (int, error) {
	defer observe("count_by_participant", "conversations")()

	query := `
		SELECT COUNT(*)
		FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

// Touch updates last_message_at
func (r *ConversationRepository) Touch(ctx context.Context, id string, at time.Time) error {
	defer observe("touch", "conversations")()

	query := `
		UPDATE conversations
		SET last_message_at = $2
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if affected == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}
