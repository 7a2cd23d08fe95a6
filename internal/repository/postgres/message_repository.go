package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"yamo-chat/internal/domain"
)

// MessageRepository implements domain.MessageRepository for PostgreSQL
type MessageRepository struct {
	db *sql.DB
	tx *TxManager
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db, tx: NewTxManager(db)}
}

const messageColumns = `id, conversation_id, sender_id, recipient_id, subject, content, is_read, created_at`

// Create inserts the message and its attachment rows in one transaction.
// The id is assigned here; created_at comes back from the database so the
// server clock stays the single ordering authority.
func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	defer observe("create", "messages")()

	if message.ID == "" {
		message.ID = uuid.NewString()
	}

	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO messages (id, conversation_id, sender_id, recipient_id, subject, content)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`
		err := tx.QueryRowContext(ctx, query,
			message.ID,
			message.ConversationID,
			message.SenderID,
			message.RecipientID,
			message.Subject,
			message.Content,
		).Scan(&message.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}

		for i := range message.Attachments {
			att := &message.Attachments[i]
			if att.ID == "" {
				att.ID = uuid.NewString()
			}
			att.MessageID = message.ID

			_, err := tx.ExecContext(ctx, `
				INSERT INTO attachments (id, message_id, url, display_name, mime_type, size_bytes)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, att.ID, att.MessageID, att.URL, att.DisplayName, att.MimeType, att.SizeBytes)
			if err != nil {
				return fmt.Errorf("failed to create attachment: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a message with its attachments
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	defer observe("get_by_id", "messages")()

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1
	`
	msg := &domain.Message{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.RecipientID,
		&msg.Subject,
		&msg.Content,
		&msg.IsRead,
		&msg.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	if err := r.loadAttachments(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Latest returns the newest limit messages of a conversation, oldest first
func (r *MessageRepository) Latest(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	defer observe("latest", "messages")()

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	return r.queryPageReversed(ctx, query, conversationID, limit)
}

// ListBefore returns up to limit messages strictly older than the boundary,
// oldest first. The page is anchored at the boundary: the newest slice of
// what remains below it.
func (r *MessageRepository) ListBefore(ctx context.Context, conversationID string, before time.Time, limit int) ([]*domain.Message, error) {
	defer observe("list_before", "messages")()

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	return r.queryPageReversed(ctx, query, conversationID, before, limit)
}

// ListAfter returns up to limit messages strictly newer than the boundary,
// oldest first.
func (r *MessageRepository) ListAfter(ctx context.Context, conversationID string, after time.Time, limit int) ([]*domain.Message, error) {
	defer observe("list_after", "messages")()

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND created_at > $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return r.collect(ctx, rows, limit)
}

// CountBefore reports how many messages exist strictly before the boundary
func (r *MessageRepository) CountBefore(ctx context.Context, conversationID string, before time.Time) (int, error) {
	defer observe("count_before", "messages")()

	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1 AND created_at < $2
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, conversationID, before).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// CountAfter reports how many messages exist strictly after the boundary
func (r *MessageRepository) CountAfter(ctx context.Context, conversationID string, after time.Time) (int, error) {
	defer observe("count_after", "messages")()

	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1 AND created_at > $2
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, conversationID, after).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// MarkRead flips is_read on the given message ids
func (r *MessageRepository) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	defer observe("mark_read", "messages")()

	query := `
		UPDATE messages
		SET is_read = TRUE
		WHERE id = ANY($1)
	`
	_, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}

// MarkReadForRecipient flips is_read on every unread message addressed to the
// recipient in the conversation and returns the affected ids
func (r *MessageRepository) MarkReadForRecipient(ctx context.Context, conversationID, recipientID string) ([]string, error) {
	defer observe("mark_read_for_recipient", "messages")()

	query := `
		UPDATE messages
		SET is_read = TRUE
		WHERE conversation_id = $1 AND recipient_id = $2 AND is_read = FALSE
		RETURNING id
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark conversation read: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan message id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message ids: %w", err)
	}
	return ids, nil
}

// queryPageReversed runs a DESC-ordered page query and reverses the result
// so callers always see oldest first.
func (r *MessageRepository) queryPageReversed(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	messages, err := r.collect(ctx, rows, 0)
	if err != nil {
		return nil, err
	}

	// Reverse the slice to get oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepository) collect(ctx context.Context, rows *sql.Rows, capacity int) ([]*domain.Message, error) {
	defer rows.Close()

	messages := make([]*domain.Message, 0, capacity)
	for rows.Next() {
		msg := &domain.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.RecipientID,
			&msg.Subject,
			&msg.Content,
			&msg.IsRead,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	for _, msg := range messages {
		if err := r.loadAttachments(ctx, msg); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

func (r *MessageRepository) loadAttachments(ctx context.Context, msg *domain.Message) error {
	query := `
		SELECT id, message_id, url, display_name, mime_type, size_bytes
		FROM attachments
		WHERE message_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var att domain.Attachment
		err := rows.Scan(
			&att.ID,
			&att.MessageID,
			&att.URL,
			&att.DisplayName,
			&att.MimeType,
			&att.SizeBytes,
		)
		if err != nil {
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		msg.Attachments = append(msg.Attachments, att)
	}
	return rows.Err()
}
