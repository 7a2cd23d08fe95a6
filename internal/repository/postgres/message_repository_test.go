package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"yamo-chat/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRepository_Create(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		createdAt := time.Now()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`
			INSERT INTO messages (id, conversation_id, sender_id, recipient_id, subject, content)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`)).
			WithArgs(sqlmock.AnyArg(), "conv-123", "user-a", "user-b", "Re: bike", "Is it still available?").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))
		mock.ExpectCommit()

		message := &domain.Message{
			ConversationID: "conv-123",
			SenderID:       "user-a",
			RecipientID:    "user-b",
			Subject:        "Re: bike",
			Content:        "Is it still available?",
		}

		err = repo.Create(context.Background(), message)
		require.NoError(t, err)
		assert.NotEmpty(t, message.ID, "id must be assigned on create")
		assert.Equal(t, createdAt, message.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("creation_with_attachments", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		createdAt := time.Now()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`
			INSERT INTO messages (id, conversation_id, sender_id, recipient_id, subject, content)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`)).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))
		mock.ExpectExec(regexp.QuoteMeta(`
				INSERT INTO attachments (id, message_id, url, display_name, mime_type, size_bytes)
				VALUES ($1, $2, $3, $4, $5, $6)
			`)).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "https://cdn.example/bike.jpg", "bike.jpg", "image/jpeg", int64(20480)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		message := &domain.Message{
			ConversationID: "conv-123",
			SenderID:       "user-a",
			RecipientID:    "user-b",
			Content:        "photo attached",
			Attachments: []domain.Attachment{
				{URL: "https://cdn.example/bike.jpg", DisplayName: "bike.jpg", MimeType: "image/jpeg", SizeBytes: 20480},
			},
		}

		err = repo.Create(context.Background(), message)
		require.NoError(t, err)
		assert.NotEmpty(t, message.Attachments[0].ID)
		assert.Equal(t, message.ID, message.Attachments[0].MessageID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback_when_attachment_insert_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages`)).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO attachments`)).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		message := &domain.Message{
			ConversationID: "conv-123",
			SenderID:       "user-a",
			RecipientID:    "user-b",
			Content:        "photo attached",
			Attachments:    []domain.Attachment{{URL: "https://cdn.example/x.jpg"}},
		}

		err = repo.Create(context.Background(), message)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create attachment")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database_error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages`)).
			WillReturnError(errors.New("database error"))
		mock.ExpectRollback()

		message := &domain.Message{
			ConversationID: "conv-123",
			SenderID:       "user-a",
			RecipientID:    "user-b",
			Content:        "Hello",
		}

		err = repo.Create(context.Background(), message)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create message")
	})
}

func TestMessageRepository_GetByID(t *testing.T) {
	columns := []string{"id", "conversation_id", "sender_id", "recipient_id", "subject", "content", "is_read", "created_at"}

	t.Run("successful_retrieval", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		createdAt := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, conversation_id, sender_id, recipient_id, subject, content, is_read, created_at
		FROM messages
		WHERE id = $1
	`)).
			WithArgs("msg-1").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("msg-1", "conv-123", "user-a", "user-b", "", "Hello", false, createdAt))
		mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, message_id, url, display_name, mime_type, size_bytes
		FROM attachments
		WHERE message_id = $1
		ORDER BY id
	`)).
			WithArgs("msg-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "message_id", "url", "display_name", "mime_type", "size_bytes"}).
				AddRow("att-1", "msg-1", "https://cdn.example/bike.jpg", "bike.jpg", "image/jpeg", int64(20480)))

		msg, err := repo.GetByID(context.Background(), "msg-1")
		require.NoError(t, err)
		assert.Equal(t, "msg-1", msg.ID)
		assert.Equal(t, "Hello", msg.Content)
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, "bike.jpg", msg.Attachments[0].DisplayName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not_found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT`)).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(columns))

		msg, err := repo.GetByID(context.Background(), "nope")
		assert.Nil(t, msg)
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	})
}

func TestMessageRepository_Latest(t *testing.T) {
	columns := []string{"id", "conversation_id", "sender_id", "recipient_id", "subject", "content", "is_read", "created_at"}
	attColumns := []string{"id", "message_id", "url", "display_name", "mime_type", "size_bytes"}

	t.Run("returns_oldest_first", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		createdAt := time.Now()
		// Database hands back newest first; the repo reverses
		mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, conversation_id, sender_id, recipient_id, subject, content, is_read, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`)).
			WithArgs("conv-123", 50).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("msg-3", "conv-123", "user-a", "user-b", "", "third", false, createdAt.Add(2*time.Second)).
				AddRow("msg-2", "conv-123", "user-b", "user-a", "", "second", false, createdAt.Add(1*time.Second)).
				AddRow("msg-1", "conv-123", "user-a", "user-b", "", "first", true, createdAt))
		for _, id := range []string{"msg-1", "msg-2", "msg-3"} {
			mock.ExpectQuery(regexp.QuoteMeta(`FROM attachments`)).
				WithArgs(id).
				WillReturnRows(sqlmock.NewRows(attColumns))
		}

		messages, err := repo.Latest(context.Background(), "conv-123", 50)
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "msg-1", messages[0].ID)
		assert.Equal(t, "msg-3", messages[2].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty_conversation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`FROM messages`)).
			WithArgs("conv-123", 50).
			WillReturnRows(sqlmock.NewRows(columns))

		messages, err := repo.Latest(context.Background(), "conv-123", 50)
		require.NoError(t, err)
		assert.Len(t, messages, 0)
		assert.NotNil(t, messages)
	})

	t.Run("database_error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`FROM messages`)).
			WillReturnError(errors.New("database error"))

		messages, err := repo.Latest(context.Background(), "conv-123", 50)
		require.Error(t, err)
		assert.Nil(t, messages)
		assert.Contains(t, err.Error(), "failed to query messages")
	})
}

func TestMessageRepository_ListBefore(t *testing.T) {
	columns := []string{"id", "conversation_id", "sender_id", "recipient_id", "subject", "content", "is_read", "created_at"}
	attColumns := []string{"id", "message_id", "url", "display_name", "mime_type", "size_bytes"}

	t.Run("page_is_anchored_at_boundary", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		boundary := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, conversation_id, sender_id, recipient_id, subject, content, is_read, created_at
		FROM messages
		WHERE conversation_id = $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`)).
			WithArgs("conv-123", boundary, 50).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("msg-2", "conv-123", "user-a", "user-b", "", "newer", false, boundary.Add(-1*time.Second)).
				AddRow("msg-1", "conv-123", "user-b", "user-a", "", "older", true, boundary.Add(-2*time.Second)))
		for _, id := range []string{"msg-1", "msg-2"} {
			mock.ExpectQuery(regexp.QuoteMeta(`FROM attachments`)).
				WithArgs(id).
				WillReturnRows(sqlmock.NewRows(attColumns))
		}

		messages, err := repo.ListBefore(context.Background(), "conv-123", boundary, 50)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "msg-1", messages[0].ID)
		assert.Equal(t, "msg-2", messages[1].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMessageRepository_ListAfter(t *testing.T) {
	columns := []string{"id", "conversation_id", "sender_id", "recipient_id", "subject", "content", "is_read", "created_at"}
	attColumns := []string{"id", "message_id", "url", "display_name", "mime_type", "size_bytes"}

	t.Run("ascending_from_boundary", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		boundary := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, conversation_id, sender_id, recipient_id, subject, content, is_read, created_at
		FROM messages
		WHERE conversation_id = $1 AND created_at > $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`)).
			WithArgs("conv-123", boundary, 50).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("msg-5", "conv-123", "user-a", "user-b", "", "next", false, boundary.Add(1*time.Second)))
		mock.ExpectQuery(regexp.QuoteMeta(`FROM attachments`)).
			WithArgs("msg-5").
			WillReturnRows(sqlmock.NewRows(attColumns))

		messages, err := repo.ListAfter(context.Background(), "conv-123", boundary, 50)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "msg-5", messages[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMessageRepository_Counts(t *testing.T) {
	t.Run("count_before", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		boundary := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1 AND created_at < $2
	`)).
			WithArgs("conv-123", boundary).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(17))

		count, err := repo.CountBefore(context.Background(), "conv-123", boundary)
		require.NoError(t, err)
		assert.Equal(t, 17, count)
	})

	t.Run("count_after", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		boundary := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1 AND created_at > $2
	`)).
			WithArgs("conv-123", boundary).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		count, err := repo.CountAfter(context.Background(), "conv-123", boundary)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("database_error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*)`)).
			WillReturnError(errors.New("database error"))

		_, err = repo.CountBefore(context.Background(), "conv-123", time.Now())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to count messages")
	})
}

func TestMessageRepository_MarkRead(t *testing.T) {
	t.Run("flips_given_ids", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		ids := []string{"msg-1", "msg-2"}
		mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE messages
		SET is_read = TRUE
		WHERE id = ANY($1)
	`)).
			WithArgs(pq.Array(ids)).
			WillReturnResult(sqlmock.NewResult(0, 2))

		err = repo.MarkRead(context.Background(), ids)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty_ids_is_a_noop", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		err = repo.MarkRead(context.Background(), nil)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMessageRepository_MarkReadForRecipient(t *testing.T) {
	t.Run("returns_affected_ids", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`
		UPDATE messages
		SET is_read = TRUE
		WHERE conversation_id = $1 AND recipient_id = $2 AND is_read = FALSE
		RETURNING id
	`)).
			WithArgs("conv-123", "user-b").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).
				AddRow("msg-1").
				AddRow("msg-2"))

		ids, err := repo.MarkReadForRecipient(context.Background(), "conv-123", "user-b")
		require.NoError(t, err)
		assert.Equal(t, []string{"msg-1", "msg-2"}, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing_unread", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewMessageRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE messages`)).
			WithArgs("conv-123", "user-b").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		ids, err := repo.MarkReadForRecipient(context.Background(), "conv-123", "user-b")
		require.NoError(t, err)
		assert.Len(t, ids, 0)
		assert.NotNil(t, ids)
	})
}
