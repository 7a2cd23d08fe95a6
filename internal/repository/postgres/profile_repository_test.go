package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"yamo-chat/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileRepository_GetByID(t *testing.T) {
	columns := []string{"id", "display_name", "email", "created_at"}

	t.Run("successful_retrieval", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewProfileRepository(db)

		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, display_name, email, created_at
		FROM profiles
		WHERE id = $1
	`)).
			WithArgs("user-a").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("user-a", "Alice", "alice@example.com", now))

		profile, err := repo.GetByID(context.Background(), "user-a")
		require.NoError(t, err)
		assert.Equal(t, "Alice", profile.DisplayName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not_found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewProfileRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT`)).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(columns))

		profile, err := repo.GetByID(context.Background(), "nope")
		assert.Nil(t, profile)
		assert.ErrorIs(t, err, domain.ErrProfileNotFound)
	})

	t.Run("database_error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewProfileRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT`)).
			WillReturnError(errors.New("database error"))

		_, err = repo.GetByID(context.Background(), "user-a")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get profile")
	})
}
