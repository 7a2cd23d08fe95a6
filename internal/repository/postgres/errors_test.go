package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{
			name:       "unique_violation_any_constraint",
			err:        &pq.Error{Code: "23505", Constraint: "conversations_participants_ad_key"},
			constraint: "",
			want:       true,
		},
		{
			name:       "unique_violation_matching_constraint",
			err:        &pq.Error{Code: "23505", Constraint: "conversations_participants_ad_key"},
			constraint: "conversations_participants_ad_key",
			want:       true,
		},
		{
			name:       "unique_violation_different_constraint",
			err:        &pq.Error{Code: "23505", Constraint: "messages_pkey"},
			constraint: "conversations_participants_ad_key",
			want:       false,
		},
		{
			name:       "other_pq_error",
			err:        &pq.Error{Code: "23503"},
			constraint: "",
			want:       false,
		},
		{
			name:       "wrapped_unique_violation",
			err:        fmt.Errorf("failed to create conversation: %w", &pq.Error{Code: "23505"}),
			constraint: "",
			want:       true,
		},
		{
			name:       "plain_error",
			err:        errors.New("database error"),
			constraint: "",
			want:       false,
		},
		{
			name:       "nil_error",
			err:        nil,
			constraint: "",
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err, tt.constraint))
		})
	}
}
