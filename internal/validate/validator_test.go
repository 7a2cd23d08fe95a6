package validate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"yamo-chat/internal/domain"
	"yamo-chat/internal/testutil"
)

func newTestValidator() (*Validator, *testutil.MockProfileRepository, *testutil.MockConversationRepository) {
	profiles := testutil.NewMockProfileRepository()
	conversations := testutil.NewMockConversationRepository()
	return NewValidator(profiles, conversations), profiles, conversations
}

func TestValidateContent(t *testing.T) {
	v, _, _ := newTestValidator()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"plain text", "hello there", nil},
		{"empty", "", domain.ErrEmptyContent},
		{"whitespace only", "   \n\t ", domain.ErrEmptyContent},
		{"exactly 2000 chars", strings.Repeat("ab", 1000), nil},
		{"2001 chars", strings.Repeat("ab", 1000) + "c", domain.ErrContentTooLong},
		{"2000 multibyte runes", strings.Repeat("é", 2000), nil},
		{"11 repeated chars", strings.Repeat("a", 11), domain.ErrRepeatedContent},
		{"10 repeated chars surrounded by text", "well " + strings.Repeat("a", 10) + " done", nil},
		{"11 repeated chars embedded", "well " + strings.Repeat("a", 11) + " done", domain.ErrRepeatedContent},
		{"run broken by other char", strings.Repeat("a", 10) + "b" + strings.Repeat("a", 10), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateContent(tt.content)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateContent(%q): got %v, want %v", tt.content, err, tt.wantErr)
			}
		})
	}
}

func TestValidateContent_LengthIsRuneBased(t *testing.T) {
	v, _, _ := newTestValidator()

	// 2000 runes of 2 bytes each: 4000 bytes, still valid
	content := strings.Repeat("éa", 1000)
	if err := v.ValidateContent(content); err != nil {
		t.Errorf("2000-rune multibyte content should be valid, got %v", err)
	}
}

func TestValidateRecipient_SelfMessage(t *testing.T) {
	v, profiles, _ := newTestValidator()

	// Rejected even when the profile exists
	profiles.Add(&domain.Profile{ID: "user-1", DisplayName: "Alice"})

	err := v.ValidateRecipient(context.Background(), "user-1", "user-1")
	if !errors.Is(err, domain.ErrSelfMessage) {
		t.Errorf("expected ErrSelfMessage, got %v", err)
	}

	// And when it does not
	err = v.ValidateRecipient(context.Background(), "ghost", "ghost")
	if !errors.Is(err, domain.ErrSelfMessage) {
		t.Errorf("expected ErrSelfMessage regardless of profile existence, got %v", err)
	}
}

func TestValidateRecipient_UnknownRecipient(t *testing.T) {
	v, _, _ := newTestValidator()

	err := v.ValidateRecipient(context.Background(), "ghost", "user-1")
	if !errors.Is(err, domain.ErrRecipientNotFound) {
		t.Errorf("expected ErrRecipientNotFound, got %v", err)
	}
}

func TestValidateRecipient_ConversationCeiling(t *testing.T) {
	v, profiles, conversations := newTestValidator()

	profiles.Add(&domain.Profile{ID: "user-2", DisplayName: "Bob"})
	conversations.CountByParticipantFunc = func(ctx context.Context, userID string) (int, error) {
		return domain.MaxConversationsPerUser, nil
	}

	err := v.ValidateRecipient(context.Background(), "user-2", "user-1")
	if !errors.Is(err, domain.ErrConversationCeiling) {
		t.Errorf("expected ErrConversationCeiling, got %v", err)
	}
}

func TestValidateRecipient_StoreFailureIsNotValidation(t *testing.T) {
	v, profiles, _ := newTestValidator()

	profiles.GetByIDFunc = func(ctx context.Context, id string) (*domain.Profile, error) {
		return nil, errors.New("connection refused")
	}

	err := v.ValidateRecipient(context.Background(), "user-2", "user-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.IsValidation(err) {
		t.Errorf("store failure must not be reported as a validation error: %v", err)
	}
	if !domain.IsStoreError(err) {
		t.Errorf("expected StoreError, got %v", err)
	}
}
