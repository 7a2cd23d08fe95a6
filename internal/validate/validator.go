// Package validate holds the pre-send checks on message content and
// recipient eligibility.
package validate

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"yamo-chat/internal/domain"
)

// maxRepeatRun is the longest allowed run of one repeated character; one more
// trips the spam heuristic.
const maxRepeatRun = 10

// Validator checks messages before they are handed to the store. Recipient
// checks hit the remote store on every call; nothing is cached so the
// conversation ceiling stays current.
type Validator struct {
	profiles      domain.ProfileRepository
	conversations domain.ConversationRepository
}

func NewValidator(profiles domain.ProfileRepository, conversations domain.ConversationRepository) *Validator {
	return &Validator{
		profiles:      profiles,
		conversations: conversations,
	}
}

// ValidateContent rejects empty, oversized, or spam-looking message bodies.
// Pure and synchronous.
func (v *Validator) ValidateContent(text string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrEmptyContent
	}
	if utf8.RuneCountInString(text) > domain.MaxContentLength {
		return domain.ErrContentTooLong
	}
	if hasLongRun(text) {
		return domain.ErrRepeatedContent
	}
	return nil
}

// ValidateRecipient rejects self-messages, unknown recipients, and senders at
// the conversation ceiling. Checks run in that order, short-circuiting on the
// first failure.
func (v *Validator) ValidateRecipient(ctx context.Context, recipientID, senderID string) error {
	if recipientID == senderID {
		return domain.ErrSelfMessage
	}

	if _, err := v.profiles.GetByID(ctx, recipientID); err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return domain.ErrRecipientNotFound
		}
		return &domain.StoreError{Op: "validate recipient", Err: err}
	}

	count, err := v.conversations.CountByParticipant(ctx, senderID)
	if err != nil {
		return &domain.StoreError{Op: "count conversations", Err: err}
	}
	if count >= domain.MaxConversationsPerUser {
		return domain.ErrConversationCeiling
	}

	return nil
}

// hasLongRun reports whether text contains more than maxRepeatRun identical
// consecutive runes. Equivalent to the backreference pattern (.)\1{10,},
// which RE2 cannot express, so the scan is done by hand.
func hasLongRun(text string) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
			if run > maxRepeatRun {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}
