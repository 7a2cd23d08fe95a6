package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"yamo-chat/internal/conversation"
	"yamo-chat/internal/domain"
	"yamo-chat/internal/middleware"
	"yamo-chat/internal/validate"

	"github.com/go-chi/chi/v5"
)

// ConversationHandler handles conversation and message endpoints
type ConversationHandler struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	validator     *validate.Validator
	sender        *conversation.Sender
	typing        domain.TypingFeed
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations domain.ConversationRepository, messages domain.MessageRepository,
	validator *validate.Validator, sender *conversation.Sender, typing domain.TypingFeed) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		validator:     validator,
		sender:        sender,
		typing:        typing,
	}
}

// OpenConversationRequest represents a get-or-create request
type OpenConversationRequest struct {
	RecipientID string `json:"recipient_id"`
	AdID        string `json:"ad_id,omitempty"`
}

// SendMessageRequest represents a message send request
type SendMessageRequest struct {
	Content     string              `json:"content"`
	Subject     string              `json:"subject,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

// TypingRequest represents a typing presence signal
type TypingRequest struct {
	Stopped bool `json:"stopped,omitempty"`
}

// MessagesPage is one page of messages plus boundary flags
type MessagesPage struct {
	Messages []*domain.Message `json:"messages"`
	HasOlder bool              `json:"has_older"`
	HasNewer bool              `json:"has_newer"`
}

// Open finds or creates the conversation with the given recipient
func (h *ConversationHandler) Open(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		http.Error(w, `{"error":"User not authenticated"}`, http.StatusUnauthorized)
		return
	}

	var req OpenConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.RecipientID == "" {
		http.Error(w, `{"error":"Recipient required"}`, http.StatusBadRequest)
		return
	}

	if err := h.validator.ValidateRecipient(r.Context(), req.RecipientID, identity.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	conv, err := h.conversations.GetOrCreate(r.Context(), identity.UserID, req.RecipientID, req.AdID)
	if err != nil {
		http.Error(w, `{"error":"Failed to open conversation"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

// Get returns one conversation with its most recent message page
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.authorizedConversation(w, r)
	if !ok {
		return
	}

	page, err := h.latestPage(r.Context(), conv.ID)
	if err != nil {
		http.Error(w, `{"error":"Failed to retrieve messages"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"conversation": conv,
		"page":         page,
	})
}

// GetMessages returns a page of messages. Without a cursor the most recent
// page is returned; before/after cursors page into history or forward again.
func (h *ConversationHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.authorizedConversation(w, r)
	if !ok {
		return
	}

	var (
		page *MessagesPage
		err  error
	)

	query := r.URL.Query()
	switch {
	case query.Get("before") != "":
		boundary, parseErr := time.Parse(time.RFC3339Nano, query.Get("before"))
		if parseErr != nil {
			http.Error(w, `{"error":"Invalid before cursor"}`, http.StatusBadRequest)
			return
		}
		page, err = h.pageBefore(r.Context(), conv.ID, boundary)
	case query.Get("after") != "":
		boundary, parseErr := time.Parse(time.RFC3339Nano, query.Get("after"))
		if parseErr != nil {
			http.Error(w, `{"error":"Invalid after cursor"}`, http.StatusBadRequest)
			return
		}
		page, err = h.pageAfter(r.Context(), conv.ID, boundary)
	default:
		page, err = h.latestPage(r.Context(), conv.ID)
	}

	if err != nil {
		http.Error(w, `{"error":"Failed to retrieve messages"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

// SendMessage submits one message through the send pipeline
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		http.Error(w, `{"error":"User not authenticated"}`, http.StatusUnauthorized)
		return
	}

	conv, ok := h.authorizedConversation(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	msg, err := h.sender.Send(r.Context(), identity, conv, req.Content, req.Subject, req.Attachments)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

// MarkRead flips every unread message addressed to the caller
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		http.Error(w, `{"error":"User not authenticated"}`, http.StatusUnauthorized)
		return
	}

	conv, ok := h.authorizedConversation(w, r)
	if !ok {
		return
	}

	ids, err := h.sender.MarkRead(r.Context(), conv.ID, identity.UserID)
	if err != nil {
		http.Error(w, `{"error":"Failed to mark messages read"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"marked_read": ids,
	})
}

// Typing publishes a typing presence signal for the caller
func (h *ConversationHandler) Typing(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		http.Error(w, `{"error":"User not authenticated"}`, http.StatusUnauthorized)
		return
	}

	conv, ok := h.authorizedConversation(w, r)
	if !ok {
		return
	}

	var req TypingRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
			return
		}
	}

	err := h.typing.PublishTypingSignal(r.Context(), domain.TypingSignal{
		ConversationID: conv.ID,
		UserID:         identity.UserID,
		DisplayName:    identity.DisplayName,
		Stopped:        req.Stopped,
		At:             time.Now(),
	})
	if err != nil {
		http.Error(w, `{"error":"Failed to publish typing signal"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// authorizedConversation loads the conversation from the URL and enforces
// that the caller is a participant
func (h *ConversationHandler) authorizedConversation(w http.ResponseWriter, r *http.Request) (*domain.Conversation, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"User not authenticated"}`, http.StatusUnauthorized)
		return nil, false
	}

	conversationID := chi.URLParam(r, "id")
	if conversationID == "" {
		http.Error(w, `{"error":"Conversation ID required"}`, http.StatusBadRequest)
		return nil, false
	}

	conv, err := h.conversations.GetByID(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			http.Error(w, `{"error":"Conversation not found"}`, http.StatusNotFound)
		} else {
			http.Error(w, `{"error":"Failed to retrieve conversation"}`, http.StatusInternalServerError)
		}
		return nil, false
	}

	if !conv.HasParticipant(userID) {
		http.Error(w, `{"error":"Not a participant of this conversation"}`, http.StatusForbidden)
		return nil, false
	}

	return conv, true
}

func (h *ConversationHandler) latestPage(ctx context.Context, conversationID string) (*MessagesPage, error) {
	msgs, err := h.messages.Latest(ctx, conversationID, conversation.PageSize)
	if err != nil {
		return nil, err
	}

	page := &MessagesPage{Messages: msgs}
	if len(msgs) > 0 {
		count, err := h.messages.CountBefore(ctx, conversationID, msgs[0].CreatedAt)
		if err != nil {
			return nil, err
		}
		page.HasOlder = count > 0
	}
	return page, nil
}

func (h *ConversationHandler) pageBefore(ctx context.Context, conversationID string, boundary time.Time) (*MessagesPage, error) {
	msgs, err := h.messages.ListBefore(ctx, conversationID, boundary, conversation.PageSize)
	if err != nil {
		return nil, err
	}

	page := &MessagesPage{Messages: msgs, HasNewer: true}
	edge := boundary
	if len(msgs) > 0 {
		edge = msgs[0].CreatedAt
	}
	count, err := h.messages.CountBefore(ctx, conversationID, edge)
	if err != nil {
		return nil, err
	}
	page.HasOlder = count > 0
	return page, nil
}

func (h *ConversationHandler) pageAfter(ctx context.Context, conversationID string, boundary time.Time) (*MessagesPage, error) {
	msgs, err := h.messages.ListAfter(ctx, conversationID, boundary, conversation.PageSize)
	if err != nil {
		return nil, err
	}

	page := &MessagesPage{Messages: msgs, HasOlder: true}
	edge := boundary
	if len(msgs) > 0 {
		edge = msgs[len(msgs)-1].CreatedAt
	}
	count, err := h.messages.CountAfter(ctx, conversationID, edge)
	if err != nil {
		return nil, err
	}
	page.HasNewer = count > 0
	return page, nil
}

// writeDomainError maps pipeline rejections onto HTTP status codes
func writeDomainError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case errors.Is(err, domain.ErrRateLimited):
		w.WriteHeader(http.StatusTooManyRequests)
	case errors.Is(err, domain.ErrNotParticipant):
		w.WriteHeader(http.StatusForbidden)
	case domain.IsValidation(err):
		w.WriteHeader(http.StatusBadRequest)
	case domain.IsStoreError(err):
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Failed to store message"})
		return
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
