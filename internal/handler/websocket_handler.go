package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"yamo-chat/internal/domain"
	"yamo-chat/internal/middleware"
	ws "yamo-chat/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades conversation connections and hands them to the hub
type WebSocketHandler struct {
	hub           *ws.Hub
	conversations domain.ConversationRepository
	typing        domain.TypingFeed
	upgrader      websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. allowedOrigins of
// []string{"*"} accepts every origin.
func NewWebSocketHandler(hub *ws.Hub, conversations domain.ConversationRepository,
	typing domain.TypingFeed, allowedOrigins []string) *WebSocketHandler {

	originAllowed := func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}

	return &WebSocketHandler{
		hub:           hub,
		conversations: conversations,
		typing:        typing,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originAllowed,
		},
	}
}

// HandleConnection handles WebSocket upgrade and connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	conversationID := chi.URLParam(r, "id")
	if conversationID == "" {
		http.Error(w, `{"error":"Conversation ID required"}`, http.StatusBadRequest)
		return
	}

	conv, err := h.conversations.GetByID(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			http.Error(w, `{"error":"Conversation not found"}`, http.StatusNotFound)
		} else {
			http.Error(w, `{"error":"Failed to retrieve conversation"}`, http.StatusInternalServerError)
		}
		return
	}

	if !conv.HasParticipant(identity.UserID) {
		http.Error(w, `{"error":"Not a participant of this conversation"}`, http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("user_id", identity.UserID))
		return
	}

	client := ws.NewClient(h.hub, conn, identity, conversationID, h.typing)
	h.hub.Register(client)

	// Pumps outlive the upgrade request
	ctx := context.WithoutCancel(r.Context())
	go client.WritePump(ctx)
	go client.ReadPump(ctx)
}
