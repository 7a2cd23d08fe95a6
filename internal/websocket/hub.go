package websocket

import (
	"context"
	"log/slog"

	"yamo-chat/internal/observability"
)

// BroadcastMessage represents a payload to be broadcast to one conversation
type BroadcastMessage struct {
	ConversationID string
	Kind           string
	Payload        []byte
}

// Hub maintains active clients and fans payloads out per conversation
type Hub struct {
	// Registered clients by conversation
	clients map[string]map[*Client]bool

	// Broadcast channel
	broadcast chan *BroadcastMessage

	// Register client
	register chan *Client

	// Unregister client
	unregister chan *Client

	// Shutdown signal
	done chan struct{}
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan *BroadcastMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			if h.clients[client.conversationID] == nil {
				h.clients[client.conversationID] = make(map[*Client]bool)
			}
			h.clients[client.conversationID][client] = true
			observability.WebSocketConnectionsActive.WithLabelValues(client.conversationID).Inc()
			slog.Info("client registered",
				slog.String("user_id", client.identity.UserID),
				slog.String("conversation_id", client.conversationID))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			if clients, ok := h.clients[message.ConversationID]; ok {
				for client := range clients {
					select {
					case client.send <- message.Payload:
						observability.WebSocketMessagesSent.WithLabelValues(message.ConversationID, message.Kind).Inc()
					default:
						// Client's send buffer is full, close connection
						h.closeClientSend(client)
						delete(clients, client)
					}
				}
			}
		}
	}
}

// unregisterClient safely removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	if clients, ok := h.clients[client.conversationID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			h.closeClientSend(client)
			observability.WebSocketConnectionsActive.WithLabelValues(client.conversationID).Dec()
			slog.Info("client unregistered",
				slog.String("user_id", client.identity.UserID),
				slog.String("conversation_id", client.conversationID))

			// Clean up empty conversation
			if len(clients) == 0 {
				delete(h.clients, client.conversationID)
			}
		}
	}
}

// closeClientSend safely closes a client's send channel
func (h *Hub) closeClientSend(client *Client) {
	select {
	case <-client.send:
		// Channel already closed
	default:
		close(client.send)
	}
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for conversationID, clients := range h.clients {
		for client := range clients {
			h.closeClientSend(client)
			slog.Info("closed client connection",
				slog.String("user_id", client.identity.UserID),
				slog.String("conversation_id", conversationID))
		}
	}

	slog.Info("hub shutdown complete")
}

// Broadcast sends a payload to all clients of a conversation
func (h *Hub) Broadcast(conversationID, kind string, payload []byte) {
	h.broadcast <- &BroadcastMessage{
		ConversationID: conversationID,
		Kind:           kind,
		Payload:        payload,
	}
}

// Register registers a client with the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
