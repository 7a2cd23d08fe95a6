package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"yamo-chat/internal/conversation"
	"yamo-chat/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub *Hub

	conn *websocket.Conn

	// Buffered channel of outbound payloads
	send chan []byte

	identity domain.Identity

	conversationID string

	// Typing signals from the socket are routed through the announcer so
	// that debounce and stop semantics match the rest of the pipeline.
	announcer *conversation.TypingAnnouncer

	// Protects writes to the connection
	writeMu sync.Mutex

	// Tracks if the connection is closed
	closed atomic.Bool
}

// ClientMessage is what the browser sends over the socket. Message sends
// go over HTTP; the socket only carries typing activity upstream.
type ClientMessage struct {
	Type string `json:"type"`
}

// ServerMessage is what the server pushes to connected clients
type ServerMessage struct {
	Type        string          `json:"type"`
	Message     *domain.Message `json:"message,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	DisplayName string          `json:"display_name,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// NewClient creates a new websocket client
func NewClient(hub *Hub, conn *websocket.Conn, identity domain.Identity, conversationID string, typing domain.TypingFeed) *Client {
	return &Client{
		hub:            hub,
		conn:           conn,
		send:           make(chan []byte, 256),
		identity:       identity,
		conversationID: conversationID,
		announcer:      conversation.NewTypingAnnouncer(typing, conversationID, identity),
	}
}

// ReadPump pumps messages from the websocket connection to the hub
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.announcer.Stop(context.WithoutCancel(ctx))
		c.hub.Unregister(c)
		c.closeConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Error("failed to set read deadline", slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Error("websocket read error",
					slog.String("error", err.Error()),
					slog.String("user_id", c.identity.UserID))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("invalid client payload",
				slog.String("error", err.Error()),
				slog.String("user_id", c.identity.UserID))
			continue
		}

		switch msg.Type {
		case "typing":
			c.announcer.Keystroke(ctx)
		case "typing_stopped":
			c.announcer.Stop(ctx)
		default:
			slog.Warn("unknown client payload type",
				slog.String("type", msg.Type),
				slog.String("user_id", c.identity.UserID))
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case <-ctx.Done():
			c.writeControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case payload, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				c.writeControl(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeMessage(websocket.TextMessage, payload); err != nil {
				slog.Error("websocket write error",
					slog.String("error", err.Error()),
					slog.String("user_id", c.identity.UserID))
				return
			}

		case <-ticker.C:
			if err := c.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *Client) writeControl(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	return c.conn.WriteControl(messageType, data, time.Now().Add(writeWait))
}

func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		if err := c.conn.Close(); err != nil {
			slog.Debug("error closing websocket connection", slog.String("error", err.Error()))
		}
	}
}
