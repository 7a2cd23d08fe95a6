package websocket

import (
	"context"
	"testing"
	"time"

	"yamo-chat/internal/domain"
)

func testClient(hub *Hub, userID, conversationID string) *Client {
	return &Client{
		hub:            hub,
		send:           make(chan []byte, 256),
		identity:       domain.Identity{UserID: userID, DisplayName: userID},
		conversationID: conversationID,
	}
}

func receive(ch <-chan []byte, timeout time.Duration) ([]byte, error) {
	select {
	case msg := <-ch:
		return msg, nil
	case <-time.After(timeout):
		return nil, context.DeadlineExceeded
	}
}

func TestHub_NewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}

	if hub.clients == nil {
		t.Error("Expected clients map to be initialized")
	}

	if hub.broadcast == nil {
		t.Error("Expected broadcast channel to be initialized")
	}

	if hub.register == nil {
		t.Error("Expected register channel to be initialized")
	}

	if hub.unregister == nil {
		t.Error("Expected unregister channel to be initialized")
	}

	if hub.done == nil {
		t.Error("Expected done channel to be initialized")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())

	errChan := make(chan error, 1)
	go func() {
		errChan <- hub.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	cancel()

	select {
	case err := <-errChan:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Hub did not stop within timeout")
	}
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = hub.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	client := testClient(hub, "user-a", "conv-1")
	hub.Register(client)

	time.Sleep(100 * time.Millisecond)

	hub.Broadcast("conv-1", "message_created", []byte("test"))

	msg, err := receive(client.send, 200*time.Millisecond)
	if err != nil {
		t.Fatal("Client did not receive broadcast, likely not registered")
	}
	if string(msg) != "test" {
		t.Errorf("Expected 'test', got %s", string(msg))
	}
}

func TestHub_BroadcastIsScopedToConversation(t *testing.T) {
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = hub.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	client1 := testClient(hub, "user-a", "conv-1")
	client2 := testClient(hub, "user-b", "conv-2")

	hub.Register(client1)
	hub.Register(client2)

	time.Sleep(100 * time.Millisecond)

	hub.Broadcast("conv-1", "message_created", []byte("for conv-1"))

	msg, err := receive(client1.send, 200*time.Millisecond)
	if err != nil {
		t.Fatal("Client1 did not receive message")
	}
	if string(msg) != "for conv-1" {
		t.Errorf("Expected 'for conv-1', got %s", string(msg))
	}

	select {
	case msg := <-client2.send:
		t.Errorf("Client2 should not receive messages from conv-1, got: %s", string(msg))
	case <-time.After(100 * time.Millisecond):
		// Expected
	}
}

func TestHub_BroadcastReachesAllClientsInConversation(t *testing.T) {
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = hub.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	client1 := testClient(hub, "user-a", "conv-1")
	client2 := testClient(hub, "user-b", "conv-1")

	hub.Register(client1)
	hub.Register(client2)

	time.Sleep(100 * time.Millisecond)

	hub.Broadcast("conv-1", "message_created", []byte("hello both"))

	for i, client := range []*Client{client1, client2} {
		msg, err := receive(client.send, 200*time.Millisecond)
		if err != nil {
			t.Fatalf("Client%d did not receive broadcast", i+1)
		}
		if string(msg) != "hello both" {
			t.Errorf("Client%d: expected 'hello both', got %s", i+1, string(msg))
		}
	}
}

func TestHub_UnregisterClient(t *testing.T) {
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = hub.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	client := testClient(hub, "user-a", "conv-1")

	hub.Register(client)
	time.Sleep(50 * time.Millisecond)

	hub.Unregister(client)
	time.Sleep(100 * time.Millisecond)

	select {
	case msg, ok := <-client.send:
		if ok {
			t.Errorf("Expected send channel to be closed, but received message: %s", string(msg))
		}
	case <-time.After(100 * time.Millisecond):
		// Channel not ready yet, acceptable as long as no new messages arrive
	}

	hub.Broadcast("conv-1", "message_created", []byte("after unregister"))
	time.Sleep(50 * time.Millisecond)

	select {
	case msg, ok := <-client.send:
		if ok {
			t.Errorf("Unexpected message after unregister: %s", string(msg))
		}
	default:
	}
}

func TestHub_DoubleUnregister(t *testing.T) {
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = hub.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	client := testClient(hub, "user-a", "conv-1")

	hub.Register(client)
	time.Sleep(50 * time.Millisecond)

	// Unregister twice - should not panic
	hub.Unregister(client)
	time.Sleep(50 * time.Millisecond)

	hub.Unregister(client)
	time.Sleep(50 * time.Millisecond)
}

func TestHub_GracefulShutdown(t *testing.T) {
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		_ = hub.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	clients := make([]*Client, 5)
	for i := range clients {
		clients[i] = testClient(hub, "user", "conv-1")
		hub.Register(clients[i])
	}

	time.Sleep(100 * time.Millisecond)

	cancel()

	time.Sleep(200 * time.Millisecond)

	for _, client := range clients {
		select {
		case _, ok := <-client.send:
			if ok {
				// Shutdown may still be draining, acceptable
			}
		default:
		}
	}
}
