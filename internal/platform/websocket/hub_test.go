package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func TestHub_RegisterClient(t *testing.T) {
	hub := newTestHub()
	client := &Client{
		ID:     "client-1",
		Topics: []string{"user:abc"},
		Send:   make(chan []byte, 256),
	}

	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount("user:abc") != 1 {
		t.Fatalf("expected 1 client on user:abc, got %d", hub.TopicCount("user:abc"))
	}
}

func TestHub_UnregisterClient(t *testing.T) {
	hub := newTestHub()
	client := &Client{
		ID:     "client-2",
		Topics: []string{"user:abc"},
		Send:   make(chan []byte, 256),
	}

	hub.Register(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.TopicCount("user:abc") != 0 {
		t.Fatalf("expected 0 clients on user:abc, got %d", hub.TopicCount("user:abc"))
	}

	// Unregistering twice is a no-op.
	hub.Unregister(client)
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := newTestHub()

	subscriber := &Client{
		ID:     "sub-1",
		Topics: []string{"user:abc"},
		Send:   make(chan []byte, 256),
	}
	nonSubscriber := &Client{
		ID:     "non-sub-1",
		Topics: []string{"user:other"},
		Send:   make(chan []byte, 256),
	}

	hub.Register(subscriber)
	hub.Register(nonSubscriber)

	event := Event{
		Type:      "share_request.created",
		Topic:     "user:abc",
		Timestamp: time.Now(),
	}
	hub.Broadcast("user:abc", event)

	select {
	case data := <-subscriber.Send:
		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if got.Type != "share_request.created" {
			t.Errorf("expected share_request.created, got %q", got.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-nonSubscriber.Send:
		t.Fatal("non-subscriber received event")
	default:
	}
}

func TestHub_BroadcastSkipsFullBuffer(t *testing.T) {
	hub := newTestHub()
	client := &Client{
		ID:     "full-1",
		Topics: []string{"user:abc"},
		Send:   make(chan []byte), // unbuffered, nothing reading
	}
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		hub.Broadcast("user:abc", Event{Type: "x", Topic: "user:abc"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on full client buffer")
	}
}

func TestHub_Publish(t *testing.T) {
	hub := newTestHub()
	client := &Client{
		ID:     "pub-1",
		Topics: []string{"user:abc"},
		Send:   make(chan []byte, 1),
	}
	hub.Register(client)

	if err := hub.Publish(context.Background(), Event{Type: "notification", Topic: "user:abc"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-client.Send:
	case <-time.After(time.Second):
		t.Fatal("Publish did not deliver to topic subscriber")
	}
}

func TestUserTopic(t *testing.T) {
	id := uuid.New()
	want := "user:" + id.String()
	if got := UserTopic(id); got != want {
		t.Errorf("UserTopic() = %q, want %q", got, want)
	}
}
