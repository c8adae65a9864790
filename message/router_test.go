package message

import (
	"sync"
	"testing"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
)

func TestRouteMessageDeliversToRecipient(t *testing.T) {
	r := New(16, &core.NoOpLogger{})
	defer r.Shutdown()

	received := make(chan Message, 1)
	r.Subscribe("agentB", func(msg Message) { received <- msg })

	r.RouteMessage(Message{From: "agentA", To: "agentB", Type: "ping"})

	select {
	case msg := <-received:
		if msg.Type != "ping" {
			t.Fatalf("expected ping, got %s", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestRouteMessageDropsUnknownRecipient(t *testing.T) {
	r := New(16, &core.NoOpLogger{})
	defer r.Shutdown()
	if err := r.RouteMessage(Message{From: "a", To: "nobody", Type: "ping"}); err != nil {
		t.Fatalf("RouteMessage should not error on unknown recipient: %v", err)
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := New(16, &core.NoOpLogger{})
	defer r.Shutdown()

	var mu sync.Mutex
	got := make(map[string]bool)
	done := make(chan struct{}, 3)

	for _, id := range []string{"a", "b", "c"} {
		id := id
		r.Subscribe(id, func(msg Message) {
			mu.Lock()
			got[msg.To] = true
			mu.Unlock()
			done <- struct{}{}
		})
	}

	r.BroadcastMessage(Message{From: "a", Type: "greeting"})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("broadcast did not reach all recipients")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got["a"] {
		t.Fatal("sender should not receive its own broadcast")
	}
	if !got["b"] || !got["c"] {
		t.Fatalf("expected b and c to receive broadcast, got %v", got)
	}
}
