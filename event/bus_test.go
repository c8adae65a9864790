package event

import (
	"testing"

	"github.com/kolosalai/kolosal-agentd/core"
)

func TestEmitDispatchesToAllHandlers(t *testing.T) {
	b := New(&core.NoOpLogger{})
	var calls []string
	b.Subscribe("greeting", func(eventType, source string, data core.AgentData) {
		calls = append(calls, "first")
	})
	b.Subscribe("greeting", func(eventType, source string, data core.AgentData) {
		calls = append(calls, "second")
	})

	b.Emit("greeting", "agentA", core.NewAgentData())

	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
}

func TestEmitRecoversFromPanickingHandler(t *testing.T) {
	b := New(&core.NoOpLogger{})
	called := false
	b.Subscribe("x", func(eventType, source string, data core.AgentData) {
		panic("boom")
	})
	b.Subscribe("x", func(eventType, source string, data core.AgentData) {
		called = true
	})

	b.Emit("x", "src", core.NewAgentData())

	if !called {
		t.Fatal("expected second handler to still run after first panicked")
	}
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	b := New(&core.NoOpLogger{})
	calls := 0
	id := b.Subscribe("x", func(eventType, source string, data core.AgentData) { calls++ })
	b.Emit("x", "src", core.NewAgentData())
	b.Unsubscribe("x", id)
	b.Emit("x", "src", core.NewAgentData())

	if calls != 1 {
		t.Fatalf("expected 1 call after unsubscribe, got %d", calls)
	}
}

func TestStopGatesEmission(t *testing.T) {
	b := New(&core.NoOpLogger{})
	calls := 0
	b.Subscribe("x", func(eventType, source string, data core.AgentData) { calls++ })
	b.Stop()
	b.Emit("x", "src", core.NewAgentData())
	if calls != 0 {
		t.Fatal("expected no dispatch while stopped")
	}
	b.Start()
	b.Emit("x", "src", core.NewAgentData())
	if calls != 1 {
		t.Fatal("expected dispatch to resume after Start")
	}
}
