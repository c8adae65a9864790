package agent

import (
	"context"
	"testing"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/message"
)

func TestExecuteFunctionSyncBuiltin(t *testing.T) {
	c := New("tester", "worker", nil, &core.NoOpLogger{})
	c.Registry().RegisterBuiltins()

	params := core.NewAgentData()
	params["a"] = core.IntValue(2)
	params["b"] = core.IntValue(3)
	result, err := c.ExecuteFunction(context.Background(), "add", params)
	if err != nil {
		t.Fatalf("ExecuteFunction: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	sum, _ := result.Output["sum"].Int()
	if sum != 5 {
		t.Fatalf("expected sum=5, got %d", sum)
	}
}

func TestExecuteFunctionAsyncReturnsJobID(t *testing.T) {
	c := New("tester", "worker", nil, &core.NoOpLogger{})
	c.Registry().RegisterBuiltins()

	jobID := c.ExecuteFunctionAsync("echo", core.NewAgentData(), 0, "tester")
	if jobID == "" {
		t.Fatal("expected non-empty job id")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		status, err := c.JobStatus(jobID)
		if err != nil {
			t.Fatalf("JobStatus: %v", err)
		}
		if status == "completed" || status == "failed" {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("job did not finish in time")
}

func TestStartStopIdempotent(t *testing.T) {
	c := New("tester", "worker", nil, &core.NoOpLogger{})
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op, got %v", err)
	}
}

func TestHandleMessagePing(t *testing.T) {
	router := message.New(8, &core.NoOpLogger{})
	defer router.Shutdown()

	a := New("a", "worker", nil, &core.NoOpLogger{})
	b := New("b", "worker", nil, &core.NoOpLogger{})
	a.SetRouter(router)
	b.SetRouter(router)

	got := make(chan message.Message, 1)
	router.Subscribe(b.ID, func(msg message.Message) {
		if msg.Type == "pong" {
			got <- msg
		}
	})

	if err := b.SendMessage(a.ID, "ping", core.NewAgentData()); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	select {
	case msg := <-got:
		if msg.From != a.ID {
			t.Fatalf("expected pong from %s, got %s", a.ID, msg.From)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pong")
	}
}
