package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
)

// recordingExecutor blocks the worker on a gate until released, then
// appends the job name to the order slice, letting the test control
// interleaving so all three jobs are queued before the worker drains any.
type recordingExecutor struct {
	mu    sync.Mutex
	order []string
	gate  chan struct{}
}

func (e *recordingExecutor) Execute(ctx context.Context, name string, params core.AgentData) (ExecuteResult, error) {
	<-e.gate
	e.mu.Lock()
	e.order = append(e.order, name)
	e.mu.Unlock()
	return ExecuteResult{Success: true, Output: core.NewAgentData()}, nil
}

func TestPriorityOrderingWithFIFOTiebreak(t *testing.T) {
	exec := &recordingExecutor{gate: make(chan struct{})}
	close(exec.gate) // every Execute call returns immediately

	// Build the manager without starting its worker goroutine yet, so all
	// three jobs land in the queue before anything is popped — matching the
	// scenario's premise that all three are already queued together.
	m := &Manager{jobs: make(map[string]*Job), executor: exec, logger: &core.NoOpLogger{}, stopped: make(chan struct{})}
	m.cond = sync.NewCond(&m.mu)

	idA := m.SubmitJob("A", core.NewAgentData(), 0, "tester")
	idB := m.SubmitJob("B", core.NewAgentData(), 5, "tester")
	idC := m.SubmitJob("C", core.NewAgentData(), 5, "tester")

	go m.workerLoop()
	defer m.Shutdown()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec.mu.Lock()
		n := len(exec.order)
		exec.mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	exec.mu.Lock()
	got := append([]string(nil), exec.order...)
	exec.mu.Unlock()

	want := []string{"B", "C", "A"}
	if len(got) != 3 {
		t.Fatalf("expected 3 completions, got %v", got)
	}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}

	for _, id := range []string{idA, idB, idC} {
		st, err := m.GetJobStatus(id)
		if err != nil {
			t.Fatalf("GetJobStatus(%s): %v", id, err)
		}
		if st != StatusCompleted {
			t.Fatalf("expected %s completed, got %s", id, st)
		}
	}
}

func TestCancelJobOnlyWhilePending(t *testing.T) {
	exec := &recordingExecutor{gate: make(chan struct{})}
	m := New(exec, &core.NoOpLogger{})
	defer func() {
		close(exec.gate)
		m.Shutdown()
	}()

	id := m.SubmitJob("blocked", core.NewAgentData(), 0, "tester")
	// Submit a second job so the worker is occupied with the first pop,
	// leaving "blocked2" pending and cancellable.
	id2 := m.SubmitJob("blocked2", core.NewAgentData(), 0, "tester")

	time.Sleep(20 * time.Millisecond)
	if err := m.CancelJob(id2); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	st, _ := m.GetJobStatus(id2)
	if st != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", st)
	}
	if err := m.CancelJob(id); err == nil {
		t.Fatal("expected CancelJob to fail for a job that is already running")
	}
}

func TestGetJobStatusUnknownID(t *testing.T) {
	exec := &recordingExecutor{gate: make(chan struct{})}
	m := New(exec, &core.NoOpLogger{})
	defer func() {
		close(exec.gate)
		m.Shutdown()
	}()
	if _, err := m.GetJobStatus("nope"); err == nil {
		t.Fatal("expected error for unknown job id")
	}
}
