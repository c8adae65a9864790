// Package job implements JobManager: a per-agent priority queue drained by a
// single worker goroutine that delegates each job to a FunctionRegistry.
package job

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kolosalai/kolosal-agentd/core"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Executor runs a named function with parameters, matching
// function.Registry.Execute's shape without importing function (job has no
// need of function's builtin set, only its Execute contract).
type Executor interface {
	Execute(ctx context.Context, name string, params core.AgentData) (ExecuteResult, error)
}

// ExecuteResult mirrors function.Result's shape.
type ExecuteResult struct {
	Success         bool
	Output          core.AgentData
	Error           string
	ExecutionTimeMs int64
}

// Job is one unit of work submitted to the manager.
type Job struct {
	ID          string
	Name        string
	Params      core.AgentData
	Priority    int
	Requester   string
	Status      Status
	Result      *ExecuteResult
	Error       string
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time

	seq int64 // insertion order, for FIFO tie-break within a priority level
}

// pqItem is the heap element: higher Priority first, lower seq first on ties.
type pqItem struct {
	job   *Job
	index int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].job.Priority != pq[j].job.Priority {
		return pq[i].job.Priority > pq[j].job.Priority
	}
	return pq[i].job.seq < pq[j].job.seq
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x interface{}) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// Manager owns the priority queue and a single worker goroutine. The worker
// never holds mu while invoking the executor.
type Manager struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    priorityQueue
	jobs     map[string]*Job
	nextSeq  int64
	executor Executor
	logger   core.Logger

	shutdown bool
	stopped  chan struct{}

	queueDepthWarning int // 0 disables the high-water-mark warning
	warnedAt          int
}

// New constructs a JobManager and starts its worker goroutine.
func New(executor Executor, logger core.Logger) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	m := &Manager{
		jobs:     make(map[string]*Job),
		executor: executor,
		logger:   logger,
		stopped:  make(chan struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	go m.workerLoop()
	return m
}

// SetQueueDepthWarning sets the pending-job count past which SubmitJob logs a
// warning. JobManager has no admission-control contract to reject work
// against, so this is advisory only: jobs are still queued and run in
// priority order regardless of depth.
func (m *Manager) SetQueueDepthWarning(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepthWarning = depth
}

// SubmitJob enqueues a job and returns its UUID.
func (m *Manager) SubmitJob(name string, params core.AgentData, priority int, requester string) string {
	id := uuid.NewString()
	j := &Job{
		ID:          id,
		Name:        name,
		Params:      params,
		Priority:    priority,
		Requester:   requester,
		Status:      StatusPending,
		SubmittedAt: time.Now(),
	}

	m.mu.Lock()
	j.seq = m.nextSeq
	m.nextSeq++
	m.jobs[id] = j
	heap.Push(&m.queue, &pqItem{job: j})
	depth := m.queue.Len()
	warnAt := m.queueDepthWarning
	shouldWarn := warnAt > 0 && depth > warnAt && m.warnedAt != warnAt
	if shouldWarn {
		m.warnedAt = warnAt
	} else if depth <= warnAt {
		m.warnedAt = 0
	}
	m.mu.Unlock()

	if shouldWarn {
		m.logger.Warn("job queue depth exceeds configured high-water mark", map[string]interface{}{
			"depth":     depth,
			"threshold": warnAt,
		})
	}
	if reg := core.GetGlobalMetricsRegistry(); reg != nil {
		reg.Counter("job.submitted", "function", name)
		reg.Gauge("job.queue.depth", float64(depth))
	}

	m.cond.Signal()
	return id
}

// GetJobStatus returns a job's current status.
func (m *Manager) GetJobStatus(id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return "", &core.FrameworkError{Op: "job.GetJobStatus", Kind: core.KindNotFound, ID: id, Err: core.ErrJobNotFound}
	}
	return j.Status, nil
}

// GetJobResult returns the stored result, if the job has finished.
func (m *Manager) GetJobResult(id string) (*ExecuteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, &core.FrameworkError{Op: "job.GetJobResult", Kind: core.KindNotFound, ID: id, Err: core.ErrJobNotFound}
	}
	return j.Result, nil
}

// CancelJob marks a pending job cancelled; no-op error if it already started.
func (m *Manager) CancelJob(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return &core.FrameworkError{Op: "job.CancelJob", Kind: core.KindNotFound, ID: id, Err: core.ErrJobNotFound}
	}
	if j.Status != StatusPending {
		return &core.FrameworkError{Op: "job.CancelJob", Kind: core.KindConflict, ID: id, Err: core.ErrInvalidConfiguration}
	}
	j.Status = StatusCancelled
	j.FinishedAt = time.Now()
	return nil
}

// workerLoop waits for a non-empty queue (or shutdown), pops the highest
// priority job, and delegates to the executor without holding mu.
func (m *Manager) workerLoop() {
	defer close(m.stopped)
	for {
		m.mu.Lock()
		for m.queue.Len() == 0 && !m.shutdown {
			m.cond.Wait()
		}
		if m.shutdown && m.queue.Len() == 0 {
			m.mu.Unlock()
			return
		}
		item := heap.Pop(&m.queue).(*pqItem)
		j := item.job
		if j.Status == StatusCancelled {
			m.mu.Unlock()
			continue
		}
		j.Status = StatusRunning
		j.StartedAt = time.Now()
		m.mu.Unlock()

		result, err := m.executor.Execute(context.Background(), j.Name, j.Params)

		m.mu.Lock()
		j.FinishedAt = time.Now()
		if err != nil {
			j.Status = StatusFailed
			j.Error = err.Error()
		} else {
			j.Result = &result
			if result.Success {
				j.Status = StatusCompleted
			} else {
				j.Status = StatusFailed
				j.Error = result.Error
			}
		}
		m.mu.Unlock()
	}
}

// Shutdown stops the worker after draining the current queue, and joins it.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
	m.cond.Broadcast()
	<-m.stopped
}
