// Package download implements concurrent, resumable model downloads with
// progress reporting and optional post-download engine creation.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kolosalai/kolosal-agentd/core"
)

// Status is the lifecycle state of a download.
type Status string

const (
	StatusDownloading       Status = "downloading"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
	StatusCreatingEngine    Status = "creating_engine"
	StatusEngineCreated     Status = "engine_created"
	StatusEngineCreateError Status = "engine_creation_failed"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusEngineCreated, StatusEngineCreateError:
		return true
	default:
		return false
	}
}

// EngineParams is the opaque engine-creation spec carried by a download that
// should create an engine once the file lands on disk.
type EngineParams struct {
	EngineID   string
	LoadParams core.AgentData
	MainGPUID  int
}

// Progress is a point-in-time snapshot of a download. Percentage is
// recomputed from Downloaded/Total on every read; Cancelled mirrors the
// task's cancellation state for lock-free reads from HTTP handlers.
type Progress struct {
	ModelID         string       `json:"model_id"`
	URL             string       `json:"url"`
	LocalPath       string       `json:"local_path"`
	TotalBytes      int64        `json:"total_bytes"`
	DownloadedBytes int64        `json:"downloaded_bytes"`
	Percentage      float64      `json:"percentage"`
	Status          Status       `json:"status"`
	Error           string       `json:"error,omitempty"`
	StartTime       time.Time    `json:"start_time"`
	EndTime         time.Time    `json:"end_time,omitempty"`
	EngineParams    *EngineParams `json:"-"`
	Cancelled       atomic.Bool  `json:"-"`
}

func (p *Progress) snapshot() Progress {
	return Progress{
		ModelID:         p.ModelID,
		URL:             p.URL,
		LocalPath:       p.LocalPath,
		TotalBytes:      p.TotalBytes,
		DownloadedBytes: p.DownloadedBytes,
		Percentage:      p.Percentage,
		Status:          p.Status,
		Error:           p.Error,
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
	}
}

// EngineCreator is the callback invoked once a download with EngineParams
// set finishes: NodeManager implements this to bridge download completion
// into engine loading without download importing node (avoiding a cycle).
type EngineCreator func(ctx context.Context, localPath string, params *EngineParams) error

type entry struct {
	progress *Progress
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex // guards Progress field mutation
}

// Manager tracks one Progress per modelId plus the background task
// driving it.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  core.Logger
	client  *http.Client

	onEngineNeeded EngineCreator
}

// New constructs a download manager. onEngineNeeded may be nil if the
// caller never starts downloads with EngineParams set.
func New(logger core.Logger, onEngineNeeded EngineCreator) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Manager{
		entries:        make(map[string]*entry),
		logger:         logger,
		client:         &http.Client{Timeout: 0}, // streamed; no overall timeout, only context cancellation
		onEngineNeeded: onEngineNeeded,
	}
}

// StartDownload begins downloading url to localPath under modelId. Returns
// false if a (non-terminal or terminal-but-uncleaned) entry already exists
// for modelId. The download task owns its own lifetime; use CancelDownload
// or WaitForAllDownloads to stop it.
func (m *Manager) StartDownload(modelID, url, localPath string, engineParams *EngineParams) bool {
	m.mu.Lock()
	if _, exists := m.entries[modelID]; exists {
		m.mu.Unlock()
		return false
	}
	taskCtx, cancel := context.WithCancel(context.Background())
	p := &Progress{
		ModelID:      modelID,
		URL:          url,
		LocalPath:    localPath,
		Status:       StatusDownloading,
		StartTime:    time.Now(),
		EngineParams: engineParams,
	}
	e := &entry{progress: p, cancel: cancel, done: make(chan struct{})}
	m.entries[modelID] = e
	m.mu.Unlock()

	go m.runDownload(taskCtx, e)
	return true
}

func (m *Manager) runDownload(ctx context.Context, e *entry) {
	defer close(e.done)
	defer func() {
		if reg := core.GetGlobalMetricsRegistry(); reg != nil {
			e.mu.Lock()
			status := string(e.progress.Status)
			bytes := e.progress.DownloadedBytes
			e.mu.Unlock()
			reg.Counter("download.finished", "status", status)
			reg.Histogram("download.bytes", float64(bytes), "status", status)
		}
	}()

	if err := m.download(ctx, e); err != nil {
		e.mu.Lock()
		if e.progress.Cancelled.Load() {
			e.progress.Status = StatusCancelled
		} else {
			e.progress.Status = StatusFailed
			e.progress.Error = err.Error()
		}
		e.progress.EndTime = time.Now()
		e.mu.Unlock()
		m.logger.Warn("download failed", map[string]interface{}{"model_id": e.progress.ModelID, "error": err.Error()})
		return
	}

	e.mu.Lock()
	e.progress.Status = StatusCompleted
	e.progress.EndTime = time.Now()
	params := e.progress.EngineParams
	localPath := e.progress.LocalPath
	e.mu.Unlock()

	if params == nil {
		return
	}

	e.mu.Lock()
	e.progress.Status = StatusCreatingEngine
	e.mu.Unlock()

	if m.onEngineNeeded == nil {
		e.mu.Lock()
		e.progress.Status = StatusEngineCreateError
		e.progress.Error = "no engine creator configured"
		e.mu.Unlock()
		return
	}

	if err := m.onEngineNeeded(ctx, localPath, params); err != nil {
		e.mu.Lock()
		e.progress.Status = StatusEngineCreateError
		e.progress.Error = err.Error()
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	e.progress.Status = StatusEngineCreated
	e.mu.Unlock()
}

// download streams url into localPath, resuming from an existing partial
// file with a Range request; when the server does not answer 206 the file
// is rewritten from zero.
func (m *Manager) download(ctx context.Context, e *entry) error {
	if err := os.MkdirAll(filepath.Dir(e.progress.LocalPath), 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}

	if fi, err := os.Stat(e.progress.LocalPath); err == nil && fi.Size() > 0 {
		if complete, total, ok := m.isAlreadyComplete(ctx, e.progress.URL, fi.Size()); ok && complete {
			e.mu.Lock()
			e.progress.TotalBytes = total
			e.progress.DownloadedBytes = total
			e.progress.Percentage = 100
			e.mu.Unlock()
			return nil
		}
	}

	op := func() (struct{}, error) {
		err := m.attemptDownload(ctx, e)
		if err != nil && e.progress.Cancelled.Load() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(4),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
	return err
}

// isAlreadyComplete issues a HEAD probe and compares against the local file
// size so a prior, fully-downloaded file short-circuits without re-fetching.
func (m *Manager) isAlreadyComplete(ctx context.Context, url string, localSize int64) (complete bool, total int64, ok bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, 0, false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false, 0, false
	}
	defer resp.Body.Close()
	if resp.ContentLength <= 0 {
		return false, 0, false
	}
	return resp.ContentLength == localSize, resp.ContentLength, true
}

func (m *Manager) attemptDownload(ctx context.Context, e *entry) error {
	var resumeFrom int64
	if fi, err := os.Stat(e.progress.LocalPath); err == nil {
		resumeFrom = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.progress.URL, nil)
	if err != nil {
		return err
	}
	resumed := false
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
		resumed = true
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resumed && resp.StatusCode != http.StatusPartialContent {
		// Server did not honor the range request (corrupt/stale partial); restart from zero.
		resumeFrom = 0
		resumed = false
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("%w: server returned %d", core.ErrDownloadFailed, resp.StatusCode)
	}

	total := resp.ContentLength
	if resumed {
		total += resumeFrom
	}
	e.mu.Lock()
	e.progress.TotalBytes = total
	if !resumed {
		e.progress.DownloadedBytes = 0
	} else {
		e.progress.DownloadedBytes = resumeFrom
	}
	e.mu.Unlock()

	flags := os.O_CREATE | os.O_WRONLY
	if resumed {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(e.progress.LocalPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	defer f.Close()

	pr := &progressReader{
		r: resp.Body,
		onRead: func(n int64) {
			e.mu.Lock()
			e.progress.DownloadedBytes += n
			if e.progress.TotalBytes > 0 {
				e.progress.Percentage = 100 * float64(e.progress.DownloadedBytes) / float64(e.progress.TotalBytes)
			}
			e.mu.Unlock()
		},
		cancelled: &e.progress.Cancelled,
	}

	_, err = io.Copy(f, pr)
	if err != nil {
		return err
	}
	if e.progress.Cancelled.Load() {
		return context.Canceled
	}
	return nil
}

// progressReader wraps an io.Reader, invoking onRead with the byte count of
// every successful Read, and aborting between chunks when cancelled flips.
type progressReader struct {
	r         io.Reader
	onRead    func(n int64)
	cancelled *atomic.Bool
}

func (p *progressReader) Read(buf []byte) (int, error) {
	if p.cancelled.Load() {
		return 0, context.Canceled
	}
	n, err := p.r.Read(buf)
	if n > 0 {
		p.onRead(int64(n))
	}
	return n, err
}

// CancelDownload flips the cancellation flag for modelId. The running task
// observes it at the next chunk boundary.
func (m *Manager) CancelDownload(modelID string) bool {
	m.mu.Lock()
	e, ok := m.entries[modelID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	e.progress.Cancelled.Store(true)
	e.cancel()
	return true
}

// CancelAllDownloads cancels every non-terminal entry.
func (m *Manager) CancelAllDownloads() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		terminal := e.progress.Status.Terminal()
		e.mu.Unlock()
		if !terminal {
			e.progress.Cancelled.Store(true)
			e.cancel()
		}
	}
}

// WaitForAllDownloads cancels everything, then joins each task with a
// bounded per-task timeout (10s for the first two, 3s for the rest) so
// shutdown never blocks indefinitely.
func (m *Manager) WaitForAllDownloads() {
	m.CancelAllDownloads()
	time.Sleep(50 * time.Millisecond)

	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for i, e := range entries {
		timeout := 3 * time.Second
		if i < 2 {
			timeout = 10 * time.Second
		}
		select {
		case <-e.done:
		case <-time.After(timeout):
			m.logger.Warn("download join timed out", map[string]interface{}{"model_id": e.progress.ModelID})
		}
	}
}

// Progress returns a snapshot of the entry for modelId, or nil if unknown.
func (m *Manager) Progress(modelID string) *Progress {
	m.mu.Lock()
	e, ok := m.entries[modelID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.progress.snapshot()
	return &snap
}

// CleanupOldDownloads removes terminal entries whose EndTime is older than
// the cutoff.
func (m *Manager) CleanupOldDownloads(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.entries {
		e.mu.Lock()
		terminal := e.progress.Status.Terminal()
		endTime := e.progress.EndTime
		e.mu.Unlock()
		if terminal && !endTime.IsZero() && endTime.Before(cutoff) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}
