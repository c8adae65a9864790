// Package node manages the registry of InferenceEngine instances: loading,
// lazy registration, idle-based unload, and URL-sourced model acquisition.
package node

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/download"
	"github.com/kolosalai/kolosal-agentd/resilience"
)

// LoadingParameters mirrors the original's context size / batch size / GPU
// layer count / mmap-mlock flags / parallel count load configuration.
type LoadingParameters struct {
	ContextSize   int  `json:"n_ctx"`
	BatchSize     int  `json:"n_batch"`
	UBatchSize    int  `json:"n_ubatch"`
	GPULayers     int  `json:"n_gpu_layers"`
	ParallelCount int  `json:"n_parallel"`
	KeepTokens    int  `json:"n_keep"`
	UseMlock      bool `json:"use_mlock"`
	UseMmap       bool `json:"use_mmap"`
	ContBatching  bool `json:"cont_batching"`
	Warmup        bool `json:"warmup"`
}

// CompletionParams is the engine-agnostic request shape that FunctionRegistry's
// inference/llm builtins and the chat/completions HTTP route fill in.
type CompletionParams struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Seed        int
}

// CompletionOutput is what an InferenceEngine returns for one completion.
type CompletionOutput struct {
	Text         string
	OutputTokens int
}

// InferenceEngine is the opaque handle to a loaded model. The transformer
// kernel itself is an external collaborator, reached only through this
// contract. EngineFactory constructs one from a local path + params.
type InferenceEngine interface {
	ID() string
	Complete(ctx context.Context, params CompletionParams) (CompletionOutput, error)
	HasActiveJobs() bool
	Close() error
}

// EngineFactory constructs an InferenceEngine handle. Backed by the ai
// package's provider registry in production; swappable for tests.
type EngineFactory func(ctx context.Context, engineID, modelPath string, params LoadingParameters, gpuID int) (InferenceEngine, error)

// GPUStatus is a point-in-time snapshot of one GPU's memory/utilization,
// supplementing NodeManager per the enhanced_gpu_monitor.hpp original.
type GPUStatus struct {
	ID             int     `json:"id"`
	MemoryUsedMB   int64   `json:"memory_used_mb"`
	MemoryTotalMB  int64   `json:"memory_total_mb"`
	UtilizationPct float64 `json:"utilization_pct"`
}

// GPUMonitor reports GPU stats. NoopGPUMonitor is the default since no real
// GPU binding is available to this runtime; a real NVML/CUDA binding is a
// drop-in replacement, mirroring core.NoOpTelemetry's no-op-default pattern.
type GPUMonitor interface {
	Snapshot() []GPUStatus
}

type NoopGPUMonitor struct{}

func (NoopGPUMonitor) Snapshot() []GPUStatus { return nil }

// EngineRecord is the bookkeeping entry for one registered engine.
// Invariant: Loaded ⇒ Handle ≠ nil; ¬Loaded ⇒ Handle = nil.
type EngineRecord struct {
	EngineID     string
	ModelPath    string
	LoadParams   LoadingParameters
	GPUID        int
	Handle       InferenceEngine
	Loaded       bool
	LastActivity time.Time
}

// Manager holds engineId -> EngineRecord under a single mutex and runs one
// autoscaler goroutine that unloads idle engines.
type Manager struct {
	mu          sync.Mutex
	records     map[string]*EngineRecord
	idleTimeout time.Duration
	factory     EngineFactory
	downloader  *download.Manager
	logger      core.Logger
	gpuMonitor  GPUMonitor
	modelsDir   string
	loadBreaker *resilience.CircuitBreaker

	kick     chan struct{}
	stopCh   chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// New constructs a NodeManager. idleTimeout<=0 disables autoscaling.
func New(idleTimeout time.Duration, factory EngineFactory, downloader *download.Manager, logger core.Logger) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	cbCfg := resilience.DefaultConfig()
	cbCfg.Name = "node.engine_load"
	cbCfg.Logger = logger
	breaker, err := resilience.NewCircuitBreaker(cbCfg)
	if err != nil {
		breaker, _ = resilience.NewCircuitBreaker(resilience.DefaultConfig())
	}
	m := &Manager{
		records:     make(map[string]*EngineRecord),
		idleTimeout: idleTimeout,
		factory:     factory,
		downloader:  downloader,
		logger:      logger,
		gpuMonitor:  NoopGPUMonitor{},
		modelsDir:   "models",
		loadBreaker: breaker,
		kick:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go m.autoscalerLoop()
	return m
}

// SetGPUMonitor overrides the default no-op GPU monitor.
func (m *Manager) SetGPUMonitor(gm GPUMonitor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gpuMonitor = gm
}

// SetModelsDir overrides the directory resolveLocalPath downloads
// URL-sourced models into; defaults to "models".
func (m *Manager) SetModelsDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dir != "" {
		m.modelsDir = dir
	}
}

// AddEngine resolves a URL to a local path (downloading/resuming via
// download.Manager if needed), then loads the engine immediately.
func (m *Manager) AddEngine(ctx context.Context, engineID, pathOrURL string, params LoadingParameters, gpuID int) error {
	m.mu.Lock()
	if _, exists := m.records[engineID]; exists {
		m.mu.Unlock()
		return &core.FrameworkError{Op: "node.AddEngine", Kind: core.KindConflict, ID: engineID, Err: core.ErrEngineAlreadyExists}
	}
	m.mu.Unlock()

	localPath, err := m.resolveLocalPath(ctx, engineID, pathOrURL)
	if err != nil {
		return err
	}

	handle, err := m.loadEngine(ctx, engineID, localPath, params, gpuID)
	if err != nil {
		return &core.FrameworkError{Op: "node.AddEngine", Kind: core.KindModelLoading, ID: engineID, Err: fmt.Errorf("%w: %v", core.ErrEngineLoadFailed, err)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[engineID]; exists {
		handle.Close()
		return &core.FrameworkError{Op: "node.AddEngine", Kind: core.KindConflict, ID: engineID, Err: core.ErrEngineAlreadyExists}
	}
	m.records[engineID] = &EngineRecord{
		EngineID:     engineID,
		ModelPath:    localPath,
		LoadParams:   params,
		GPUID:        gpuID,
		Handle:       handle,
		Loaded:       true,
		LastActivity: time.Now(),
	}
	return nil
}

// RegisterEngine validates the path/URL and records the engine but leaves
// it unloaded; the first GetEngine triggers the load.
func (m *Manager) RegisterEngine(ctx context.Context, engineID, pathOrURL string, params LoadingParameters, gpuID int) error {
	m.mu.Lock()
	if _, exists := m.records[engineID]; exists {
		m.mu.Unlock()
		return &core.FrameworkError{Op: "node.RegisterEngine", Kind: core.KindConflict, ID: engineID, Err: core.ErrEngineAlreadyExists}
	}
	m.mu.Unlock()

	if !m.ValidateModelPath(pathOrURL) {
		return &core.FrameworkError{Op: "node.RegisterEngine", Kind: core.KindModelLoading, ID: engineID, Err: core.ErrModelPathInvalid}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[engineID]; exists {
		return &core.FrameworkError{Op: "node.RegisterEngine", Kind: core.KindConflict, ID: engineID, Err: core.ErrEngineAlreadyExists}
	}
	m.records[engineID] = &EngineRecord{
		EngineID:     engineID,
		ModelPath:    pathOrURL,
		LoadParams:   params,
		GPUID:        gpuID,
		Loaded:       false,
		LastActivity: time.Now(),
	}
	return nil
}

// GetEngine returns the live handle, lazily loading it if the record exists
// but is currently unloaded. Refreshes LastActivity on every successful call
// — the only place that resets the idle timer.
func (m *Manager) GetEngine(ctx context.Context, engineID string) (InferenceEngine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[engineID]
	if !ok {
		return nil, &core.FrameworkError{Op: "node.GetEngine", Kind: core.KindNotFound, ID: engineID, Err: core.ErrEngineNotFound}
	}

	if !rec.Loaded {
		localPath, err := m.resolveLocalPath(ctx, engineID, rec.ModelPath)
		if err != nil {
			return nil, err
		}
		handle, err := m.loadEngine(ctx, engineID, localPath, rec.LoadParams, rec.GPUID)
		if err != nil {
			return nil, &core.FrameworkError{Op: "node.GetEngine", Kind: core.KindModelLoading, ID: engineID, Err: fmt.Errorf("%w: %v", core.ErrEngineLoadFailed, err)}
		}
		rec.ModelPath = localPath
		rec.Handle = handle
		rec.Loaded = true
	}

	rec.LastActivity = time.Now()
	return rec.Handle, nil
}

// RemoveEngine unloads (if loaded) and erases the record.
func (m *Manager) RemoveEngine(engineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[engineID]
	if !ok {
		return &core.FrameworkError{Op: "node.RemoveEngine", Kind: core.KindNotFound, ID: engineID, Err: core.ErrEngineNotFound}
	}
	if rec.Loaded && rec.Handle != nil {
		rec.Handle.Close()
	}
	delete(m.records, engineID)
	return nil
}

// ListEngineIDs returns all registered engine ids.
func (m *Manager) ListEngineIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids
}

// Status reports whether an engine is currently loaded.
func (m *Manager) Status(engineID string) (loaded bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, exists := m.records[engineID]
	if !exists {
		return false, false
	}
	return rec.Loaded, true
}

// GPUSnapshot returns the current GPU stats reported by the configured
// GPUMonitor.
func (m *Manager) GPUSnapshot() []GPUStatus {
	m.mu.Lock()
	gm := m.gpuMonitor
	m.mu.Unlock()
	return gm.Snapshot()
}

// ValidateModelPath rejects missing files, non-regular files, wrong
// extensions, or unreachable URLs (via a HEAD probe).
func (m *Manager) ValidateModelPath(pathOrURL string) bool {
	if u, err := url.Parse(pathOrURL); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := http.NewRequest(http.MethodHead, pathOrURL, nil)
		if err != nil {
			return false
		}
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 400
	}

	fi, err := os.Stat(pathOrURL)
	if err != nil {
		return false
	}
	if fi.IsDir() {
		matches, _ := filepath.Glob(filepath.Join(pathOrURL, "*.gguf"))
		return len(matches) > 0
	}
	if !fi.Mode().IsRegular() {
		return false
	}
	return strings.HasSuffix(pathOrURL, ".gguf")
}

// loadEngine invokes the factory through a circuit breaker plus a short
// retry: a transient model-load failure (e.g. a momentary resource
// shortage) is retried once, and repeated failures trip the breaker so a
// storm of load attempts against a broken engine doesn't pile up.
func (m *Manager) loadEngine(ctx context.Context, engineID, localPath string, params LoadingParameters, gpuID int) (InferenceEngine, error) {
	retryCfg := &resilience.RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
	var handle InferenceEngine
	err := resilience.RetryWithCircuitBreaker(ctx, retryCfg, m.loadBreaker, func() error {
		h, ferr := m.factory(ctx, engineID, localPath, params, gpuID)
		if ferr != nil {
			return ferr
		}
		handle = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reg := core.GetGlobalMetricsRegistry(); reg != nil {
		reg.Counter("node.engine.loads", "engine_id", engineID)
	}
	return handle, nil
}

// resolveLocalPath downloads pathOrURL via download.Manager if it is a URL
// and no local copy already exists, blocking until the transfer completes
// (or fails), since addEngine's contract is synchronous resolution.
func (m *Manager) resolveLocalPath(ctx context.Context, engineID, pathOrURL string) (string, error) {
	u, err := url.Parse(pathOrURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return pathOrURL, nil
	}
	if m.downloader == nil {
		return "", &core.FrameworkError{Op: "node.resolveLocalPath", Kind: core.KindDownload, ID: engineID, Err: fmt.Errorf("no downloader configured for URL-sourced engine")}
	}

	m.mu.Lock()
	dir := m.modelsDir
	m.mu.Unlock()
	localPath := filepath.Join(dir, derivedFilename(u))
	if fi, err := os.Stat(localPath); err == nil && fi.Size() > 0 {
		return localPath, nil
	}

	// StartDownload returning false means another caller is already fetching
	// this model; either way the loop below polls the shared progress entry.
	m.downloader.StartDownload(engineID, pathOrURL, localPath, nil)
	for {
		p := m.downloader.Progress(engineID)
		if p == nil {
			return "", &core.FrameworkError{Op: "node.resolveLocalPath", Kind: core.KindDownload, ID: engineID, Err: core.ErrDownloadFailed}
		}
		switch p.Status {
		case download.StatusCompleted, download.StatusEngineCreated:
			return localPath, nil
		case download.StatusFailed, download.StatusCancelled, download.StatusEngineCreateError:
			return "", &core.FrameworkError{Op: "node.resolveLocalPath", Kind: core.KindDownload, ID: engineID, Err: fmt.Errorf("%w: %s", core.ErrDownloadFailed, p.Error)}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func derivedFilename(u *url.URL) string {
	base := filepath.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "model.bin"
	}
	return base
}

// EngineCreatorFor adapts Manager.AddEngine into download.EngineCreator, so
// DownloadManager can call back into NodeManager once a file lands.
func (m *Manager) EngineCreatorFor(params LoadingParameters) download.EngineCreator {
	return func(ctx context.Context, localPath string, p *download.EngineParams) error {
		return m.AddEngine(ctx, p.EngineID, localPath, params, p.MainGPUID)
	}
}

// autoscalerLoop runs every 60s, or when Kick is called: unloads engines
// that are loaded, idle past idleTimeout, and report no active jobs.
func (m *Manager) autoscalerLoop() {
	defer close(m.stopped)
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepIdle()
		case <-m.kick:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	if m.idleTimeout <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, rec := range m.records {
		if !rec.Loaded || rec.Handle == nil {
			continue
		}
		if now.Sub(rec.LastActivity) < m.idleTimeout {
			continue
		}
		if rec.Handle.HasActiveJobs() {
			continue
		}
		rec.Handle.Close()
		rec.Handle = nil
		rec.Loaded = false
		m.logger.Info("engine unloaded due to inactivity", map[string]interface{}{"engine_id": rec.EngineID})
		if reg := core.GetGlobalMetricsRegistry(); reg != nil {
			reg.Counter("node.engine.idle_unloads", "engine_id", rec.EngineID)
		}
	}
}

// Kick wakes the autoscaler immediately instead of waiting for the next tick.
func (m *Manager) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Shutdown signals the autoscaler to stop and joins it.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.stopped
}
