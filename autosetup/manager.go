// Package autosetup implements AutoSetupManager: boot-time convenience
// wiring that ensures a default inference engine exists, builds an
// agent-name-to-UUID index, and rewrites human-readable agent names in a
// workflow definition into the UUIDs the execution engines actually key on.
package autosetup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kolosalai/kolosal-agentd/agent"
	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/download"
	"github.com/kolosalai/kolosal-agentd/node"
)

// EngineConfig is one default engine this manager will ensure exists on
// boot, mirroring the original's EngineConfig member layout.
type EngineConfig struct {
	EngineID     string
	ModelPath    string
	ContextSize  int
	GPULayers    int
	MainGPUID    int
	BatchSize    int
	AutoDownload bool
}

// DefaultLoadingParameters returns the sensible defaults the original
// hard-codes when constructing an engine from an EngineConfig.
func DefaultLoadingParameters(cfg EngineConfig) node.LoadingParameters {
	ctxSize := cfg.ContextSize
	if ctxSize == 0 {
		ctxSize = 4096
	}
	batch := cfg.BatchSize
	if batch == 0 {
		batch = 512
	}
	return node.LoadingParameters{
		ContextSize:   ctxSize,
		BatchSize:     batch,
		UBatchSize:    512,
		GPULayers:     cfg.GPULayers,
		ParallelCount: 1,
		KeepTokens:    0,
		UseMlock:      false,
		UseMmap:       true,
		ContBatching:  false,
		Warmup:        true,
	}
}

// Manager is the AutoSetupManager: it holds a list of candidate default
// engine configs plus references to the NodeManager, AgentManager, and
// DownloadManager it configures on perform_auto_setup-style calls.
type Manager struct {
	nodes     *node.Manager
	agents    *agent.Manager
	downloads *download.Manager
	logger    core.Logger

	defaultEngines []EngineConfig
	modelsDir      string
	nameToID       map[string]string
}

// New constructs a Manager wired to nodes, agents, and downloads, seeded
// with the default engine configs defaultEngines describes. downloads may
// be nil; AutoDownload engine configs then fall back to the synchronous
// AddEngine path.
func New(nodes *node.Manager, agents *agent.Manager, downloads *download.Manager, defaultEngines []EngineConfig, logger core.Logger) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Manager{
		nodes:          nodes,
		agents:         agents,
		downloads:      downloads,
		logger:         logger,
		defaultEngines: defaultEngines,
		modelsDir:      "models",
		nameToID:       make(map[string]string),
	}
}

// SetModelsDir overrides the directory AutoDownload engine configs land
// their model files in; defaults to "models".
func (m *Manager) SetModelsDir(dir string) {
	if dir != "" {
		m.modelsDir = dir
	}
}

// PerformAutoSetup runs engine auto-setup followed by agent discovery,
// logging (not failing) a partial result the way the original does —
// a missing default engine or empty agent fleet is a degraded boot, not a
// fatal one.
func (m *Manager) PerformAutoSetup(ctx context.Context) error {
	engineErr := m.AutoSetupEngines(ctx)
	if engineErr != nil {
		m.logger.Warn("engine auto-setup failed, continuing", map[string]interface{}{"error": engineErr.Error()})
	}

	m.RefreshAgentCache()

	if m.IsDefaultEngineReady(ctx) && m.AreAgentsAvailable() {
		m.logger.Info("auto-setup completed successfully", map[string]interface{}{"agents": len(m.nameToID)})
		return nil
	}
	m.logger.Warn("auto-setup completed with issues", map[string]interface{}{
		"default_engine_ready": m.IsDefaultEngineReady(ctx),
		"agents":               len(m.nameToID),
	})
	return engineErr
}

// AutoSetupEngines ensures a default engine is available. If none exists, it
// tries every configured EngineConfig in order and succeeds if at least one
// engine is created; otherwise it returns the first creation error.
func (m *Manager) AutoSetupEngines(ctx context.Context) error {
	if m.EnsureDefaultEngineExists(ctx) {
		return nil
	}

	var firstErr error
	anySuccess := false
	for _, cfg := range m.defaultEngines {
		if err := m.createEngineFromConfig(ctx, cfg); err != nil {
			m.logger.Warn("failed to setup engine", map[string]interface{}{"engine_id": cfg.EngineID, "error": err.Error()})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		anySuccess = true
	}
	if !anySuccess {
		if firstErr != nil {
			return firstErr
		}
		return fmt.Errorf("autosetup: no default engine configured")
	}
	return nil
}

// EnsureDefaultEngineExists reports whether "default" is already loaded, or
// whether any engine at all is registered (treated as a stand-in default).
func (m *Manager) EnsureDefaultEngineExists(ctx context.Context) bool {
	if _, err := m.nodes.GetEngine(ctx, "default"); err == nil {
		return true
	}
	return len(m.nodes.ListEngineIDs()) > 0
}

func (m *Manager) createEngineFromConfig(ctx context.Context, cfg EngineConfig) error {
	params := DefaultLoadingParameters(cfg)

	// AutoDownload URL configs go through DownloadManager's asynchronous
	// engine-creation path: the transfer runs in the background and the
	// download task itself drives creating_engine -> engine_created once
	// bytes land, via the EngineCreator the process wired at boot.
	if cfg.AutoDownload && m.downloads != nil && isURL(cfg.ModelPath) {
		localPath := filepath.Join(m.modelsDir, derivedFilename(cfg.ModelPath))
		started := m.downloads.StartDownload(cfg.EngineID, cfg.ModelPath, localPath, &download.EngineParams{
			EngineID:   cfg.EngineID,
			LoadParams: node.LoadingParamsAsAgentData(params),
			MainGPUID:  cfg.MainGPUID,
		})
		if !started {
			m.logger.Info("model download already in flight", map[string]interface{}{"engine_id": cfg.EngineID})
		}
		return nil
	}

	return m.nodes.AddEngine(ctx, cfg.EngineID, cfg.ModelPath, params, cfg.MainGPUID)
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// derivedFilename extracts the URL path's base name, defaulting when the
// URL carries none.
func derivedFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "model.bin"
	}
	base := filepath.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "model.bin"
	}
	return base
}

// IsDefaultEngineReady reports whether the default engine can currently be
// fetched.
func (m *Manager) IsDefaultEngineReady(ctx context.Context) bool {
	_, err := m.nodes.GetEngine(ctx, "default")
	return err == nil
}

// RefreshAgentCache rebuilds the name-to-UUID index from the AgentManager's
// current fleet.
func (m *Manager) RefreshAgentCache() {
	cache := make(map[string]string)
	for _, info := range m.agents.List() {
		if info.Name != "" && info.ID != "" {
			cache[info.Name] = info.ID
		}
	}
	m.nameToID = cache
}

// AgentNameToUUID returns a snapshot of the current agent name-to-UUID
// mapping, refreshing it first.
func (m *Manager) AgentNameToUUID() map[string]string {
	m.RefreshAgentCache()
	out := make(map[string]string, len(m.nameToID))
	for k, v := range m.nameToID {
		out[k] = v
	}
	return out
}

// AreAgentsAvailable reports whether the fleet has at least one agent.
func (m *Manager) AreAgentsAvailable() bool {
	return len(m.nameToID) > 0
}

// AvailableAgentNames returns the names of every agent currently known to
// the cache.
func (m *Manager) AvailableAgentNames() []string {
	names := make([]string, 0, len(m.nameToID))
	for name := range m.nameToID {
		names = append(names, name)
	}
	return names
}

// workflowStep is the minimal shape MapAgentNamesToUUIDs needs from a
// workflow step: every other field round-trips through json.RawMessage
// untouched.
type workflowStep map[string]json.RawMessage

// MapAgentNamesToUUIDs rewrites every step's agent_id field in workflowJSON
// from a human-readable agent name into its UUID, using the freshly
// refreshed name index. Returns an error naming the first agent name it
// could not resolve, matching the original's fail-closed behavior (a
// workflow referencing an unknown agent is rejected wholesale rather than
// partially mapped).
func (m *Manager) MapAgentNamesToUUIDs(workflowJSON []byte) ([]byte, error) {
	m.RefreshAgentCache()

	var top map[string]json.RawMessage
	if err := json.Unmarshal(workflowJSON, &top); err != nil {
		return nil, fmt.Errorf("autosetup: parsing workflow: %w", err)
	}
	stepsRaw, ok := top["steps"]
	if !ok {
		return workflowJSON, nil
	}

	var steps []workflowStep
	if err := json.Unmarshal(stepsRaw, &steps); err != nil {
		return nil, fmt.Errorf("autosetup: parsing workflow steps: %w", err)
	}

	for i, step := range steps {
		raw, ok := step["agent_id"]
		if !ok {
			continue
		}
		var agentID string
		if err := json.Unmarshal(raw, &agentID); err != nil {
			continue
		}
		if looksLikeUUID(agentID) {
			continue
		}
		uuidStr, ok := m.nameToID[agentID]
		if !ok {
			return nil, fmt.Errorf("autosetup: agent %q not found in mapping", agentID)
		}
		mapped, err := json.Marshal(uuidStr)
		if err != nil {
			return nil, err
		}
		steps[i]["agent_id"] = mapped
	}

	newStepsRaw, err := json.Marshal(steps)
	if err != nil {
		return nil, err
	}
	top["steps"] = newStepsRaw

	return json.Marshal(top)
}

// looksLikeUUID accepts only the canonical dashed 36-character form, so an
// agent actually named like a bare 32-hex string still goes through the
// name mapping.
func looksLikeUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// SetupStatus is the get_setup_status_json payload.
type SetupStatus struct {
	DefaultEngineReady bool     `json:"default_engine_ready"`
	AgentsAvailable    bool     `json:"agents_available"`
	AvailableAgents    []string `json:"available_agents"`
}

// GetSetupStatus returns the current readiness snapshot.
func (m *Manager) GetSetupStatus(ctx context.Context) SetupStatus {
	return SetupStatus{
		DefaultEngineReady: m.IsDefaultEngineReady(ctx),
		AgentsAvailable:    m.AreAgentsAvailable(),
		AvailableAgents:    m.AvailableAgentNames(),
	}
}
