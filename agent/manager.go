package agent

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/function"
	"github.com/kolosalai/kolosal-agentd/message"
)

// Manager owns the running fleet of agent Cores, keyed by id, with a
// secondary name -> id index for lookups by the human-readable config name.
// It builds each agent's function registry from a shared FunctionConfig
// list so two agents can reference the same named function independently.
type Manager struct {
	mu        sync.RWMutex
	agents    map[string]*Core
	nameToID  map[string]string
	functions map[string]FunctionConfig

	router   *message.Router
	engines  function.EngineResolver
	recorder function.CompletionRecorder
	logger   core.Logger

	jobQueueDepthWarning int

	watcher *fsnotify.Watcher
	watchWG sync.WaitGroup
}

// Deps bundles the collaborators Manager needs to build agent function
// registries: the node manager (as an EngineResolver) and the completion
// monitor (as a CompletionRecorder), both accepted as the narrow
// structurally-typed interfaces the function package already defines
// (function/inference.go).
type Deps struct {
	Router   *message.Router
	Engines  function.EngineResolver
	Recorder function.CompletionRecorder
	Logger   core.Logger
}

// NewManager constructs an empty fleet manager.
func NewManager(deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Manager{
		agents:    make(map[string]*Core),
		nameToID:  make(map[string]string),
		functions: make(map[string]FunctionConfig),
		router:    deps.Router,
		engines:   deps.Engines,
		recorder:  deps.Recorder,
		logger:    logger,
	}
}

// SetJobQueueDepthWarning applies depth to every agent created from this
// point forward (and to agents already running).
func (m *Manager) SetJobQueueDepthWarning(depth int) {
	m.mu.Lock()
	m.jobQueueDepthWarning = depth
	agents := make([]*Core, 0, len(m.agents))
	for _, c := range m.agents {
		agents = append(agents, c)
	}
	m.mu.Unlock()
	for _, c := range agents {
		c.SetJobQueueDepthWarning(depth)
	}
}

// LoadAndCreate loads cfg from path and creates (and, for auto_start
// agents, starts) every agent it describes.
func (m *Manager) LoadAndCreate(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	return m.Apply(cfg)
}

// Apply registers cfg's function catalog and creates every agent it
// describes, starting the ones marked auto_start.
func (m *Manager) Apply(cfg *Config) error {
	m.mu.Lock()
	for _, fc := range cfg.Functions {
		m.functions[fc.Name] = fc
	}
	m.mu.Unlock()

	for _, ac := range cfg.Agents {
		c, err := m.CreateAgent(ac)
		if err != nil {
			return fmt.Errorf("agent.Manager.Apply: creating agent %q: %w", ac.Name, err)
		}
		if ac.AutoStart {
			if err := m.StartAgent(c.ID); err != nil {
				return fmt.Errorf("agent.Manager.Apply: starting agent %q: %w", ac.Name, err)
			}
		}
	}
	return nil
}

// CreateAgent builds one Core from ac, wiring its function registry from
// the manager's function catalog and, if set, the shared message router.
func (m *Manager) CreateAgent(ac AgentConfig) (*Core, error) {
	m.mu.Lock()
	if _, exists := m.nameToID[ac.Name]; exists {
		m.mu.Unlock()
		return nil, &core.FrameworkError{Op: "agent.CreateAgent", Kind: core.KindConflict, ID: ac.Name, Err: core.ErrAgentAlreadyExists}
	}
	m.mu.Unlock()

	c := New(ac.Name, ac.Type, ac.Capabilities, m.logger)
	m.buildRegistry(c.Registry(), ac)
	if m.router != nil {
		c.SetRouter(m.router)
	}
	if m.jobQueueDepthWarning > 0 {
		c.SetJobQueueDepthWarning(m.jobQueueDepthWarning)
	}

	m.mu.Lock()
	m.agents[c.ID] = c
	m.nameToID[ac.Name] = c.ID
	m.mu.Unlock()
	return c, nil
}

// buildRegistry registers builtins plus every function ac.Functions names,
// dispatching on the referenced FunctionConfig's Type.
func (m *Manager) buildRegistry(reg *function.Registry, ac AgentConfig) {
	reg.RegisterBuiltins()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range ac.Functions {
		fc, ok := m.functions[name]
		if !ok {
			continue
		}
		switch fc.Type {
		case "llm":
			reg.Register(fc.Name, fc.Description, function.KindLLM, function.NewLLM(m.engines, m.recorder))
		case "inference":
			reg.Register(fc.Name, fc.Description, function.KindInference, function.NewInference(m.engines, m.recorder))
		case "external_api":
			reg.Register(fc.Name, fc.Description, function.KindExternalAPI, function.NewExternalAPI(m.logger))
		case "builtin":
			// Already present via RegisterBuiltins; re-describing under an
			// alias name is not supported since builtins are self-contained.
		}
	}
}

// StartAgent starts the agent identified by id.
func (m *Manager) StartAgent(id string) error {
	c, ok := m.Get(id)
	if !ok {
		return &core.FrameworkError{Op: "agent.StartAgent", Kind: core.KindNotFound, ID: id, Err: core.ErrAgentNotFound}
	}
	return c.Start()
}

// StopAgent stops the agent identified by id.
func (m *Manager) StopAgent(id string) error {
	c, ok := m.Get(id)
	if !ok {
		return &core.FrameworkError{Op: "agent.StopAgent", Kind: core.KindNotFound, ID: id, Err: core.ErrAgentNotFound}
	}
	return c.Stop()
}

// DeleteAgent stops (if running) and removes the agent identified by id.
func (m *Manager) DeleteAgent(id string) error {
	m.mu.Lock()
	c, ok := m.agents[id]
	if !ok {
		m.mu.Unlock()
		return &core.FrameworkError{Op: "agent.DeleteAgent", Kind: core.KindNotFound, ID: id, Err: core.ErrAgentNotFound}
	}
	delete(m.agents, id)
	delete(m.nameToID, c.Name)
	m.mu.Unlock()

	return c.Stop()
}

// Get returns the agent identified by id.
func (m *Manager) Get(id string) (*Core, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.agents[id]
	return c, ok
}

// GetByName returns the agent registered under name.
func (m *Manager) GetByName(name string) (*Core, bool) {
	m.mu.RLock()
	id, ok := m.nameToID[name]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.Get(id)
}

// AgentInfo is a List/AgentNameLister projection, name/id only.
type AgentInfo struct {
	ID   string
	Name string
}

// List returns every agent's id and name.
func (m *Manager) List() []AgentInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AgentInfo, 0, len(m.agents))
	for id, c := range m.agents {
		out = append(out, AgentInfo{ID: id, Name: c.Name})
	}
	return out
}

// ReloadConfiguration re-reads path, stops and discards every current agent,
// and re-creates the fleet from scratch against the new file.
func (m *Manager) ReloadConfiguration(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	agents := make([]*Core, 0, len(m.agents))
	for _, c := range m.agents {
		agents = append(agents, c)
	}
	m.agents = make(map[string]*Core)
	m.nameToID = make(map[string]string)
	m.functions = make(map[string]FunctionConfig)
	m.mu.Unlock()

	for _, c := range agents {
		c.Stop()
	}

	return m.Apply(cfg)
}

// WatchConfig starts an fsnotify watch on path and calls ReloadConfiguration
// on every write event, logging (not returning) reload errors since the
// watch loop has no caller left to report them to.
func (m *Manager) WatchConfig(path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}
	m.watcher = w

	m.watchWG.Add(1)
	go func() {
		defer m.watchWG.Done()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := m.ReloadConfiguration(path); err != nil {
						m.logger.Error("agent config reload failed", map[string]interface{}{"path": path, "error": err.Error()})
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.logger.Error("agent config watch error", map[string]interface{}{"path": path, "error": err.Error()})
			}
		}
	}()
	return nil
}

// StopWatch closes the fsnotify watcher started by WatchConfig, if any.
func (m *Manager) StopWatch() {
	if m.watcher != nil {
		m.watcher.Close()
		m.watchWG.Wait()
	}
}

// Shutdown stops every agent in the fleet and the config watcher.
func (m *Manager) Shutdown() {
	m.StopWatch()
	m.mu.RLock()
	agents := make([]*Core, 0, len(m.agents))
	for _, c := range m.agents {
		agents = append(agents, c)
	}
	m.mu.RUnlock()
	for _, c := range agents {
		c.Stop()
	}
}
