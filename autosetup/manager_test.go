package autosetup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kolosalai/kolosal-agentd/agent"
	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/download"
	"github.com/kolosalai/kolosal-agentd/node"
)

func fakeFactory(ctx context.Context, engineID, modelPath string, params node.LoadingParameters, gpuID int) (node.InferenceEngine, error) {
	return &fakeEngine{id: engineID}, nil
}

type fakeEngine struct{ id string }

func (e *fakeEngine) ID() string { return e.id }
func (e *fakeEngine) Complete(ctx context.Context, p node.CompletionParams) (node.CompletionOutput, error) {
	return node.CompletionOutput{}, nil
}
func (e *fakeEngine) HasActiveJobs() bool { return false }
func (e *fakeEngine) Close() error        { return nil }

func newTestNodeManager() *node.Manager {
	return node.New(0, fakeFactory, nil, &core.NoOpLogger{})
}

func TestEnsureDefaultEngineExistsFalseWhenEmpty(t *testing.T) {
	nodes := newTestNodeManager()
	agents := agent.NewManager(agent.Deps{Logger: &core.NoOpLogger{}})
	m := New(nodes, agents, nil, nil, &core.NoOpLogger{})

	if m.EnsureDefaultEngineExists(context.Background()) {
		t.Fatal("expected no default engine on an empty node manager")
	}
}

func TestAutoSetupEnginesCreatesDefaultFromConfig(t *testing.T) {
	nodes := newTestNodeManager()
	agents := agent.NewManager(agent.Deps{Logger: &core.NoOpLogger{}})
	cfgs := []EngineConfig{{EngineID: "default", ModelPath: "/tmp/model.gguf"}}
	m := New(nodes, agents, nil, cfgs, &core.NoOpLogger{})

	if err := m.AutoSetupEngines(context.Background()); err != nil {
		t.Fatalf("AutoSetupEngines: %v", err)
	}
	if !m.IsDefaultEngineReady(context.Background()) {
		t.Fatal("expected default engine to be ready after auto-setup")
	}
}

func TestAutoSetupDownloadsURLModelAndCreatesEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("model bytes"))
	}))
	defer srv.Close()

	nodes := newTestNodeManager()
	// The same wiring the process entrypoint builds: a finished download
	// with EngineParams set calls back into node.Manager.AddEngine.
	downloads := download.New(&core.NoOpLogger{}, func(ctx context.Context, localPath string, p *download.EngineParams) error {
		return nodes.AddEngine(ctx, p.EngineID, localPath, node.LoadingParamsFromAgentData(p.LoadParams), p.MainGPUID)
	})
	defer downloads.WaitForAllDownloads()

	agents := agent.NewManager(agent.Deps{Logger: &core.NoOpLogger{}})
	m := New(nodes, agents, downloads, []EngineConfig{{
		EngineID:     "default",
		ModelPath:    srv.URL + "/tiny.gguf",
		AutoDownload: true,
	}}, &core.NoOpLogger{})
	m.SetModelsDir(t.TempDir())

	if err := m.AutoSetupEngines(context.Background()); err != nil {
		t.Fatalf("AutoSetupEngines: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p := downloads.Progress("default")
		if p != nil && p.Status.Terminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	p := downloads.Progress("default")
	if p == nil {
		t.Fatal("expected a download progress entry")
	}
	if p.Status != download.StatusEngineCreated {
		t.Fatalf("expected engine_created, got %s (err=%s)", p.Status, p.Error)
	}
	if !m.IsDefaultEngineReady(context.Background()) {
		t.Fatal("expected default engine to be ready after download")
	}
}

func TestRefreshAgentCacheBuildsNameIndex(t *testing.T) {
	agents := agent.NewManager(agent.Deps{Logger: &core.NoOpLogger{}})
	c, err := agents.CreateAgent(agent.AgentConfig{Name: "researcher", Type: "worker"})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	m := New(newTestNodeManager(), agents, nil, nil, &core.NoOpLogger{})
	mapping := m.AgentNameToUUID()

	if mapping["researcher"] != c.ID {
		t.Fatalf("expected researcher -> %s, got %+v", c.ID, mapping)
	}
}

func TestMapAgentNamesToUUIDsRewritesNames(t *testing.T) {
	agents := agent.NewManager(agent.Deps{Logger: &core.NoOpLogger{}})
	c, _ := agents.CreateAgent(agent.AgentConfig{Name: "researcher", Type: "worker"})

	m := New(newTestNodeManager(), agents, nil, nil, &core.NoOpLogger{})

	workflow := []byte(`{"id":"wf1","steps":[{"step_id":"s1","agent_id":"researcher"}]}`)
	out, err := m.MapAgentNamesToUUIDs(workflow)
	if err != nil {
		t.Fatalf("MapAgentNamesToUUIDs: %v", err)
	}

	var doc struct {
		Steps []struct {
			AgentID string `json:"agent_id"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if doc.Steps[0].AgentID != c.ID {
		t.Fatalf("expected agent_id to be rewritten to %s, got %s", c.ID, doc.Steps[0].AgentID)
	}
}

func TestMapAgentNamesToUUIDsRejectsUnknownAgent(t *testing.T) {
	agents := agent.NewManager(agent.Deps{Logger: &core.NoOpLogger{}})
	m := New(newTestNodeManager(), agents, nil, nil, &core.NoOpLogger{})

	workflow := []byte(`{"steps":[{"agent_id":"ghost"}]}`)
	if _, err := m.MapAgentNamesToUUIDs(workflow); err == nil {
		t.Fatal("expected an error for an unknown agent name")
	}
}

func TestMapAgentNamesToUUIDsLeavesExistingUUIDsAlone(t *testing.T) {
	agents := agent.NewManager(agent.Deps{Logger: &core.NoOpLogger{}})
	m := New(newTestNodeManager(), agents, nil, nil, &core.NoOpLogger{})

	id := "11111111-1111-1111-1111-111111111111"
	workflow := []byte(`{"steps":[{"agent_id":"` + id + `"}]}`)
	out, err := m.MapAgentNamesToUUIDs(workflow)
	if err != nil {
		t.Fatalf("MapAgentNamesToUUIDs: %v", err)
	}
	if string(out) == "" {
		t.Fatal("expected non-empty output")
	}

	var doc struct {
		Steps []struct {
			AgentID string `json:"agent_id"`
		} `json:"steps"`
	}
	json.Unmarshal(out, &doc)
	if doc.Steps[0].AgentID != id {
		t.Fatalf("expected UUID agent_id to pass through unchanged, got %s", doc.Steps[0].AgentID)
	}
}
