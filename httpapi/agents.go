package httpapi

import (
	"net/http"

	"github.com/kolosalai/kolosal-agentd/agent"
	"github.com/kolosalai/kolosal-agentd/core"
)

func (s *Server) registerAgentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/agents", s.handleListAgents)
	mux.HandleFunc("POST /v1/agents", s.handleCreateAgent)
	mux.HandleFunc("GET /v1/agents/system/status", s.handleAgentFleetStatus)
	mux.HandleFunc("GET /v1/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("DELETE /v1/agents/{id}", s.handleDeleteAgent)
	mux.HandleFunc("POST /v1/agents/{id}/execute", s.handleExecuteAgentFunction)
	mux.HandleFunc("POST /v1/agents/{id}/chat", s.handleAgentShortcut)
	mux.HandleFunc("POST /v1/agents/{id}/generate", s.handleAgentShortcut)
	mux.HandleFunc("POST /v1/agents/{id}/respond", s.handleAgentShortcut)
	mux.HandleFunc("POST /v1/agents/{id}/message", s.handleAgentShortcut)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	infos := s.agents.List()
	out := make([]map[string]interface{}, 0, len(infos))
	for _, info := range infos {
		out = append(out, map[string]interface{}{"id": info.ID, "name": info.Name})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": out})
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var ac agent.AgentConfig
	if err := decodeJSON(r, &ac); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if ac.Name == "" {
		badRequest(w, "name is required")
		return
	}
	c, err := s.agents.CreateAgent(ac)
	if err != nil {
		writeError(w, err)
		return
	}
	if ac.AutoStart {
		if err := s.agents.StartAgent(c.ID); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, agentView(c))
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	c, ok := s.agents.Get(r.PathValue("id"))
	if !ok {
		writeError(w, &core.FrameworkError{Op: "httpapi.GetAgent", Kind: core.KindNotFound, ID: r.PathValue("id"), Err: core.ErrAgentNotFound})
		return
	}
	writeJSON(w, http.StatusOK, agentView(c))
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.agents.DeleteAgent(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type executeRequest struct {
	Function   string         `json:"function"`
	Parameters core.AgentData `json:"parameters"`
}

func (s *Server) handleExecuteAgentFunction(w http.ResponseWriter, r *http.Request) {
	c, ok := s.agents.Get(r.PathValue("id"))
	if !ok {
		writeError(w, &core.FrameworkError{Op: "httpapi.ExecuteAgentFunction", Kind: core.KindNotFound, ID: r.PathValue("id"), Err: core.ErrAgentNotFound})
		return
	}
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Function == "" {
		badRequest(w, "function is required")
		return
	}
	result, err := c.ExecuteFunction(r.Context(), req.Function, req.Parameters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAgentShortcut serves chat/generate/respond/message by delegating to
// whichever text-processing function the agent actually has registered:
// RegisterBuiltins carries no chat-specific callable, so this tries the
// config-driven "llm" function first, falling back to the always-present
// "text_analysis" builtin, and 404s only if neither exists.
func (s *Server) handleAgentShortcut(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, ok := s.agents.Get(id)
	if !ok {
		writeError(w, &core.FrameworkError{Op: "httpapi.AgentShortcut", Kind: core.KindNotFound, ID: id, Err: core.ErrAgentNotFound})
		return
	}

	var params core.AgentData
	if err := decodeJSON(r, &params); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if params == nil {
		params = core.NewAgentData()
	}

	reg := c.Registry()
	fnName := ""
	for _, candidate := range []string{"llm", "text_analysis"} {
		if _, _, ok := reg.Describe(candidate); ok {
			fnName = candidate
			break
		}
	}
	if fnName == "" {
		writeError(w, &core.FrameworkError{Op: "httpapi.AgentShortcut", Kind: core.KindNotFound, ID: id, Err: core.ErrFunctionNotFound})
		return
	}

	result, err := c.ExecuteFunction(r.Context(), fnName, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAgentFleetStatus(w http.ResponseWriter, r *http.Request) {
	infos := s.agents.List()
	summary := make([]map[string]interface{}, 0, len(infos))
	running := 0
	for _, info := range infos {
		c, ok := s.agents.Get(info.ID)
		if !ok {
			continue
		}
		if c.IsRunning() {
			running++
		}
		summary = append(summary, map[string]interface{}{
			"id":           c.ID,
			"name":         c.Name,
			"type":         c.Type,
			"capabilities": c.Capabilities,
			"running":      c.IsRunning(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_agents":   len(infos),
		"running_agents": running,
		"agents":         summary,
	})
}

func agentView(c *agent.Core) map[string]interface{} {
	return map[string]interface{}{
		"id":           c.ID,
		"name":         c.Name,
		"type":         c.Type,
		"capabilities": c.Capabilities,
		"running":      c.IsRunning(),
	}
}
