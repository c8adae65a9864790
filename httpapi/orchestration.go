package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/orchestration"
)

var errCollaborationGroupNotFound = errors.New("collaboration group not found")

func (s *Server) registerOrchestrationRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/orchestration/workflows", s.handleListOrchestrationWorkflows)
	mux.HandleFunc("POST /api/v1/orchestration/workflows", s.handleCreateOrchestrationWorkflow)
	mux.HandleFunc("GET /api/v1/orchestration/workflows/{id}", s.handleGetOrchestrationWorkflow)
	mux.HandleFunc("DELETE /api/v1/orchestration/workflows/{id}", s.handleDeleteOrchestrationWorkflow)
	mux.HandleFunc("POST /api/v1/orchestration/workflows/{id}/execute", s.handleExecuteOrchestrationWorkflow)

	mux.HandleFunc("GET /api/v1/orchestration/collaboration-groups", s.handleListCollaborationGroups)
	mux.HandleFunc("POST /api/v1/orchestration/collaboration-groups", s.handleCreateCollaborationGroup)
	mux.HandleFunc("GET /api/v1/orchestration/collaboration-groups/{id}", s.handleGetCollaborationGroup)
	mux.HandleFunc("DELETE /api/v1/orchestration/collaboration-groups/{id}", s.handleDeleteCollaborationGroup)

	mux.HandleFunc("POST /api/v1/orchestration/coordinate", s.handleCoordinate)
	mux.HandleFunc("POST /api/v1/orchestration/pipelines", s.handlePipeline)
	mux.HandleFunc("GET /api/v1/orchestration/metrics", s.handleOrchestrationMetrics)
	mux.HandleFunc("GET /api/v1/orchestration/status", s.handleOrchestrationStatus)
	mux.HandleFunc("POST /api/v1/orchestration/select-agent", s.handleSelectAgent)
	mux.HandleFunc("POST /api/v1/orchestration/distribute-workload", s.handleDistributeWorkload)
	mux.HandleFunc("POST /api/v1/orchestration/optimize", s.handleOptimize)
}

type orchStepDTO struct {
	StepID          string         `json:"step_id"`
	AgentID         string         `json:"agent_id"`
	FunctionName    string         `json:"function_name"`
	Parameters      core.AgentData `json:"parameters"`
	Dependencies    []string       `json:"dependencies"`
	ParallelAllowed bool           `json:"parallel_allowed"`
}

type orchWorkflowDTO struct {
	ID    string        `json:"id"`
	Steps []orchStepDTO `json:"steps"`
}

func (dto orchWorkflowDTO) toWorkflow() *orchestration.Workflow {
	steps := make([]orchestration.Step, len(dto.Steps))
	for i, sd := range dto.Steps {
		steps[i] = orchestration.Step{
			StepID:          sd.StepID,
			AgentID:         sd.AgentID,
			FunctionName:    sd.FunctionName,
			Parameters:      sd.Parameters,
			Dependencies:    sd.Dependencies,
			ParallelAllowed: sd.ParallelAllowed,
		}
	}
	return &orchestration.Workflow{ID: dto.ID, Steps: steps}
}

func orchWorkflowView(wf *orchestration.Workflow) map[string]interface{} {
	stepIDs := make([]string, len(wf.Steps))
	for i, st := range wf.Steps {
		stepIDs[i] = st.StepID
	}
	return map[string]interface{}{"id": wf.ID, "step_ids": stepIDs}
}

func (s *Server) handleListOrchestrationWorkflows(w http.ResponseWriter, r *http.Request) {
	wfs := s.orchestrator.ListWorkflows()
	out := make([]map[string]interface{}, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, orchWorkflowView(wf))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"workflows": out})
}

func (s *Server) handleCreateOrchestrationWorkflow(w http.ResponseWriter, r *http.Request) {
	var dto orchWorkflowDTO
	if err := decodeJSON(r, &dto); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	wf := dto.toWorkflow()
	if err := s.orchestrator.RegisterWorkflow(wf); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, orchWorkflowView(wf))
}

func (s *Server) handleGetOrchestrationWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, ok := s.orchestrator.GetWorkflow(id)
	if !ok {
		writeError(w, &core.FrameworkError{Op: "httpapi.GetOrchestrationWorkflow", Kind: core.KindNotFound, ID: id, Err: core.ErrWorkflowNotFound})
		return
	}
	writeJSON(w, http.StatusOK, orchWorkflowView(wf))
}

func (s *Server) handleDeleteOrchestrationWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orchestrator.DeleteWorkflow(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleExecuteOrchestrationWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := s.orchestrator.ExecuteWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type collaborationGroupDTO struct {
	ID                   string         `json:"id"`
	Pattern              string         `json:"pattern"`
	AgentIDs             []string       `json:"agent_ids"`
	SharedContext        core.AgentData `json:"shared_context"`
	ConsensusThreshold   float64        `json:"consensus_threshold"`
	MaxNegotiationRounds int            `json:"max_negotiation_rounds"`
}

func (dto collaborationGroupDTO) toGroup() orchestration.CollaborationGroup {
	return orchestration.CollaborationGroup{
		ID:                   dto.ID,
		Pattern:              orchestration.Pattern(dto.Pattern),
		AgentIDs:             dto.AgentIDs,
		SharedContext:        dto.SharedContext,
		ConsensusThreshold:   dto.ConsensusThreshold,
		MaxNegotiationRounds: dto.MaxNegotiationRounds,
	}
}

func groupView(g orchestration.CollaborationGroup) map[string]interface{} {
	return map[string]interface{}{
		"id":                     g.ID,
		"pattern":                string(g.Pattern),
		"agent_ids":              g.AgentIDs,
		"shared_context":         g.SharedContext,
		"consensus_threshold":    g.ConsensusThreshold,
		"max_negotiation_rounds": g.MaxNegotiationRounds,
	}
}

func (s *Server) handleListCollaborationGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.orchestrator.ListCollaborationGroups()
	out := make([]map[string]interface{}, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupView(g))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": out})
}

func (s *Server) handleCreateCollaborationGroup(w http.ResponseWriter, r *http.Request) {
	var dto collaborationGroupDTO
	if err := decodeJSON(r, &dto); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if dto.ID == "" {
		dto.ID = uuid.NewString()
	}
	group := dto.toGroup()
	if err := s.orchestrator.RegisterCollaborationGroup(group); err != nil {
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, groupView(group))
}

func (s *Server) handleGetCollaborationGroup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	g, ok := s.orchestrator.GetCollaborationGroup(id)
	if !ok {
		writeError(w, &core.FrameworkError{Op: "httpapi.GetCollaborationGroup", Kind: core.KindNotFound, ID: id, Err: errCollaborationGroupNotFound})
		return
	}
	writeJSON(w, http.StatusOK, groupView(g))
}

func (s *Server) handleDeleteCollaborationGroup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.orchestrator.DeleteCollaborationGroup(id) {
		writeError(w, &core.FrameworkError{Op: "httpapi.DeleteCollaborationGroup", Kind: core.KindNotFound, ID: id, Err: errCollaborationGroupNotFound})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type coordinateRequest struct {
	Pattern string                 `json:"pattern"`
	GroupID string                 `json:"group_id"`
	Group   *collaborationGroupDTO `json:"group"`
	Input   core.AgentData         `json:"input"`
}

func (s *Server) handleCoordinate(w http.ResponseWriter, r *http.Request) {
	var req coordinateRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	var group orchestration.CollaborationGroup
	if req.Group != nil {
		group = req.Group.toGroup()
	} else if req.GroupID != "" {
		g, ok := s.orchestrator.GetCollaborationGroup(req.GroupID)
		if !ok {
			writeError(w, &core.FrameworkError{Op: "httpapi.Coordinate", Kind: core.KindNotFound, ID: req.GroupID, Err: errCollaborationGroupNotFound})
			return
		}
		group = g
	} else {
		badRequest(w, "group or group_id is required")
		return
	}
	if req.Pattern == "" && group.Pattern == "" {
		badRequest(w, "pattern is required")
		return
	}

	input := req.Input
	if input == nil {
		input = core.NewAgentData()
	}
	out, err := s.orchestrator.ExecuteCollaboration(r.Context(), orchestration.Pattern(req.Pattern), group, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePipeline is coordinate's alias fixed to the pipeline pattern,
// kept as a distinct route for API compatibility.
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	var req coordinateRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	req.Pattern = string(orchestration.PatternPipeline)

	var group orchestration.CollaborationGroup
	if req.Group != nil {
		group = req.Group.toGroup()
	} else if req.GroupID != "" {
		g, ok := s.orchestrator.GetCollaborationGroup(req.GroupID)
		if !ok {
			writeError(w, &core.FrameworkError{Op: "httpapi.Pipeline", Kind: core.KindNotFound, ID: req.GroupID, Err: errCollaborationGroupNotFound})
			return
		}
		group = g
	} else {
		badRequest(w, "group or group_id is required")
		return
	}

	input := req.Input
	if input == nil {
		input = core.NewAgentData()
	}
	out, err := s.orchestrator.ExecuteCollaboration(r.Context(), orchestration.PatternPipeline, group, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOrchestrationMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.GetMetrics())
}

func (s *Server) handleOrchestrationStatus(w http.ResponseWriter, r *http.Request) {
	metrics := s.orchestrator.GetMetrics()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_workflows":     metrics.ActiveWorkflows,
		"completed_workflows":  metrics.CompletedWorkflows,
		"failed_workflows":     metrics.FailedWorkflows,
		"total_workflows":      metrics.TotalWorkflows,
		"workflows":            len(s.orchestrator.ListWorkflows()),
		"collaboration_groups": len(s.orchestrator.ListCollaborationGroups()),
	})
}

type selectAgentRequest struct {
	Capability string `json:"capability"`
}

func (s *Server) handleSelectAgent(w http.ResponseWriter, r *http.Request) {
	var req selectAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Capability == "" {
		badRequest(w, "capability is required")
		return
	}
	id, err := s.orchestrator.SelectOptimalAgent(req.Capability)
	if err != nil {
		writeError(w, &core.FrameworkError{Op: "httpapi.SelectAgent", Kind: core.KindNotFound, Err: err})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"agent_id": id})
}

type distributeWorkloadRequest struct {
	TaskType string           `json:"task_type"`
	Tasks    []core.AgentData `json:"tasks"`
}

func (s *Server) handleDistributeWorkload(w http.ResponseWriter, r *http.Request) {
	var req distributeWorkloadRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.TaskType == "" {
		badRequest(w, "task_type is required")
		return
	}
	assignments := s.orchestrator.DistributeWorkload(req.TaskType, req.Tasks)
	writeJSON(w, http.StatusOK, map[string]interface{}{"assignments": assignments})
}

// handleOptimize reports the orchestrator's current load distribution as an
// advisory signal; no live rebalancing operation exists to trigger, so this
// is a read-only snapshot rather than a mutating optimization pass.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	metrics := s.orchestrator.GetMetrics()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_workflows": metrics.ActiveWorkflows,
		"suggestion":       "load is tracked per-agent internally; no rebalancing action is performed",
	})
}
