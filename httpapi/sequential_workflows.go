package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/workflow"
)

func (s *Server) registerSequentialWorkflowRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/sequential-workflows", s.handleListSequentialWorkflows)
	mux.HandleFunc("POST /api/v1/sequential-workflows", s.handleCreateSequentialWorkflow)
	mux.HandleFunc("GET /api/v1/sequential-workflows/{id}", s.handleGetSequentialWorkflow)
	mux.HandleFunc("DELETE /api/v1/sequential-workflows/{id}", s.handleDeleteSequentialWorkflow)
	mux.HandleFunc("POST /api/v1/sequential-workflows/{id}/execute", s.handleExecuteSequentialWorkflow)
	mux.HandleFunc("POST /api/v1/sequential-workflows/{id}/execute-async", s.handleExecuteSequentialWorkflowAsync)
	mux.HandleFunc("GET /api/v1/sequential-workflows/{id}/result", s.handleSequentialWorkflowResult)
	mux.HandleFunc("GET /api/v1/sequential-workflows/{id}/status", s.handleSequentialWorkflowStatus)
	mux.HandleFunc("POST /api/v1/sequential-workflows/{id}/cancel", s.handleCancelSequentialWorkflow)
}

// sequentialStepDTO is the JSON-representable projection of workflow.Step;
// Precondition/Validation/ResultProcessor are Go-only and have no wire
// representation.
type sequentialStepDTO struct {
	StepID            string         `json:"step_id"`
	StepName          string         `json:"step_name"`
	AgentID           string         `json:"agent_id"`
	FunctionName      string         `json:"function_name"`
	Parameters        core.AgentData `json:"parameters"`
	TimeoutSeconds    int            `json:"timeout_seconds"`
	MaxRetries        int            `json:"max_retries"`
	ContinueOnFailure bool           `json:"continue_on_failure"`
}

type sequentialWorkflowDTO struct {
	ID                      string              `json:"id"`
	Steps                   []sequentialStepDTO `json:"steps"`
	StopOnFailure           bool                `json:"stop_on_failure"`
	MaxExecutionTimeSeconds int                 `json:"max_execution_time_seconds"`
	GlobalContext           core.AgentData      `json:"global_context"`
}

func (dto sequentialWorkflowDTO) toWorkflow() *workflow.SequentialWorkflow {
	steps := make([]workflow.Step, len(dto.Steps))
	for i, sd := range dto.Steps {
		steps[i] = workflow.Step{
			StepID:            sd.StepID,
			StepName:          sd.StepName,
			AgentID:           sd.AgentID,
			FunctionName:      sd.FunctionName,
			Parameters:        sd.Parameters,
			TimeoutSeconds:    sd.TimeoutSeconds,
			MaxRetries:        sd.MaxRetries,
			ContinueOnFailure: sd.ContinueOnFailure,
		}
	}
	return &workflow.SequentialWorkflow{
		ID:                      dto.ID,
		Steps:                   steps,
		StopOnFailure:           dto.StopOnFailure,
		MaxExecutionTimeSeconds: dto.MaxExecutionTimeSeconds,
		GlobalContext:           dto.GlobalContext,
	}
}

func workflowView(wf *workflow.SequentialWorkflow) map[string]interface{} {
	stepIDs := make([]string, len(wf.Steps))
	for i, st := range wf.Steps {
		stepIDs[i] = st.StepID
	}
	return map[string]interface{}{
		"id":                         wf.ID,
		"step_ids":                   stepIDs,
		"stop_on_failure":            wf.StopOnFailure,
		"max_execution_time_seconds": wf.MaxExecutionTimeSeconds,
	}
}

func (s *Server) handleListSequentialWorkflows(w http.ResponseWriter, r *http.Request) {
	wfs := s.workflows.ListWorkflows()
	out := make([]map[string]interface{}, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, workflowView(wf))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"workflows": out})
}

// handleCreateSequentialWorkflow maps every step's agent_id from a
// human-readable name to its UUID via AutoSetupManager before registering
// the workflow; an unresolved name yields 400 with the list of agents that
// actually exist.
func (s *Server) handleCreateSequentialWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		badRequest(w, "failed to read request body: "+err.Error())
		return
	}

	mapped := body
	if s.autosetup != nil {
		mapped, err = s.autosetup.MapAgentNamesToUUIDs(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":            errorBody{Message: err.Error(), Type: core.KindValidation},
				"available_agents": s.autosetup.AvailableAgentNames(),
			})
			return
		}
	}

	var dto sequentialWorkflowDTO
	if err := json.Unmarshal(mapped, &dto); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	wf := dto.toWorkflow()
	if err := s.workflows.RegisterWorkflow(wf); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, workflowView(wf))
}

func (s *Server) handleGetSequentialWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, ok := s.workflows.GetWorkflow(id)
	if !ok {
		writeError(w, &core.FrameworkError{Op: "httpapi.GetSequentialWorkflow", Kind: core.KindNotFound, ID: id, Err: core.ErrWorkflowNotFound})
		return
	}
	writeJSON(w, http.StatusOK, workflowView(wf))
}

func (s *Server) handleDeleteSequentialWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.workflows.DeleteWorkflow(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleExecuteSequentialWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var input core.AgentData
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &input); err != nil {
			badRequest(w, "invalid request body: "+err.Error())
			return
		}
	}
	if input == nil {
		input = core.NewAgentData()
	}
	result, err := s.workflows.ExecuteWorkflow(r.Context(), id, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExecuteSequentialWorkflowAsync(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var input core.AgentData
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &input); err != nil {
			badRequest(w, "invalid request body: "+err.Error())
			return
		}
	}
	if input == nil {
		input = core.NewAgentData()
	}
	execID, err := s.workflows.ExecuteWorkflowAsync(id, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": execID})
}

func (s *Server) handleSequentialWorkflowResult(w http.ResponseWriter, r *http.Request) {
	execID := r.URL.Query().Get("execution_id")
	result, err := s.workflows.GetWorkflowResult(execID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSequentialWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	execID := r.URL.Query().Get("execution_id")
	status, err := s.workflows.GetWorkflowStatus(execID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"execution_id": execID, "status": status})
}

func (s *Server) handleCancelSequentialWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.workflows.CancelWorkflow(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancelled"})
}
