package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
)

func (s *Server) registerAutoSetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/auto-setup", s.handleAutoSetupStatus)
	mux.HandleFunc("POST /api/v1/auto-setup", s.handleTriggerAutoSetup)
	mux.HandleFunc("GET /api/v1/auto-setup/agents", s.handleAutoSetupAgents)
	mux.HandleFunc("POST /api/v1/auto-setup/validate-workflow", s.handleValidateWorkflow)
}

func (s *Server) handleAutoSetupStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.autosetup.GetSetupStatus(r.Context()))
}

func (s *Server) handleTriggerAutoSetup(w http.ResponseWriter, r *http.Request) {
	if err := s.autosetup.PerformAutoSetup(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": s.autosetup.GetSetupStatus(r.Context()),
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": s.autosetup.GetSetupStatus(r.Context())})
}

func (s *Server) handleAutoSetupAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": s.autosetup.AgentNameToUUID()})
}

// handleValidateWorkflow runs a workflow document through
// MapAgentNamesToUUIDs without registering it, returning
// {valid, issues, suggestions, mapped_workflow}.
func (s *Server) handleValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		badRequest(w, "failed to read request body: "+err.Error())
		return
	}

	mapped, mapErr := s.autosetup.MapAgentNamesToUUIDs(body)
	if mapErr != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid":       false,
			"issues":      []string{mapErr.Error()},
			"suggestions": s.autosetup.AvailableAgentNames(),
		})
		return
	}

	var mappedWorkflow interface{}
	_ = json.Unmarshal(mapped, &mappedWorkflow)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":           true,
		"issues":          []string{},
		"suggestions":     []string{},
		"mapped_workflow": mappedWorkflow,
	})
}
