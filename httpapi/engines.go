package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/node"
)

func (s *Server) registerEngineRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/engines", s.handleCreateEngine)
	mux.HandleFunc("DELETE /v1/engines/{id}", s.handleDeleteEngine)
	mux.HandleFunc("GET /v1/engines/{id}/status", s.handleEngineStatus)
	mux.HandleFunc("GET /download-progress/{modelId}", s.handleDownloadProgress)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /v1/metrics", s.handleMetrics)
	mux.HandleFunc("GET /v1/metrics/combined", s.handleCombinedMetrics)
	mux.HandleFunc("GET /completion-metrics", s.handleCompletionMetrics)

	if s.monitor != nil {
		registry := prometheus.NewRegistry()
		registry.MustRegister(s.monitor.Collector())
		mux.Handle("GET /metrics/prometheus", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
}

// createEngineRequest is the POST /v1/engines body.
type createEngineRequest struct {
	EngineID          string                 `json:"engine_id"`
	ModelPath         string                 `json:"model_path"`
	LoadImmediately   bool                   `json:"load_immediately"`
	MainGPUID         int                    `json:"main_gpu_id"`
	LoadingParameters node.LoadingParameters `json:"loading_parameters"`
}

func (s *Server) handleCreateEngine(w http.ResponseWriter, r *http.Request) {
	var req createEngineRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.EngineID == "" || req.ModelPath == "" {
		badRequest(w, "engine_id and model_path are required")
		return
	}
	if !s.nodes.ValidateModelPath(req.ModelPath) {
		writeError(w, &core.FrameworkError{Op: "httpapi.CreateEngine", Kind: core.KindModelLoading, ID: req.EngineID, Err: core.ErrModelPathInvalid})
		return
	}

	var err error
	if req.LoadImmediately {
		err = s.nodes.AddEngine(r.Context(), req.EngineID, req.ModelPath, req.LoadingParameters, req.MainGPUID)
	} else {
		err = s.nodes.RegisterEngine(r.Context(), req.EngineID, req.ModelPath, req.LoadingParameters, req.MainGPUID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"engine_id": req.EngineID})
}

func (s *Server) handleDeleteEngine(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.nodes.RemoveEngine(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"engine_id": id, "status": "deleted"})
}

func (s *Server) handleEngineStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	loaded, ok := s.nodes.Status(id)
	if !ok {
		writeError(w, &core.FrameworkError{Op: "httpapi.EngineStatus", Kind: core.KindNotFound, ID: id, Err: core.ErrEngineNotFound})
		return
	}
	status := "unloaded"
	if loaded {
		status = "loaded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"engine_id": id,
		"status":    status,
		"available": loaded,
	})
}

func (s *Server) handleDownloadProgress(w http.ResponseWriter, r *http.Request) {
	modelID := r.PathValue("modelId")
	progress := s.downloads.Progress(modelID)
	if progress == nil {
		writeError(w, &core.FrameworkError{Op: "httpapi.DownloadProgress", Kind: core.KindNotFound, ID: modelID, Err: core.ErrDownloadFailed})
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	aggregate, perEngine := s.monitor.GetCompletionMetrics()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"completion_metrics": aggregate,
		"engines":            perEngine,
		"gpu":                s.nodes.GPUSnapshot(),
		"engine_ids":         s.nodes.ListEngineIDs(),
	})
}

func (s *Server) handleCompletionMetrics(w http.ResponseWriter, r *http.Request) {
	aggregate, perEngine := s.monitor.GetCompletionMetrics()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"aggregate": aggregate,
		"engines":   perEngine,
	})
}

// handleCombinedMetrics joins completion metrics with node/GPU status into
// one payload, so a dashboard needs a single poll instead of stitching
// /completion-metrics and /v1/metrics together.
func (s *Server) handleCombinedMetrics(w http.ResponseWriter, r *http.Request) {
	aggregate, perEngine := s.monitor.GetCompletionMetrics()
	engineIDs := s.nodes.ListEngineIDs()
	engineStatus := make(map[string]string, len(engineIDs))
	for _, id := range engineIDs {
		if loaded, ok := s.nodes.Status(id); ok {
			status := "unloaded"
			if loaded {
				status = "loaded"
			}
			engineStatus[id] = status
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"completion_metrics": map[string]interface{}{
			"aggregate": aggregate,
			"engines":   perEngine,
		},
		"engine_status": engineStatus,
		"gpu":           s.nodes.GPUSnapshot(),
	})
}
