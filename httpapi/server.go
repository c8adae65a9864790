// Package httpapi exposes every subsystem of the inference runtime —
// NodeManager, DownloadManager, CompletionMonitor, AgentManager,
// SequentialWorkflowExecutor, AgentOrchestrator, and AutoSetupManager —
// behind a single net/http surface: one *http.ServeMux wrapped in a
// Recovery→Logging→CORS middleware chain.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kolosalai/kolosal-agentd/agent"
	"github.com/kolosalai/kolosal-agentd/autosetup"
	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/download"
	"github.com/kolosalai/kolosal-agentd/monitor"
	"github.com/kolosalai/kolosal-agentd/node"
	"github.com/kolosalai/kolosal-agentd/orchestration"
	"github.com/kolosalai/kolosal-agentd/workflow"
)

// Deps bundles every collaborator the HTTP surface dispatches to.
type Deps struct {
	Nodes        *node.Manager
	Downloads    *download.Manager
	Monitor      *monitor.Monitor
	Agents       *agent.Manager
	Workflows    *workflow.Executor
	Orchestrator *orchestration.Orchestrator
	AutoSetup    *autosetup.Manager
	Logger       core.Logger
	CORS         *core.CORSConfig
	DevMode      bool
}

// Server owns the routed mux and its collaborators.
type Server struct {
	nodes        *node.Manager
	downloads    *download.Manager
	monitor      *monitor.Monitor
	agents       *agent.Manager
	workflows    *workflow.Executor
	orchestrator *orchestration.Orchestrator
	autosetup    *autosetup.Manager
	logger       core.Logger
	cors         *core.CORSConfig
	devMode      bool
}

// NewServer constructs a Server from deps, defaulting a nil Logger to
// core.NoOpLogger the way every other constructor in this tree does.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Server{
		nodes:        deps.Nodes,
		downloads:    deps.Downloads,
		monitor:      deps.Monitor,
		agents:       deps.Agents,
		workflows:    deps.Workflows,
		orchestrator: deps.Orchestrator,
		autosetup:    deps.AutoSetup,
		logger:       logger,
		cors:         deps.CORS,
		devMode:      deps.DevMode,
	}
}

// Handler builds the routed mux and wraps it in the standard middleware
// chain: Recovery outermost (catches panics from everything below it,
// including Logging and CORS), then Logging, then CORS, with otelhttp
// innermost so each request gets a server span once a telemetry pipeline
// is installed (the default no-op tracer makes it free otherwise).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerCompletionRoutes(mux)
	s.registerEngineRoutes(mux)
	s.registerAgentRoutes(mux)
	s.registerSequentialWorkflowRoutes(mux)
	s.registerOrchestrationRoutes(mux)
	s.registerAutoSetupRoutes(mux)
	mux.HandleFunc("GET /health", s.handleHealth)

	var h http.Handler = otelhttp.NewHandler(mux, "kolosal-agentd")
	if s.cors != nil {
		h = core.CORSMiddleware(s.cors)(h)
	}
	h = core.LoggingMiddleware(s.logger, s.devMode)(h)
	h = core.RecoveryMiddleware(s.logger)(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the response body with status, setting the JSON
// content type first.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the {"error": {...}} envelope every error response carries.
type errorBody struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

// writeError renders err as the {"error": {...}} envelope, mapping a
// core.FrameworkError's Kind to its HTTP status via core.KindToHTTPStatus;
// any other error defaults to 500 with a sanitized type.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()
	kind := core.KindInternal

	var fe *core.FrameworkError
	if errors.As(err, &fe) {
		status = core.KindToHTTPStatus(fe.Kind)
		kind = fe.Kind
		if fe.Message != "" {
			message = fe.Message
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"error": errorBody{Message: message, Type: kind},
	})
}

// badRequest is a convenience for handler-local validation failures that
// never reach a core.FrameworkError: every route that decodes a JSON body
// answers a malformed one with 400.
func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error": errorBody{Message: message, Type: core.KindValidation},
	})
}

// decodeJSON decodes r's body into v, closing the body afterward.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
