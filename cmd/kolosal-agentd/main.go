// Command kolosal-agentd runs the inference runtime's full HTTP surface:
// engine lifecycle and autoscaling, the agent/job substrate, sequential and
// DAG workflow orchestration, and completion metrics.
//
// Environment Variables:
//
//	KOLOSAL_PORT                      - HTTP server port (default: 8080)
//	KOLOSAL_MODELS_DIR                - model download/resolution directory (default: ./models), read by node.Manager and autosetup.Manager
//	KOLOSAL_NODE_IDLE_TIMEOUT         - engine auto-unload threshold (default: 5m)
//	KOLOSAL_JOB_QUEUE_DEPTH           - per-agent pending-job warning threshold (default: 256)
//	KOLOSAL_WORKFLOW_STEP_TIMEOUT     - default per-step timeout for sequential workflows (default: 30s)
//	KOLOSAL_ORCHESTRATOR_MAX_ROUNDS   - DAG scheduler round cap (default: 1000)
//	KOLOSAL_AI_ENABLED               - selects the registered AI provider (openai/anthropic) over the bare OpenAI fallback
//	KOLOSAL_AI_PROVIDER               - provider name when KOLOSAL_AI_ENABLED=true (default: openai)
//	KOLOSAL_AGENTS_CONFIG             - path to the agents/functions YAML config, watched for live reload
//	KOLOSAL_TELEMETRY_ENABLED         - turn on OTLP metrics export (endpoint via KOLOSAL_TELEMETRY_ENDPOINT)
//	DEV_MODE                          - verbose request logging + permissive CORS
//	OPENAI_API_KEY                    - forwarded to the AI-backed inference engine
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kolosalai/kolosal-agentd/agent"
	"github.com/kolosalai/kolosal-agentd/autosetup"
	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/download"
	"github.com/kolosalai/kolosal-agentd/httpapi"
	"github.com/kolosalai/kolosal-agentd/message"
	"github.com/kolosalai/kolosal-agentd/monitor"
	"github.com/kolosalai/kolosal-agentd/node"
	"github.com/kolosalai/kolosal-agentd/orchestration"
	"github.com/kolosalai/kolosal-agentd/telemetry"
	"github.com/kolosalai/kolosal-agentd/workflow"

	// Blank-imported so their init() registers each provider with ai's
	// registry; cfg.AI.Provider (or auto-detection) selects among them.
	_ "github.com/kolosalai/kolosal-agentd/ai/providers/anthropic"
	_ "github.com/kolosalai/kolosal-agentd/ai/providers/openai"
)

func main() {
	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)

	if cfg.Telemetry.Enabled {
		if err := telemetry.Initialize(telemetry.Config{
			Enabled:      true,
			ServiceName:  cfg.Name,
			Endpoint:     cfg.Telemetry.Endpoint,
			SamplingRate: cfg.Telemetry.SamplingRate,
		}, logger); err != nil {
			logger.Warn("telemetry initialization failed, continuing without metrics export", map[string]interface{}{"error": err.Error()})
		}
	}

	// The engine creator closes over nodes, assigned just below: downloads
	// only invoke it once a transfer finishes, long after node.New returns.
	var nodes *node.Manager
	downloads := download.New(logger, func(ctx context.Context, localPath string, params *download.EngineParams) error {
		if nodes == nil {
			return core.ErrNotInitialized
		}
		return nodes.AddEngine(ctx, params.EngineID, localPath, node.LoadingParamsFromAgentData(params.LoadParams), params.MainGPUID)
	})
	nodes = node.New(cfg.Runtime.NodeIdleTimeout, node.NewAIEngineFactory(cfg.AI, logger), downloads, logger)
	nodes.SetModelsDir(cfg.Runtime.ModelsDir)

	monitorInst := monitor.New()
	router := message.New(64, logger)

	agents := agent.NewManager(agent.Deps{
		Router:   router,
		Engines:  nodes,
		Recorder: monitorInst,
		Logger:   logger,
	})
	agents.SetJobQueueDepthWarning(cfg.Runtime.JobQueueDepth)

	workflows := workflow.NewExecutor(workflow.NewAgentLookup(agents), logger)
	workflows.SetDefaultStepTimeout(cfg.Runtime.WorkflowStepTimeout)
	orchestrator := orchestration.NewOrchestrator(orchestration.NewAgentLookup(agents), logger)
	orchestrator.SetMaxRounds(cfg.Runtime.OrchestratorMaxRounds)
	autoManager := autosetup.New(nodes, agents, downloads, nil, logger)
	autoManager.SetModelsDir(cfg.Runtime.ModelsDir)

	if cfgPath := os.Getenv(core.EnvConfigPath); cfgPath != "" {
		if err := agents.LoadAndCreate(cfgPath); err != nil {
			logger.Error("failed to load agent config", map[string]interface{}{"path": cfgPath, "error": err.Error()})
		} else if err := agents.WatchConfig(cfgPath); err != nil {
			logger.Warn("agent config watch not started", map[string]interface{}{"path": cfgPath, "error": err.Error()})
		}
	}

	setupCtx, setupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := autoManager.PerformAutoSetup(setupCtx); err != nil {
		logger.Warn("auto-setup completed with issues", map[string]interface{}{"error": err.Error()})
	}
	setupCancel()

	var corsCfg *core.CORSConfig
	if cfg.HTTP.CORS.Enabled {
		corsCfg = &cfg.HTTP.CORS
	}

	server := httpapi.NewServer(httpapi.Deps{
		Nodes:        nodes,
		Downloads:    downloads,
		Monitor:      monitorInst,
		Agents:       agents,
		Workflows:    workflows,
		Orchestrator: orchestrator,
		AutoSetup:    autoManager,
		Logger:       logger,
		CORS:         corsCfg,
		DevMode:      cfg.Development.Enabled,
	})

	addr := cfg.Address
	if addr == "" {
		addr = ":" + strconv.Itoa(cfg.Port)
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		logger.Info("kolosal-agentd listening", map[string]interface{}{"addr": addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	downloads.CancelAllDownloads()
	downloads.WaitForAllDownloads()
	nodes.Shutdown()
	agents.Shutdown()

	if cfg.Telemetry.Enabled {
		telemetryCtx, telemetryCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := telemetry.Shutdown(telemetryCtx); err != nil {
			logger.Warn("telemetry shutdown incomplete", map[string]interface{}{"error": err.Error()})
		}
		telemetryCancel()
	}
}

func buildConfig() (*core.Config, error) {
	opts := []core.Option{
		core.WithName("kolosal-agentd"),
	}
	if os.Getenv(core.EnvDevMode) == "true" {
		opts = append(opts, core.WithDevelopmentMode(true), core.WithCORSDefaults())
	}
	return core.NewConfig(opts...)
}
