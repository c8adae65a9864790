package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig pins the defaults the runtime boots with when nothing
// is configured, including the Runtime block every subsystem constructor
// consumes.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "kolosal-agentd", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)

	// HTTP server
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.HTTP.IdleTimeout)
	assert.True(t, cfg.HTTP.EnableHealthCheck)
	assert.Equal(t, "/health", cfg.HTTP.HealthCheckPath)

	// CORS is opt-in
	assert.False(t, cfg.HTTP.CORS.Enabled)
	assert.Equal(t, []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, cfg.HTTP.CORS.AllowedMethods)

	// AI resolves lazily; nothing is enabled without a key
	assert.False(t, cfg.AI.Enabled)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "gpt-4", cfg.AI.Model)

	// Telemetry is opt-in
	assert.False(t, cfg.Telemetry.Enabled)

	assert.Equal(t, "info", cfg.Logging.Level)

	// Runtime knobs consumed by node/job/workflow/orchestration constructors
	assert.Equal(t, "models", cfg.Runtime.ModelsDir)
	assert.Equal(t, 5*time.Minute, cfg.Runtime.NodeIdleTimeout)
	assert.Equal(t, 256, cfg.Runtime.JobQueueDepth)
	assert.Equal(t, 30*time.Second, cfg.Runtime.WorkflowStepTimeout)
	assert.Equal(t, 1000, cfg.Runtime.OrchestratorMaxRounds)
}

// TestDetectEnvironment verifies the in-cluster/local defaults split.
func TestDetectEnvironment(t *testing.T) {
	t.Run("kubernetes environment", func(t *testing.T) {
		t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")

		cfg := DefaultConfig()
		assert.True(t, cfg.Kubernetes.Enabled)
		assert.Equal(t, "0.0.0.0", cfg.Address)
		assert.Equal(t, "json", cfg.Logging.Format, "cluster logs go to an aggregator")
	})

	t.Run("local environment", func(t *testing.T) {
		t.Setenv("KUBERNETES_SERVICE_HOST", "")
		_ = os.Unsetenv("KUBERNETES_SERVICE_HOST")

		cfg := DefaultConfig()
		assert.False(t, cfg.Kubernetes.Enabled)
		assert.Equal(t, "localhost", cfg.Address)
		assert.True(t, cfg.Development.Enabled)
		assert.Equal(t, "text", cfg.Logging.Format, "local logs are for humans")
	})
}

// TestLoadFromEnv verifies the environment surface the deployment docs
// name, including the runtime knobs.
func TestLoadFromEnv(t *testing.T) {
	testEnv := map[string]string{
		"KOLOSAL_AGENT_NAME":              "inference-1",
		"KOLOSAL_PORT":                    "9090",
		"KOLOSAL_ADDRESS":                 "0.0.0.0",
		"KOLOSAL_LOG_LEVEL":               "debug",
		"KOLOSAL_CORS_ENABLED":            "true",
		"KOLOSAL_CORS_ORIGINS":            "https://console.kolosal.ai,https://*.kolosal.ai",
		"KOLOSAL_CORS_CREDENTIALS":        "true",
		"OPENAI_API_KEY":                  "sk-test-key",
		"KOLOSAL_AI_MODEL":                "gpt-4-turbo",
		"KOLOSAL_MODELS_DIR":              "/var/lib/kolosal/models",
		"KOLOSAL_NODE_IDLE_TIMEOUT":       "90s",
		"KOLOSAL_JOB_QUEUE_DEPTH":         "512",
		"KOLOSAL_WORKFLOW_STEP_TIMEOUT":   "45s",
		"KOLOSAL_ORCHESTRATOR_MAX_ROUNDS": "50",
	}
	for k, v := range testEnv {
		t.Setenv(k, v)
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "inference-1", cfg.Name)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)

	assert.True(t, cfg.HTTP.CORS.Enabled)
	assert.Equal(t, []string{"https://console.kolosal.ai", "https://*.kolosal.ai"}, cfg.HTTP.CORS.AllowedOrigins)
	assert.True(t, cfg.HTTP.CORS.AllowCredentials)

	assert.True(t, cfg.AI.Enabled, "a present OPENAI_API_KEY enables AI")
	assert.Equal(t, "sk-test-key", cfg.AI.APIKey)
	assert.Equal(t, "gpt-4-turbo", cfg.AI.Model)

	assert.Equal(t, "/var/lib/kolosal/models", cfg.Runtime.ModelsDir)
	assert.Equal(t, 90*time.Second, cfg.Runtime.NodeIdleTimeout)
	assert.Equal(t, 512, cfg.Runtime.JobQueueDepth)
	assert.Equal(t, 45*time.Second, cfg.Runtime.WorkflowStepTimeout)
	assert.Equal(t, 50, cfg.Runtime.OrchestratorMaxRounds)
}

// TestRuntimeEnvRejectsGarbage verifies malformed runtime values fall back
// to defaults instead of failing the boot.
func TestRuntimeEnvRejectsGarbage(t *testing.T) {
	t.Setenv("KOLOSAL_NODE_IDLE_TIMEOUT", "not-a-duration")
	t.Setenv("KOLOSAL_JOB_QUEUE_DEPTH", "-3")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 5*time.Minute, cfg.Runtime.NodeIdleTimeout)
	assert.Equal(t, 256, cfg.Runtime.JobQueueDepth)
}

// TestLoadFromFile verifies JSON file loading including the runtime block.
func TestLoadFromFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.json")

	configData := map[string]interface{}{
		"name": "file-agent",
		"port": 8888,
		"http": map[string]interface{}{
			"cors": map[string]interface{}{
				"enabled":         true,
				"allowed_origins": []string{"https://console.kolosal.ai"},
			},
		},
		"ai": map[string]interface{}{
			"enabled": true,
			"model":   "gpt-4-turbo",
		},
		"logging": map[string]interface{}{
			"level":  "warn",
			"format": "text",
		},
		"runtime": map[string]interface{}{
			"models_dir":      "/srv/models",
			"job_queue_depth": 64,
		},
	}
	jsonData, err := json.MarshalIndent(configData, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configFile, jsonData, 0o644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(configFile))

	assert.Equal(t, "file-agent", cfg.Name)
	assert.Equal(t, 8888, cfg.Port)
	assert.True(t, cfg.HTTP.CORS.Enabled)
	assert.Equal(t, []string{"https://console.kolosal.ai"}, cfg.HTTP.CORS.AllowedOrigins)
	assert.True(t, cfg.AI.Enabled)
	assert.Equal(t, "gpt-4-turbo", cfg.AI.Model)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/srv/models", cfg.Runtime.ModelsDir)
	assert.Equal(t, 64, cfg.Runtime.JobQueueDepth)
}

// TestValidate covers every branch Validate enforces.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Config)
		wantErr string
	}{
		{
			name:    "valid configuration",
			setup:   func(cfg *Config) { cfg.Name = "inference-1"; cfg.Port = 8080 },
			wantErr: "",
		},
		{
			name:    "port too low",
			setup:   func(cfg *Config) { cfg.Port = 0 },
			wantErr: "invalid port: 0",
		},
		{
			name:    "port too high",
			setup:   func(cfg *Config) { cfg.Port = 70000 },
			wantErr: "invalid port: 70000",
		},
		{
			name:    "missing name",
			setup:   func(cfg *Config) { cfg.Name = "" },
			wantErr: "agent name is required",
		},
		{
			name: "AI enabled without API key",
			setup: func(cfg *Config) {
				cfg.AI.Enabled = true
				cfg.AI.APIKey = ""
				cfg.Development.MockAI = false
			},
			wantErr: "AI API key is required when AI is enabled",
		},
		{
			name: "AI enabled with mock passes",
			setup: func(cfg *Config) {
				cfg.AI.Enabled = true
				cfg.AI.APIKey = ""
				cfg.Development.MockAI = true
			},
			wantErr: "",
		},
		{
			name: "telemetry enabled without endpoint",
			setup: func(cfg *Config) {
				cfg.Telemetry.Enabled = true
				cfg.Telemetry.Endpoint = ""
			},
			wantErr: "telemetry endpoint is required when telemetry is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.setup(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

// TestFunctionalOptions runs the option surface the entrypoint and tests
// actually use through one table.
func TestFunctionalOptions(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		check func(*testing.T, *Config)
	}{
		{
			name: "WithName",
			opts: []Option{WithName("inference-1")},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "inference-1", cfg.Name)
			},
		},
		{
			name: "WithPort",
			opts: []Option{WithPort(9999)},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9999, cfg.Port)
			},
		},
		{
			name: "WithAddress",
			opts: []Option{WithAddress("127.0.0.1")},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "127.0.0.1", cfg.Address)
			},
		},
		{
			name: "WithCORS",
			opts: []Option{WithCORS([]string{"https://console.kolosal.ai"}, true)},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.HTTP.CORS.Enabled)
				assert.Equal(t, []string{"https://console.kolosal.ai"}, cfg.HTTP.CORS.AllowedOrigins)
				assert.True(t, cfg.HTTP.CORS.AllowCredentials)
			},
		},
		{
			name: "WithCORSDefaults",
			opts: []Option{WithCORSDefaults()},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.HTTP.CORS.Enabled)
				assert.Equal(t, []string{"*"}, cfg.HTTP.CORS.AllowedOrigins)
			},
		},
		{
			name: "WithOpenAIAPIKey",
			opts: []Option{WithOpenAIAPIKey("sk-test")},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.AI.Enabled)
				assert.Equal(t, "openai", cfg.AI.Provider)
				assert.Equal(t, "sk-test", cfg.AI.APIKey)
			},
		},
		{
			name: "WithAI",
			opts: []Option{WithAI(true, "anthropic", "key")},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.AI.Enabled)
				assert.Equal(t, "anthropic", cfg.AI.Provider)
			},
		},
		{
			name: "WithAIModel",
			opts: []Option{WithAIModel("gpt-4-turbo")},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "gpt-4-turbo", cfg.AI.Model)
			},
		},
		{
			name: "WithTelemetry",
			opts: []Option{WithTelemetry(true, "otel-collector:4318")},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Telemetry.Enabled)
				assert.Equal(t, "otel-collector:4318", cfg.Telemetry.Endpoint)
			},
		},
		{
			name: "WithLogLevel",
			opts: []Option{WithLogLevel("debug")},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			name: "WithDevelopmentMode",
			opts: []Option{WithDevelopmentMode(true)},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Development.Enabled)
				assert.Equal(t, "text", cfg.Logging.Format)
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			name: "WithMockAI",
			opts: []Option{WithMockAI(true)},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Development.MockAI)
				assert.True(t, cfg.AI.Enabled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfig(tt.opts...)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}

	t.Run("WithPort rejects out-of-range", func(t *testing.T) {
		_, err := NewConfig(WithPort(0))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid port")
	})
}

// TestConfigPriority verifies the option > env > default ordering:
// an explicit functional option beats an environment variable.
func TestConfigPriority(t *testing.T) {
	t.Setenv("KOLOSAL_PORT", "7777")

	cfg, err := NewConfig(WithPort(8888))
	require.NoError(t, err)
	assert.Equal(t, 8888, cfg.Port)
}

// TestParseHelpers verifies the loose parsing the env loader relies on.
func TestParseHelpers(t *testing.T) {
	t.Run("parseStringList", func(t *testing.T) {
		tests := []struct {
			input    string
			expected []string
		}{
			{"a,b,c", []string{"a", "b", "c"}},
			{"  a  ,  b  ,  c  ", []string{"a", "b", "c"}},
			{"https://console.kolosal.ai", []string{"https://console.kolosal.ai"}},
			{"", []string{}},
			{",,,", []string{}},
			{"a,,b", []string{"a", "b"}},
		}
		for _, tt := range tests {
			assert.Equal(t, tt.expected, parseStringList(tt.input), "input: %s", tt.input)
		}
	})

	t.Run("parseBool", func(t *testing.T) {
		truthy := []string{"true", "True", "TRUE", "1", "yes", "YES", "on", "ON"}
		falsy := []string{"false", "0", "no", "off", "", "invalid"}
		for _, v := range truthy {
			assert.True(t, parseBool(v), "input: %s", v)
		}
		for _, v := range falsy {
			assert.False(t, parseBool(v), "input: %s", v)
		}
	})
}

// TestConfigWithConfigFile verifies file loading composes with options.
func TestConfigWithConfigFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "test-config.json")

	configData := map[string]interface{}{
		"name": "file-loaded-agent",
		"port": 7777,
	}
	jsonData, err := json.MarshalIndent(configData, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configFile, jsonData, 0o644))

	cfg, err := NewConfig(
		WithConfigFile(configFile),
		WithPort(8888), // option overrides file
	)
	require.NoError(t, err)

	assert.Equal(t, "file-loaded-agent", cfg.Name)
	assert.Equal(t, 8888, cfg.Port)
}

// ExampleNewConfig demonstrates the entrypoint's configuration shape.
func ExampleNewConfig() {
	cfg, err := NewConfig(
		WithName("kolosal-agentd"),
		WithPort(8080),
		WithCORS([]string{"https://console.kolosal.ai"}, true),
	)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Serving %s on port %d\n", cfg.Name, cfg.Port)
	// Output: Serving kolosal-agentd on port 8080
}
