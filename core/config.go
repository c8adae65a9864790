package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration options for the Kolosal framework.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// The configuration automatically detects the execution environment (Kubernetes vs local)
// and adjusts defaults accordingly.
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("my-agent"),
//	    WithPort(8080),
//	    WithCORS([]string{"https://example.com"}, true),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Core configuration
	Name      string `json:"name" env:"KOLOSAL_AGENT_NAME"`
	ID        string `json:"id" env:"KOLOSAL_AGENT_ID"`
	Port      int    `json:"port" env:"KOLOSAL_PORT" default:"8080"`
	Address   string `json:"address" env:"KOLOSAL_ADDRESS"`
	Namespace string `json:"namespace" env:"KOLOSAL_NAMESPACE" default:"default"`

	// HTTP Server configuration
	HTTP HTTPConfig `json:"http"`

	// AI configuration (optional module)
	AI AIConfig `json:"ai"`

	// Telemetry configuration (optional module)
	Telemetry TelemetryConfig `json:"telemetry"`

	// Resilience configuration
	Resilience ResilienceConfig `json:"resilience"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Development configuration
	Development DevelopmentConfig `json:"development"`

	// Kubernetes specific configuration
	Kubernetes KubernetesConfig `json:"kubernetes"`

	// Runtime holds the download/node/job/workflow/orchestration knobs.
	Runtime RuntimeConfig `json:"runtime"`

	// Logger instance for configuration operations (excluded from JSON)
	logger Logger `json:"-"`
}

// HTTPConfig contains HTTP server configuration including timeouts, limits, and CORS settings.
// All timeout values use time.Duration for flexibility.
type HTTPConfig struct {
	ReadTimeout       time.Duration `json:"read_timeout" env:"KOLOSAL_HTTP_READ_TIMEOUT" default:"30s"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"KOLOSAL_HTTP_READ_HEADER_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"KOLOSAL_HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"KOLOSAL_HTTP_IDLE_TIMEOUT" default:"120s"`
	MaxHeaderBytes    int           `json:"max_header_bytes" env:"KOLOSAL_HTTP_MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"KOLOSAL_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	EnableHealthCheck bool          `json:"enable_health_check" env:"KOLOSAL_HTTP_HEALTH_CHECK" default:"true"`
	HealthCheckPath   string        `json:"health_check_path" env:"KOLOSAL_HTTP_HEALTH_PATH" default:"/health"`
	CORS              CORSConfig    `json:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing (CORS) configuration.
// Supports wildcard domains (e.g., *.example.com) and wildcard ports (e.g., http://localhost:*).
//
// Security note: Be cautious with AllowCredentials=true and ensure AllowedOrigins
// is properly restricted in production environments.
type CORSConfig struct {
	Enabled          bool     `json:"enabled" env:"KOLOSAL_CORS_ENABLED" default:"false"`
	AllowedOrigins   []string `json:"allowed_origins" env:"KOLOSAL_CORS_ORIGINS"`
	AllowedMethods   []string `json:"allowed_methods" env:"KOLOSAL_CORS_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `json:"allowed_headers" env:"KOLOSAL_CORS_HEADERS" default:"Content-Type,Authorization"`
	ExposedHeaders   []string `json:"exposed_headers" env:"KOLOSAL_CORS_EXPOSED_HEADERS"`
	AllowCredentials bool     `json:"allow_credentials" env:"KOLOSAL_CORS_CREDENTIALS" default:"false"`
	MaxAge           int      `json:"max_age" env:"KOLOSAL_CORS_MAX_AGE" default:"86400"`
}

// AIConfig contains AI client configuration for LLM integration.
// This is an optional module - AI features are only initialized when Enabled=true.
// Supports OpenAI and compatible APIs. When MockAI is enabled in Development mode,
// returns canned responses without making actual API calls.
type AIConfig struct {
	Enabled       bool          `json:"enabled" env:"KOLOSAL_AI_ENABLED" default:"false"`
	Provider      string        `json:"provider" env:"KOLOSAL_AI_PROVIDER" default:"openai"`
	APIKey        string        `json:"api_key" env:"KOLOSAL_AI_API_KEY,OPENAI_API_KEY"`
	BaseURL       string        `json:"base_url" env:"KOLOSAL_AI_BASE_URL"`
	Model         string        `json:"model" env:"KOLOSAL_AI_MODEL" default:"gpt-4"`
	Temperature   float32       `json:"temperature" env:"KOLOSAL_AI_TEMPERATURE" default:"0.7"`
	MaxTokens     int           `json:"max_tokens" env:"KOLOSAL_AI_MAX_TOKENS" default:"2000"`
	Timeout       time.Duration `json:"timeout" env:"KOLOSAL_AI_TIMEOUT" default:"30s"`
	RetryAttempts int           `json:"retry_attempts" env:"KOLOSAL_AI_RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `json:"retry_delay" env:"KOLOSAL_AI_RETRY_DELAY" default:"1s"`
}

// TelemetryConfig contains observability configuration for metrics and distributed tracing.
// This is an optional module - telemetry is only initialized when Enabled=true.
// Supports OpenTelemetry (OTEL) protocol. The endpoint should be the OTLP receiver address.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" env:"KOLOSAL_TELEMETRY_ENABLED" default:"false"`
	Provider       string  `json:"provider" env:"KOLOSAL_TELEMETRY_PROVIDER" default:"otel"`
	Endpoint       string  `json:"endpoint" env:"KOLOSAL_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string  `json:"service_name" env:"KOLOSAL_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME"`
	MetricsEnabled bool    `json:"metrics_enabled" env:"KOLOSAL_TELEMETRY_METRICS" default:"true"`
	TracingEnabled bool    `json:"tracing_enabled" env:"KOLOSAL_TELEMETRY_TRACING" default:"true"`
	SamplingRate   float64 `json:"sampling_rate" env:"KOLOSAL_TELEMETRY_SAMPLING_RATE" default:"1.0"`
	Insecure       bool    `json:"insecure" env:"KOLOSAL_TELEMETRY_INSECURE" default:"true"`
}

// ResilienceConfig contains fault tolerance and resilience patterns configuration.
// These patterns help protect the system from cascading failures and improve reliability.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
	Retry          RetryConfig          `json:"retry"`
	Timeout        TimeoutConfig        `json:"timeout"`
}

// CircuitBreakerConfig defines circuit breaker pattern settings.
// The circuit breaker prevents cascading failures by failing fast when a threshold
// of errors is reached. After a timeout period, it allows limited requests to test
// if the service has recovered.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" env:"KOLOSAL_CB_ENABLED" default:"false"`
	Threshold        int           `json:"threshold" env:"KOLOSAL_CB_THRESHOLD" default:"5"`
	Timeout          time.Duration `json:"timeout" env:"KOLOSAL_CB_TIMEOUT" default:"30s"`
	HalfOpenRequests int           `json:"half_open_requests" env:"KOLOSAL_CB_HALF_OPEN" default:"3"`
}

// RetryConfig defines retry pattern settings with exponential backoff.
// The retry interval increases exponentially up to MaxInterval.
// Formula: interval = min(InitialInterval * (Multiplier ^ attempt), MaxInterval)
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" env:"KOLOSAL_RETRY_MAX_ATTEMPTS" default:"3"`
	InitialInterval time.Duration `json:"initial_interval" env:"KOLOSAL_RETRY_INITIAL_INTERVAL" default:"1s"`
	MaxInterval     time.Duration `json:"max_interval" env:"KOLOSAL_RETRY_MAX_INTERVAL" default:"30s"`
	Multiplier      float64       `json:"multiplier" env:"KOLOSAL_RETRY_MULTIPLIER" default:"2.0"`
}

// TimeoutConfig defines timeout settings for various operations.
// These timeouts prevent operations from hanging indefinitely.
type TimeoutConfig struct {
	DefaultTimeout time.Duration `json:"default_timeout" env:"KOLOSAL_TIMEOUT_DEFAULT" default:"30s"`
	MaxTimeout     time.Duration `json:"max_timeout" env:"KOLOSAL_TIMEOUT_MAX" default:"5m"`
}

// LoggingConfig contains logging configuration.
// Supports structured (JSON) and human-readable (text) formats.
// In Kubernetes environments, JSON format is recommended for log aggregation.
type LoggingConfig struct {
	Level      string `json:"level" env:"KOLOSAL_LOG_LEVEL" default:"info"`
	Format     string `json:"format" env:"KOLOSAL_LOG_FORMAT" default:"json"`
	Output     string `json:"output" env:"KOLOSAL_LOG_OUTPUT" default:"stdout"`
	TimeFormat string `json:"time_format" env:"KOLOSAL_LOG_TIME_FORMAT" default:"2006-01-02T15:04:05.000Z07:00"`
}

// DevelopmentConfig contains settings for local development and testing.
// When Enabled=true, the framework uses development-friendly defaults:
// human-readable logs, mock services, and debug logging.
//
// WARNING: Never enable development mode in production!
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" env:"KOLOSAL_DEV_MODE" default:"false"`
	MockAI       bool `json:"mock_ai" env:"KOLOSAL_MOCK_AI" default:"false"`
	DebugLogging bool `json:"debug_logging" env:"KOLOSAL_DEBUG" default:"false"`
	PrettyLogs   bool `json:"pretty_logs" env:"KOLOSAL_PRETTY_LOGS" default:"false"`
}

// KubernetesConfig contains Kubernetes-specific settings.
// The framework automatically detects Kubernetes environments by checking
// for the KUBERNETES_SERVICE_HOST environment variable.
// When running in Kubernetes, the framework adjusts defaults for
// containerized environments (e.g., binding to 0.0.0.0, JSON logging).
type KubernetesConfig struct {
	Enabled                bool   `json:"enabled" env:"KUBERNETES_SERVICE_HOST"`
	ServiceName            string `json:"service_name" env:"KOLOSAL_K8S_SERVICE_NAME"`
	ServicePort            int    `json:"service_port" env:"KOLOSAL_K8S_SERVICE_PORT" default:"80"`
	PodName                string `json:"pod_name" env:"HOSTNAME"`
	PodNamespace           string `json:"pod_namespace" env:"KOLOSAL_K8S_NAMESPACE"`
	PodIP                  string `json:"pod_ip" env:"KOLOSAL_K8S_POD_IP"`
	NodeName               string `json:"node_name" env:"KOLOSAL_K8S_NODE_NAME"`
	ServiceAccountPath string `json:"service_account_path" env:"KOLOSAL_K8S_SA_PATH" default:"/var/run/secrets/kubernetes.io/serviceaccount"`
}

// RuntimeConfig holds the knobs the inference-server domain packages
// (download, node, job, workflow, orchestration) read at startup; every
// field is passed on by cmd/kolosal-agentd, to node.New or to a setter.
type RuntimeConfig struct {
	// ModelsDir is the directory node.Manager/autosetup.Manager resolve
	// URL-sourced model paths into.
	ModelsDir string `json:"models_dir" env:"KOLOSAL_MODELS_DIR" default:"models"`

	// NodeIdleTimeout is the autoscaler's unload threshold passed to node.New.
	NodeIdleTimeout time.Duration `json:"node_idle_timeout" env:"KOLOSAL_NODE_IDLE_TIMEOUT" default:"5m"`

	// JobQueueDepth is the per-agent pending-job high-water mark; job.Manager
	// logs a warning once a queue grows past it instead of rejecting work;
	// submission never fails on depth.
	JobQueueDepth int `json:"job_queue_depth" env:"KOLOSAL_JOB_QUEUE_DEPTH" default:"256"`

	// WorkflowStepTimeout is the fallback per-step timeout workflow.Executor
	// applies to a Step whose own TimeoutSeconds is unset (zero).
	WorkflowStepTimeout time.Duration `json:"workflow_step_timeout" env:"KOLOSAL_WORKFLOW_STEP_TIMEOUT" default:"30s"`

	// OrchestratorMaxRounds bounds the DAG scheduler's round loop as a
	// defensive backstop beyond cycle detection in orchestration.Orchestrator.
	OrchestratorMaxRounds int `json:"orchestrator_max_rounds" env:"KOLOSAL_ORCHESTRATOR_MAX_ROUNDS" default:"1000"`
}

// Option is a functional option for configuring the framework.
// Options are applied in order and can return an error if the configuration is invalid.
//
// Example:
//
//	func WithCustomTimeout(timeout time.Duration) Option {
//	    return func(c *Config) error {
//	        if timeout <= 0 {
//	            return fmt.Errorf("timeout must be positive")
//	        }
//	        c.HTTP.ReadTimeout = timeout
//	        return nil
//	    }
//	}
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
// The defaults are adjusted based on the detected environment:
//   - Kubernetes: 0.0.0.0 binding, JSON logging
//   - Local: localhost binding, text logging, development mode
//
// These defaults can be overridden using functional options or environment variables.
func DefaultConfig() *Config {
	cfg := &Config{
		Name:      "kolosal-agentd",
		Port:      8080,
		Address:   "", // Will be set based on environment detection
		Namespace: "default",
		HTTP: HTTPConfig{
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1MB
			ShutdownTimeout:   10 * time.Second,
			EnableHealthCheck: true,
			HealthCheckPath:   "/health",
			CORS: CORSConfig{
				Enabled:          false,
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Content-Type", "Authorization"},
				AllowCredentials: false,
				MaxAge:           86400,
			},
		},
		AI: AIConfig{
			Enabled:       false,
			Provider:      "openai",
			Model:         "gpt-4",
			Temperature:   0.7,
			MaxTokens:     2000,
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    1 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Provider:       "otel",
			MetricsEnabled: true,
			TracingEnabled: true,
			SamplingRate:   1.0,
			Insecure:       true,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          false,
				Threshold:        5,
				Timeout:          30 * time.Second,
				HalfOpenRequests: 3,
			},
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 1 * time.Second,
				MaxInterval:     30 * time.Second,
				Multiplier:      2.0,
			},
			Timeout: TimeoutConfig{
				DefaultTimeout: 30 * time.Second,
				MaxTimeout:     5 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: time.RFC3339Nano,
		},
		Development: DevelopmentConfig{
			Enabled:      false,
			MockAI:       false,
			DebugLogging: false,
			PrettyLogs:   false,
		},
		Kubernetes: KubernetesConfig{
			ServicePort:        80,
			ServiceAccountPath: "/var/run/secrets/kubernetes.io/serviceaccount",
		},
		Runtime: RuntimeConfig{
			ModelsDir:             "models",
			NodeIdleTimeout:       5 * time.Minute,
			JobQueueDepth:         256,
			WorkflowStepTimeout:   30 * time.Second,
			OrchestratorMaxRounds: 1000,
		},
	}

	// Detect environment and adjust defaults
	cfg.DetectEnvironment()

	return cfg
}

// DetectEnvironment automatically adjusts configuration based on the detected environment.
// This method is called automatically by DefaultConfig() and should not be called directly
// unless you're implementing custom environment detection logic.
//
// Detection criteria:
//   - Kubernetes: KUBERNETES_SERVICE_HOST environment variable is set
//   - Local: No Kubernetes environment variables detected
func (c *Config) DetectEnvironment() {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		// Kubernetes environment detected
		c.Kubernetes.Enabled = true
		c.Address = "0.0.0.0"     // Bind to all interfaces in K8s
		c.Logging.Format = "json" // Structured logs for K8s
	} else {
		// Local development environment
		c.Address = "localhost"

		// Enable development mode for local
		if os.Getenv("KOLOSAL_DEV_MODE") == "" {
			c.Development.Enabled = true
			c.Development.PrettyLogs = true
			c.Logging.Format = "text" // Human-readable logs
		}
	}
}

// LoadFromEnv loads configuration from environment variables and validates the result.
// Environment variables take precedence over defaults but are overridden by functional options.
//
// Variable naming convention:
//   - Framework-specific: KOLOSAL_<SETTING>
//   - Standard variables: OPENAI_API_KEY, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_SERVICE_NAME
//
// Returns an error if environment variables contain invalid values or if validation fails.
func (c *Config) LoadFromEnv() error {
	if c.logger != nil {
		c.logger.Info("Loading configuration from environment", map[string]interface{}{
			"config_source": "environment_variables",
		})
	}

	envVarsLoaded := 0

	// Core settings
	if v := os.Getenv("KOLOSAL_AGENT_NAME"); v != "" {
		c.Name = v
		envVarsLoaded++
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{
				"setting": "agent_name",
				"source":  "KOLOSAL_AGENT_NAME",
				"set":     true,
			})
		}
	}
	if v := os.Getenv("KOLOSAL_AGENT_ID"); v != "" {
		c.ID = v
		envVarsLoaded++
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{
				"setting": "agent_id",
				"source":  "KOLOSAL_AGENT_ID",
				"set":     true,
			})
		}
	}
	if v := os.Getenv("KOLOSAL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
			envVarsLoaded++
			if c.logger != nil {
				c.logger.Debug("Configuration loaded", map[string]interface{}{
					"setting": "port",
					"source":  "KOLOSAL_PORT",
					"set":     true,
				})
			}
		} else if c.logger != nil {
			c.logger.Warn("Invalid port in environment variable", map[string]interface{}{
				"KOLOSAL_PORT": v,
				"error":       err,
				"error_type":  fmt.Sprintf("%T", err),
			})
		}
	}
	if v := os.Getenv("KOLOSAL_ADDRESS"); v != "" {
		c.Address = v
		envVarsLoaded++
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{
				"setting": "address",
				"source":  "KOLOSAL_ADDRESS",
				"set":     true,
			})
		}
	}
	if v := os.Getenv("KOLOSAL_NAMESPACE"); v != "" {
		c.Namespace = v
		envVarsLoaded++
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{
				"setting": "namespace",
				"source":  "KOLOSAL_NAMESPACE",
				"set":     true,
			})
		}
	}

	// HTTP settings
	if v := os.Getenv("KOLOSAL_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("KOLOSAL_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.WriteTimeout = d
		}
	}

	// CORS settings
	if v := os.Getenv("KOLOSAL_CORS_ENABLED"); v != "" {
		c.HTTP.CORS.Enabled = parseBool(v)
	}
	if v := os.Getenv("KOLOSAL_CORS_ORIGINS"); v != "" {
		c.HTTP.CORS.AllowedOrigins = parseStringList(v)
	}
	if v := os.Getenv("KOLOSAL_CORS_METHODS"); v != "" {
		c.HTTP.CORS.AllowedMethods = parseStringList(v)
	}
	if v := os.Getenv("KOLOSAL_CORS_HEADERS"); v != "" {
		c.HTTP.CORS.AllowedHeaders = parseStringList(v)
	}
	if v := os.Getenv("KOLOSAL_CORS_CREDENTIALS"); v != "" {
		c.HTTP.CORS.AllowCredentials = parseBool(v)
	}

	// AI settings
	if v := os.Getenv("KOLOSAL_AI_ENABLED"); v != "" {
		c.AI.Enabled = parseBool(v)
	}
	if v := os.Getenv("KOLOSAL_AI_API_KEY"); v != "" {
		c.AI.APIKey = v
		c.AI.Enabled = true // Auto-enable if API key is provided
		envVarsLoaded++
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{
				"setting": "ai_api_key",
				"source":  "KOLOSAL_AI_API_KEY",
				"set":     true,
			})
		}
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.AI.APIKey = v
		c.AI.Enabled = true // Auto-enable if OpenAI key is present
		envVarsLoaded++
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{
				"setting": "ai_api_key",
				"source":  "OPENAI_API_KEY",
				"set":     true,
			})
		}
	}
	if v := os.Getenv("KOLOSAL_AI_PROVIDER"); v != "" {
		c.AI.Provider = v
	}
	if v := os.Getenv("KOLOSAL_AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv("KOLOSAL_AI_BASE_URL"); v != "" {
		c.AI.BaseURL = v
	}

	// Telemetry settings
	if v := os.Getenv("KOLOSAL_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("KOLOSAL_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true // Auto-enable if endpoint is provided
		envVarsLoaded++
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{
				"setting": "telemetry_endpoint",
				"source":  "KOLOSAL_TELEMETRY_ENDPOINT",
				"set":     true,
			})
		}
	} else if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true // Auto-enable if OTEL endpoint is present
		envVarsLoaded++
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{
				"setting": "telemetry_endpoint",
				"source":  "OTEL_EXPORTER_OTLP_ENDPOINT",
				"set":     true,
			})
		}
	}
	if v := os.Getenv("KOLOSAL_TELEMETRY_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name // Default to agent name
	}

	// Logging settings
	if v := os.Getenv("KOLOSAL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KOLOSAL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	// Development settings
	if v := os.Getenv("KOLOSAL_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
		if c.Development.Enabled {
			c.Development.PrettyLogs = true
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
	}
	if v := os.Getenv("KOLOSAL_MOCK_AI"); v != "" {
		c.Development.MockAI = parseBool(v)
	}
	if v := os.Getenv("KOLOSAL_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
		if c.Development.DebugLogging {
			c.Logging.Level = "debug"
		}
	}

	// Kubernetes settings (auto-detect)
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Kubernetes.Enabled = true
		if v := os.Getenv("HOSTNAME"); v != "" {
			c.Kubernetes.PodName = v
		}
		if v := os.Getenv("KOLOSAL_K8S_NAMESPACE"); v != "" {
			c.Kubernetes.PodNamespace = v
		}
		// Try to read namespace from service account
		if c.Kubernetes.PodNamespace == "" {
			if data, err := os.ReadFile(c.Kubernetes.ServiceAccountPath + "/namespace"); err == nil {
				c.Kubernetes.PodNamespace = strings.TrimSpace(string(data))
			}
		}
		if v := os.Getenv("KOLOSAL_K8S_SERVICE_NAME"); v != "" {
			c.Kubernetes.ServiceName = v
		}
		if v := os.Getenv("KOLOSAL_K8S_SERVICE_PORT"); v != "" {
			if port, err := strconv.Atoi(v); err == nil && port > 0 && port <= 65535 {
				c.Kubernetes.ServicePort = port
			}
		}
		if v := os.Getenv("KOLOSAL_K8S_POD_IP"); v != "" {
			c.Kubernetes.PodIP = v
		}
		if v := os.Getenv("KOLOSAL_K8S_NODE_NAME"); v != "" {
			c.Kubernetes.NodeName = v
		}
	}

	// Runtime settings (download/node/job/workflow/orchestration)
	if v := os.Getenv(EnvModelsDir); v != "" {
		c.Runtime.ModelsDir = v
	}
	if v := os.Getenv("KOLOSAL_NODE_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Runtime.NodeIdleTimeout = d
		} else if c.logger != nil {
			c.logger.Debug("Invalid KOLOSAL_NODE_IDLE_TIMEOUT, using default", map[string]interface{}{"value": v})
		}
	}
	if v := os.Getenv("KOLOSAL_JOB_QUEUE_DEPTH"); v != "" {
		if depth, err := strconv.Atoi(v); err == nil && depth > 0 {
			c.Runtime.JobQueueDepth = depth
		} else if c.logger != nil {
			c.logger.Debug("Invalid KOLOSAL_JOB_QUEUE_DEPTH, using default", map[string]interface{}{"value": v})
		}
	}
	if v := os.Getenv("KOLOSAL_WORKFLOW_STEP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Runtime.WorkflowStepTimeout = d
		} else if c.logger != nil {
			c.logger.Debug("Invalid KOLOSAL_WORKFLOW_STEP_TIMEOUT, using default", map[string]interface{}{"value": v})
		}
	}
	if v := os.Getenv("KOLOSAL_ORCHESTRATOR_MAX_ROUNDS"); v != "" {
		if rounds, err := strconv.Atoi(v); err == nil && rounds > 0 {
			c.Runtime.OrchestratorMaxRounds = rounds
		} else if c.logger != nil {
			c.logger.Debug("Invalid KOLOSAL_ORCHESTRATOR_MAX_ROUNDS, using default", map[string]interface{}{"value": v})
		}
	}

	if err := c.Validate(); err != nil {
		if c.logger != nil {
			c.logger.Error("Configuration validation failed", map[string]interface{}{
				"error":         err.Error(),
				"error_type":    fmt.Sprintf("%T", err),
				"config_source": "environment_variables",
			})
		}
		return err
	}

	if c.logger != nil {
		c.logger.Info("Configuration loading completed", map[string]interface{}{
			"logging_level":    c.Logging.Level,
			"namespace":        c.Namespace,
			"development_mode": c.Development.Enabled,
		})
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file.
// The file should contain a JSON object matching the Config struct.
// File settings override environment variables but are overridden by functional options.
//
// Example JSON:
//
//	{
//	    "name": "my-agent",
//	    "port": 8080,
//	    "http": {
//	        "cors": {
//	            "enabled": true,
//	            "allowed_origins": ["https://example.com"]
//	        }
//	    }
//	}
func (c *Config) LoadFromFile(path string) error {
	if c.logger != nil {
		c.logger.Info("Loading configuration from file", map[string]interface{}{
			"file_path": path,
		})
	}

	// Clean the path to prevent directory traversal attacks
	cleanPath := filepath.Clean(path)

	// Verify the file has a safe extension
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		if c.logger != nil {
			c.logger.Error("Unsupported config file extension", map[string]interface{}{
				"file_path":         path,
				"clean_path":        cleanPath,
				"extension":         ext,
				"supported_formats": []string{".json", ".yaml", ".yml"},
			})
		}
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	// Check if the path is absolute and within expected directories
	if !filepath.IsAbs(cleanPath) {
		// If relative, resolve it relative to current directory
		wd, err := os.Getwd()
		if err != nil {
			if c.logger != nil {
				c.logger.Error("Failed to get working directory for relative config path", map[string]interface{}{
					"error":      err,
					"error_type": fmt.Sprintf("%T", err),
					"clean_path": cleanPath,
				})
			}
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		cleanPath = filepath.Join(wd, cleanPath)
		
		if c.logger != nil {
			c.logger.Debug("Resolved relative config path", map[string]interface{}{
				"original_path": path,
				"resolved_path": cleanPath,
				"working_dir":   wd,
			})
		}
	}

	if c.logger != nil {
		c.logger.Debug("Reading configuration file", map[string]interface{}{
			"file_path": cleanPath,
			"extension": ext,
		})
	}

	// Read the file with the cleaned path
	data, err := os.ReadFile(filepath.Clean(cleanPath)) // nosec G304 -- path is validated
	if err != nil {
		if c.logger != nil {
			c.logger.Error("Failed to read config file", map[string]interface{}{
				"error":      err,
				"error_type": fmt.Sprintf("%T", err),
				"file_path":  cleanPath,
			})
		}
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	if c.logger != nil {
		c.logger.Debug("Config file read successfully", map[string]interface{}{
			"file_path": cleanPath,
			"file_size": len(data),
		})
	}

	// Parse based on extension
	switch ext {
	case ".json":
		if c.logger != nil {
			c.logger.Debug("Parsing JSON configuration file", map[string]interface{}{
				"file_path": cleanPath,
			})
		}
		
		if err := json.Unmarshal(data, c); err != nil {
			if c.logger != nil {
				c.logger.Error("Failed to parse JSON config file", map[string]interface{}{
					"error":      err,
					"error_type": fmt.Sprintf("%T", err),
					"file_path":  cleanPath,
					"file_size":  len(data),
				})
			}
			return fmt.Errorf("failed to parse JSON config file: %w", ErrInvalidConfiguration)
		}
		
		if c.logger != nil {
			c.logger.Info("Configuration file loaded successfully", map[string]interface{}{
				"file_path": cleanPath,
				"format":    "JSON",
				"file_size": len(data),
			})
		}
		
	case ".yaml", ".yml":
		if c.logger != nil {
			c.logger.Error("YAML configuration files not supported", map[string]interface{}{
				"file_path":         cleanPath,
				"extension":         ext,
				"supported_formats": []string{".json"},
			})
		}
		// For YAML support, we'd need to import gopkg.in/yaml.v3
		// For now, return an error for YAML files
		return fmt.Errorf("YAML config files not yet supported: %w", ErrInvalidConfiguration)
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
// This method is called automatically by NewConfig() but can also be called
// manually after modifying configuration.
//
// Validation rules:
//   - Port must be between 1 and 65535
//   - Agent name is required
//   - AI API key is required when AI is enabled (unless using mock)
//   - Telemetry endpoint is required when telemetry is enabled
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		// Preserve exact message for test compatibility
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid port: %d", c.Port),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Name == "" {
		// Preserve exact message for test compatibility
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "agent name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.AI.Enabled && c.AI.APIKey == "" && !c.Development.MockAI {
		// Preserve exact message for test compatibility
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "AI API key is required when AI is enabled (or use mock AI in development)",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		// Preserve exact message for test compatibility
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "telemetry endpoint is required when telemetry is enabled",
			Err:     ErrMissingConfiguration,
		}
	}

	return nil
}

// Helper functions

// parseStringList splits a comma-separated string into a slice of strings.
// Whitespace is trimmed from each element, and empty strings are filtered out.
// Example: "a, b, c" -> ["a", "b", "c"]
func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// Everything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Functional Options

// WithName sets the agent name.
// The name is used for identification in service discovery and logging.
// If not set, defaults to "kolosal-agentd".
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithPort sets the HTTP server port.
// Must be between 1 and 65535.
// Returns an error if the port is invalid.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port < 1 || port > 65535 {
			// Preserve exact message for test compatibility
			return &FrameworkError{
				Op:      "WithPort",
				Kind:    "config",
				Message: fmt.Sprintf("invalid port: %d", port),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.Port = port
		return nil
	}
}

// WithAddress sets the bind address for the HTTP server.
// Common values:
//   - "localhost" or "127.0.0.1" for local only
//   - "0.0.0.0" for all interfaces (required in containers)
//   - Specific IP for multi-homed hosts
func WithAddress(address string) Option {
	return func(c *Config) error {
		c.Address = address
		return nil
	}
}

// WithNamespace sets the logical namespace for the agent.
// Used for multi-tenancy and environment separation (e.g., "production", "staging").
// This is a logical grouping, not a Kubernetes namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) error {
		c.Namespace = namespace
		return nil
	}
}

// WithCORS enables CORS with specific allowed origins.
// Supports wildcard patterns:
//   - "*" allows all origins (not recommended for production)
//   - "*.example.com" allows all subdomains
//   - "http://localhost:*" allows any localhost port
//
// The credentials parameter controls whether cookies and auth headers are allowed.
// Be cautious when enabling credentials with wildcard origins.
func WithCORS(origins []string, credentials bool) Option {
	return func(c *Config) error {
		c.HTTP.CORS.Enabled = true
		c.HTTP.CORS.AllowedOrigins = origins
		c.HTTP.CORS.AllowCredentials = credentials
		return nil
	}
}

// WithCORSDefaults enables CORS with permissive defaults.
// Allows all origins, methods, and headers with credentials.
//
// WARNING: This is intended for development only!
// Never use this in production as it bypasses CORS security.
func WithCORSDefaults() Option {
	return func(c *Config) error {
		c.HTTP.CORS.Enabled = true
		c.HTTP.CORS.AllowedOrigins = []string{"*"}
		c.HTTP.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}
		c.HTTP.CORS.AllowedHeaders = []string{"*"}
		c.HTTP.CORS.AllowCredentials = true
		return nil
	}
}

// WithOpenAIAPIKey sets the OpenAI API key and automatically enables AI features.
// The key should be a valid OpenAI API key starting with "sk-".
// This is a convenience method equivalent to:
//
//	WithAI(true, "openai", key)
//
// For security, prefer loading the key from environment variables or secrets.
func WithOpenAIAPIKey(key string) Option {
	return func(c *Config) error {
		c.AI.Enabled = true
		c.AI.Provider = "openai"
		c.AI.APIKey = key
		return nil
	}
}

// WithAI configures AI client settings.
// Parameters:
//   - enabled: Whether to initialize AI features
//   - provider: AI provider ("openai", "anthropic", "mock")
//   - apiKey: API key for the provider (not needed for "mock")
//
// When enabled=false, AI features are completely disabled regardless of other settings.
func WithAI(enabled bool, provider, apiKey string) Option {
	return func(c *Config) error {
		c.AI.Enabled = enabled
		c.AI.Provider = provider
		c.AI.APIKey = apiKey
		return nil
	}
}

// WithAIModel sets the AI model to use.
// Common values:
//   - OpenAI: "gpt-4", "gpt-4-turbo", "gpt-3.5-turbo"
//   - Anthropic: "claude-3-5-sonnet-20241022", "claude-3-opus-20240229"
//
// Check your provider's documentation for available models.
func WithAIModel(model string) Option {
	return func(c *Config) error {
		c.AI.Model = model
		return nil
	}
}

// WithTelemetry enables telemetry with the specified endpoint.
// The endpoint should be an OpenTelemetry Protocol (OTLP) receiver.
// Examples:
//   - "http://localhost:4317" (local Jaeger)
//   - "http://otel-collector:4317" (Kubernetes)
//   - "https://otel.example.com:443" (cloud provider)
//
// When enabled, both metrics and tracing are collected by default.
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Endpoint = endpoint
		if c.Telemetry.ServiceName == "" {
			c.Telemetry.ServiceName = c.Name
		}
		return nil
	}
}

// WithEnableMetrics enables or disables metrics collection.
// Metrics include request counts, latencies, error rates, etc.
// Requires telemetry to be enabled with an endpoint.
// Metrics are exported via OpenTelemetry protocol.
func WithEnableMetrics(enabled bool) Option {
	return func(c *Config) error {
		c.Telemetry.MetricsEnabled = enabled
		if enabled && c.Telemetry.Endpoint != "" {
			c.Telemetry.Enabled = true
		}
		return nil
	}
}

// WithEnableTracing enables or disables distributed tracing.
// Tracing provides detailed request flow across services.
// Requires telemetry to be enabled with an endpoint.
// Traces are exported via OpenTelemetry protocol.
func WithEnableTracing(enabled bool) Option {
	return func(c *Config) error {
		c.Telemetry.TracingEnabled = enabled
		if enabled && c.Telemetry.Endpoint != "" {
			c.Telemetry.Enabled = true
		}
		return nil
	}
}

// WithOTELEndpoint sets the OpenTelemetry endpoint and automatically enables telemetry.
// This is a convenience method equivalent to:
//
//	WithTelemetry(true, endpoint)
//
// The endpoint should be an OTLP receiver address.
func WithOTELEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.Provider = "otel"
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithLogLevel sets the minimum logging level.
// Valid levels (from least to most verbose):
//   - "error": Only errors
//   - "warn": Warnings and above
//   - "info": Informational messages and above (default)
//   - "debug": Debug messages and above
//
// Debug level should not be used in production due to performance impact.
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging output format.
// Valid formats:
//   - "json": Structured JSON for log aggregation (recommended for production)
//   - "text": Human-readable format (recommended for development)
//
// JSON format is automatically selected in Kubernetes environments.
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithCircuitBreaker enables the circuit breaker pattern for fault tolerance.
// Parameters:
//   - threshold: Number of consecutive failures before opening the circuit
//   - timeout: Duration to wait before attempting to close the circuit
//
// The circuit breaker prevents cascading failures by failing fast when
// a service is unhealthy, giving it time to recover.
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.CircuitBreaker.Enabled = true
		c.Resilience.CircuitBreaker.Threshold = threshold
		c.Resilience.CircuitBreaker.Timeout = timeout
		return nil
	}
}

// WithRetry configures automatic retry with exponential backoff.
// Parameters:
//   - maxAttempts: Maximum number of retry attempts (including initial)
//   - initialInterval: Initial delay between retries
//
// The retry interval doubles after each failure up to MaxInterval.
// Use this for transient failures like network issues.
func WithRetry(maxAttempts int, initialInterval time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.Retry.MaxAttempts = maxAttempts
		c.Resilience.Retry.InitialInterval = initialInterval
		return nil
	}
}

// WithConfigFile loads configuration from a JSON file.
// The file path can be absolute or relative to the working directory.
// Options are applied in list order, so options listed after this one
// override file settings and options listed before it are overridden.
//
// This is useful for complex configurations or environment-specific settings.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// WithDevelopmentMode enables development mode with developer-friendly defaults.
// When enabled:
//   - Pretty (human-readable) logs
//   - Debug log level
//   - Text log format
//
// WARNING: Never enable in production! This mode sacrifices
// performance and security for developer convenience.
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		if enabled {
			c.Development.PrettyLogs = true
			c.Logging.Format = "text"
			c.Logging.Level = "debug"
		}
		return nil
	}
}

// WithMockAI enables mock AI responses for testing without API calls.
// When enabled, the AI client returns predetermined responses instead
// of making actual API calls. Useful for:
//   - Unit testing
//   - Development without API keys
//   - Cost savings during development
//
// Mock responses are deterministic but not intelligent.
func WithMockAI(enabled bool) Option {
	return func(c *Config) error {
		c.Development.MockAI = enabled
		if enabled {
			c.AI.Enabled = true // Enable AI with mock provider
		}
		return nil
	}
}

// WithLogger sets a logger for configuration operations.
// This logger will be used for logging during config loading, parsing, and validation.
// If not set, configuration operations will be performed silently.
//
// Example:
//
//	cfg, err := NewConfig(
//	    WithLogger(myLogger),
//	    WithName("my-agent"),
//	)
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// NewConfig creates a new configuration with the provided options.
// Configuration is applied in the following order:
//  1. Default values from DefaultConfig()
//  2. Environment variables via LoadFromEnv()
//  3. Functional options (highest priority)
//  4. Validation via Validate()
//
// Returns an error if any option fails or if the final configuration is invalid.
//
// Example:
//
//	cfg, err := NewConfig(
//	    WithName("kolosal-agentd"),
//	    WithPort(8080),
//	    WithCORS([]string{"https://console.kolosal.ai"}, true),
//	)
//	if err != nil {
//	    return err
//	}
func NewConfig(opts ...Option) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Load from environment first (includes validation)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	// Apply functional options (these override env vars)
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		logger := NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)

		// Track for metrics enabling when telemetry available
		if prodLogger, ok := logger.(*ProductionLogger); ok {
			trackLogger(prodLogger)
		}

		cfg.logger = logger
	}

	// Validate final configuration after options applied
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ============================================================================
// ProductionLogger Implementation - Layered Observability Architecture
// ============================================================================

// Log level names as stored on ProductionLogger.level
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// ProductionLogger provides layered observability for framework operations
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer

	// Metrics layer (enabled when telemetry available)
	metricsEnabled bool
}

// NewProductionLogger creates a logger from LoggingConfig
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	return &ProductionLogger{
		level:          strings.ToLower(logging.Level),
		debug:          dev.DebugLogging || logging.Level == "debug",
		serviceName:    serviceName,
		component:      "framework/core",
		format:         logging.Format,
		output:         output,
		metricsEnabled: false, // Enabled by telemetry module when available
	}
}

// EnableMetrics is called by telemetry module to enable metrics layer
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

// WithComponent returns a copy of this logger with component as its
// component label, implementing ComponentAwareLogger. The copy shares the
// parent's output writer and configuration.
func (p *ProductionLogger) WithComponent(component string) Logger {
	child := *p
	child.component = component
	return &child
}

// createComponentLogger creates a component-specific logger if the logger
// supports it. Falls back to the original logger if ComponentAwareLogger is
// not implemented.
func createComponentLogger(logger Logger, componentName string) Logger {
	if cal, ok := logger.(ComponentAwareLogger); ok {
		return cal.WithComponent(componentName)
	}
	return logger
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

// Core logging implementation with all three layers
func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		// Structured logging for production log aggregation
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}

		// LAYER 3: Add trace context when available
		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); len(baggage) > 0 {
				for k, v := range baggage {
					logEntry["trace."+k] = v
				}
			}
		}

		// Add all fields
		for k, v := range fields {
			logEntry[k] = v
		}

		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		// Human-readable for local development
		traceInfo := ""
		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); baggage["request_id"] != "" {
				traceInfo = fmt.Sprintf("[req=%s] ", baggage["request_id"])
			}
		}

		var fieldStr strings.Builder
		if len(fields) > 0 {
			fieldStr.WriteString(" ")
			for k, v := range fields {
				fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
			}
		}

		fmt.Fprintf(p.output, "%s [%s] [%s] %s%s%s\n",
			timestamp, level, p.serviceName, traceInfo, msg, fieldStr.String())
	}

	if p.metricsEnabled {
		p.emitFrameworkMetric(level, msg, fields, ctx)
	}
}

// Metrics emission with cardinality protection
func (p *ProductionLogger) emitFrameworkMetric(level, msg string, fields map[string]interface{}, ctx context.Context) {
	// Build labels with cardinality awareness
	labels := []string{
		"level", level,
		"service", p.serviceName,
		"component", p.component,
	}

	// Add only low-cardinality fields as labels
	for k, v := range fields {
		switch k {
		case "operation", "status", "error_type", "service_type", "provider":
			labels = append(labels, k, fmt.Sprintf("%v", v))
		}
	}

	// Emit with context when available (enables correlation)
	if ctx != nil {
		emitMetricWithContext(ctx, "kolosal.framework.operations", 1.0, labels...)
	} else {
		emitMetric("kolosal.framework.operations", 1.0, labels...)
	}
}

// Helper functions for weak coupling to telemetry
func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

func getContextBaggage(ctx context.Context) map[string]string {
	if globalMetricsRegistry != nil {
		return globalMetricsRegistry.GetBaggage(ctx)
	}
	return make(map[string]string)
}
