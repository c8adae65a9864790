package agent

import (
	"os"

	"gopkg.in/yaml.v3"
)

// SystemConfig is the top-level "system" block: worker pool sizing, log
// verbosity, and health-check cadence.
type SystemConfig struct {
	WorkerThreads           int    `yaml:"worker_threads"`
	LogLevel                string `yaml:"log_level"`
	HealthCheckIntervalSecs int    `yaml:"health_check_interval_seconds"`
}

// LLMConfig is one agent's default model binding, merged into inference/llm
// function calls that don't override these fields in their params.
type LLMConfig struct {
	ModelName     string   `yaml:"model_name"`
	APIEndpoint   string   `yaml:"api_endpoint"`
	Temperature   float64  `yaml:"temperature"`
	MaxTokens     int      `yaml:"max_tokens"`
	StopSequences []string `yaml:"stop_sequences"`
}

// AgentConfig describes one fleet member.
type AgentConfig struct {
	Name         string    `yaml:"name"`
	Type         string    `yaml:"type"`
	Role         string    `yaml:"role"`
	SystemPrompt string    `yaml:"system_prompt"`
	Capabilities []string  `yaml:"capabilities"`
	Functions    []string  `yaml:"functions"`
	LLM          LLMConfig `yaml:"llm"`
	AutoStart    bool      `yaml:"auto_start"`
}

// FunctionConfig describes one callable referenced by name from an
// AgentConfig.Functions list.
type FunctionConfig struct {
	Name           string                 `yaml:"name"`
	Type           string                 `yaml:"type"`
	Description    string                 `yaml:"description"`
	Parameters     map[string]interface{} `yaml:"parameters"`
	Implementation string                 `yaml:"implementation"`
	Endpoint       string                 `yaml:"endpoint"`
	AsyncCapable   bool                   `yaml:"async_capable"`
	TimeoutMs      int                    `yaml:"timeout_ms"`
}

// Config is the full "system/agents/functions" document.
type Config struct {
	System    SystemConfig     `yaml:"system"`
	Agents    []AgentConfig    `yaml:"agents"`
	Functions []FunctionConfig `yaml:"functions"`
}

// LoadConfig reads and parses a YAML config document from path.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
