package ai

import (
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
)

// ProviderAuto asks NewClient to pick the highest-priority provider whose
// environment detection succeeds.
const ProviderAuto = "auto"

// AIConfig is the resolved option set a ProviderFactory builds a client
// from.
type AIConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	Logger      core.Logger

	// explicitProvider distinguishes "caller chose a provider, even an
	// empty or unknown name" from "auto-detect": an explicit choice fails
	// fast rather than silently falling back.
	explicitProvider bool
}

// AIOption mutates an AIConfig during NewClient.
type AIOption func(*AIConfig)

// WithProvider selects a registered provider by name.
func WithProvider(provider string) AIOption {
	return func(c *AIConfig) {
		c.Provider = provider
		c.explicitProvider = true
	}
}

// WithAPIKey sets the credential passed to the provider.
func WithAPIKey(key string) AIOption {
	return func(c *AIConfig) { c.APIKey = key }
}

// WithBaseURL overrides the provider's default API endpoint.
func WithBaseURL(url string) AIOption {
	return func(c *AIConfig) { c.BaseURL = url }
}

// WithModel sets the default model requested when AIOptions leaves it empty.
func WithModel(model string) AIOption {
	return func(c *AIConfig) { c.Model = model }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(temp float32) AIOption {
	return func(c *AIConfig) { c.Temperature = temp }
}

// WithMaxTokens sets the default completion token budget.
func WithMaxTokens(tokens int) AIOption {
	return func(c *AIConfig) { c.MaxTokens = tokens }
}

// WithTimeout bounds each provider HTTP request.
func WithTimeout(timeout time.Duration) AIOption {
	return func(c *AIConfig) { c.Timeout = timeout }
}

// WithMaxRetries sets AIConfig.MaxRetries. The bundled provider clients do
// not read it: each makes a single attempt per request.
func WithMaxRetries(retries int) AIOption {
	return func(c *AIConfig) { c.MaxRetries = retries }
}

// WithLogger attaches a logger for request/response logging.
func WithLogger(logger core.Logger) AIOption {
	return func(c *AIConfig) { c.Logger = logger }
}

// ProviderFactory is one registered provider: it names itself, reports
// whether the current environment can use it, and builds clients.
type ProviderFactory interface {
	// Name is the registry key WithProvider matches against.
	Name() string

	// Description is a one-line human summary for listings.
	Description() string

	// Priority orders providers during auto-detection; higher wins.
	Priority() int

	// DetectEnvironment reports whether this provider is usable right now
	// (credentials present) and at what priority.
	DetectEnvironment() (priority int, available bool)

	// Create builds a client from the resolved config.
	Create(config *AIConfig) core.AIClient
}
