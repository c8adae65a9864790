// Package openai registers the OpenAI chat-completions provider with the ai
// registry. Importing it for side effects is enough:
//
//	import _ "github.com/kolosalai/kolosal-agentd/ai/providers/openai"
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/kolosalai/kolosal-agentd/ai"
	"github.com/kolosalai/kolosal-agentd/core"
)

const defaultBaseURL = "https://api.openai.com/v1"

func init() {
	if err := ai.Register(&Factory{}); err != nil {
		panic(fmt.Sprintf("failed to register openai AI provider: %v", err))
	}
}

// Factory creates OpenAI clients.
type Factory struct{}

func (f *Factory) Name() string        { return "openai" }
func (f *Factory) Description() string { return "OpenAI chat completions (GPT models)" }
func (f *Factory) Priority() int       { return 100 }

// DetectEnvironment reports available when OPENAI_API_KEY is set.
func (f *Factory) DetectEnvironment() (int, bool) {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return f.Priority(), true
	}
	return 0, false
}

// Create builds a client from cfg, falling back to OPENAI_API_KEY when the
// config carries no key.
func (f *Factory) Create(config *ai.AIConfig) core.AIClient {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := config.Model
	if model == "" {
		model = "gpt-4"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: timeout},
		logger:  config.Logger,
	}
}

// Client is a config-resolved OpenAI chat-completions caller.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	logger  core.Logger
}

// GenerateResponse implements core.AIClient.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	return ai.GenerateChatCompletion(ctx, c.http, c.baseURL, c.apiKey, c.model, prompt, options, c.logger)
}
