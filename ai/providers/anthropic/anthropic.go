// Package anthropic registers the Anthropic messages-API provider with the
// ai registry. Importing it for side effects is enough:
//
//	import _ "github.com/kolosalai/kolosal-agentd/ai/providers/anthropic"
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/kolosalai/kolosal-agentd/ai"
	"github.com/kolosalai/kolosal-agentd/core"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

func init() {
	if err := ai.Register(&Factory{}); err != nil {
		panic(fmt.Sprintf("failed to register anthropic AI provider: %v", err))
	}
}

// Factory creates Anthropic clients.
type Factory struct{}

func (f *Factory) Name() string        { return "anthropic" }
func (f *Factory) Description() string { return "Anthropic messages API (Claude models)" }
func (f *Factory) Priority() int       { return 90 }

// DetectEnvironment reports available when ANTHROPIC_API_KEY is set.
func (f *Factory) DetectEnvironment() (int, bool) {
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return f.Priority(), true
	}
	return 0, false
}

// Create builds a client from cfg, falling back to ANTHROPIC_API_KEY when
// the config carries no key.
func (f *Factory) Create(config *ai.AIConfig) core.AIClient {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := config.Model
	if model == "" {
		model = "claude-3-5-sonnet-latest"
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

// Client is a config-resolved Anthropic messages-API caller.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	logger  core.Logger
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateResponse implements core.AIClient over the messages API.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	model := c.model
	maxTokens := 1024
	var temperature float32
	systemPrompt := ""
	if options != nil {
		if options.Model != "" {
			model = options.Model
		}
		if options.MaxTokens > 0 {
			maxTokens = options.MaxTokens
		}
		temperature = options.Temperature
		systemPrompt = options.SystemPrompt
	}

	body, err := json.Marshal(messagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      systemPrompt,
		Temperature: temperature,
		Messages:    []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: reading response: %w", err)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("anthropic: decoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(raw)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("%w: status %d: %s", core.ErrRequestFailed, resp.StatusCode, msg)
	}

	content := ""
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	if c.logger != nil {
		c.logger.Debug("anthropic completion finished", map[string]interface{}{
			"model":       parsed.Model,
			"duration_ms": time.Since(start).Milliseconds(),
			"tokens":      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		})
	}

	return &core.AIResponse{
		Content: content,
		Model:   parsed.Model,
		Usage: core.TokenUsage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}, nil
}
