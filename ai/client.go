package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient is the bare fallback client used when no registered provider
// resolves: a direct OpenAI-compatible chat-completions caller with no
// registry involvement. The openai provider package wraps the same wire
// format with environment detection on top.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	logger  core.Logger
}

// NewOpenAIClient builds a fallback client against the public OpenAI
// endpoint.
func NewOpenAIClient(apiKey string, logger core.Logger) *OpenAIClient {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: defaultOpenAIBaseURL,
		model:   "gpt-4",
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// SetBaseURL points the client at an OpenAI-compatible server other than
// the default (a local proxy, a test server).
func (c *OpenAIClient) SetBaseURL(url string) {
	if url != "" {
		c.baseURL = url
	}
}

// GenerateResponse implements core.AIClient over the chat-completions wire
// format.
func (c *OpenAIClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	return generateChatCompletion(ctx, c.http, c.baseURL, c.apiKey, c.model, prompt, options, c.logger)
}

// chatCompletionRequest/chatCompletionResponse mirror the OpenAI
// chat-completions wire shapes, shared with the openai provider package's
// client via this package-level helper.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GenerateChatCompletion issues one OpenAI-style chat completion against an
// arbitrary base URL. Exported for the openai provider package, which
// shares the wire format but layers config resolution on top.
func GenerateChatCompletion(ctx context.Context, httpClient *http.Client, baseURL, apiKey, defaultModel, prompt string, options *core.AIOptions, logger core.Logger) (*core.AIResponse, error) {
	return generateChatCompletion(ctx, httpClient, baseURL, apiKey, defaultModel, prompt, options, logger)
}

func generateChatCompletion(ctx context.Context, httpClient *http.Client, baseURL, apiKey, defaultModel, prompt string, options *core.AIOptions, logger core.Logger) (*core.AIResponse, error) {
	model := defaultModel
	var temperature float32
	maxTokens := 0
	systemPrompt := ""
	if options != nil {
		if options.Model != "" {
			model = options.Model
		}
		temperature = options.Temperature
		maxTokens = options.MaxTokens
		systemPrompt = options.SystemPrompt
	}

	var messages []chatMessage
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("ai: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ai: reading response: %w", err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("ai: decoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(raw)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("%w: status %d: %s", core.ErrRequestFailed, resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("ai: response carried no choices")
	}

	if logger != nil {
		logger.Debug("chat completion finished", map[string]interface{}{
			"model":       parsed.Model,
			"duration_ms": time.Since(start).Milliseconds(),
			"tokens":      parsed.Usage.TotalTokens,
		})
	}

	return &core.AIResponse{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
		Usage: core.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}
