// Package mock provides a scripted AI provider for tests. It is never
// auto-detected; tests either construct a Client directly or select it with
// ai.WithProvider("mock").
package mock

import (
	"context"
	"errors"
	"fmt"

	"github.com/kolosalai/kolosal-agentd/ai"
	"github.com/kolosalai/kolosal-agentd/core"
)

func init() {
	if err := ai.Register(&Factory{}); err != nil {
		panic(fmt.Sprintf("failed to register mock AI provider: %v", err))
	}
}

// Factory creates mock clients.
type Factory struct{}

func (f *Factory) Name() string        { return "mock" }
func (f *Factory) Description() string { return "Scripted responses for testing" }
func (f *Factory) Priority() int       { return 1 }

// DetectEnvironment never reports available, so the mock can only be chosen
// explicitly.
func (f *Factory) DetectEnvironment() (int, bool) { return 0, false }

func (f *Factory) Create(config *ai.AIConfig) core.AIClient {
	return NewClient(config)
}

// Client returns its scripted Responses in order, tracking every call for
// assertions.
type Client struct {
	Config        *ai.AIConfig
	Responses     []string
	ResponseIndex int
	Error         error
	CallCount     int
	LastPrompt    string
	LastOptions   *core.AIOptions
}

// NewClient builds a mock with one default response.
func NewClient(config *ai.AIConfig) *Client {
	return &Client{
		Config:    config,
		Responses: []string{"Mock response"},
	}
}

// GenerateResponse implements core.AIClient: the next scripted response, or
// the configured Error, or an error once the script runs out.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	c.CallCount++
	c.LastPrompt = prompt
	c.LastOptions = options

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if c.Error != nil {
		return nil, c.Error
	}
	if c.ResponseIndex >= len(c.Responses) {
		return nil, errors.New("no more mock responses")
	}

	response := c.Responses[c.ResponseIndex]
	c.ResponseIndex++

	model := "mock-model"
	if options != nil && options.Model != "" {
		model = options.Model
	} else if c.Config != nil && c.Config.Model != "" {
		model = c.Config.Model
	}

	return &core.AIResponse{
		Content: response,
		Model:   model,
		Usage: core.TokenUsage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(response) / 4,
			TotalTokens:      (len(prompt) + len(response)) / 4,
		},
	}, nil
}

// SetResponses replaces the script and rewinds it.
func (c *Client) SetResponses(responses ...string) {
	c.Responses = responses
	c.ResponseIndex = 0
}

// SetError makes every subsequent call fail with err.
func (c *Client) SetError(err error) {
	c.Error = err
}

// Reset clears call tracking and rewinds the script.
func (c *Client) Reset() {
	c.ResponseIndex = 0
	c.CallCount = 0
	c.LastPrompt = ""
	c.LastOptions = nil
	c.Error = nil
}
