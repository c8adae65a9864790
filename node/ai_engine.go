package node

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/kolosalai/kolosal-agentd/ai"
	"github.com/kolosalai/kolosal-agentd/core"
)

// aiEngine adapts an ai.AIClient — an HTTP-backed chat completions API — to
// the InferenceEngine contract. There is no in-process transformer kernel in
// this runtime; an aiEngine stands in for a loaded model by forwarding
// completions to a configured provider, keyed on a model name derived from
// modelPath.
type aiEngine struct {
	id        string
	modelName string
	client    ai.AIClient
	active    atomic.Int64
}

// NewAIEngineFactory returns an EngineFactory backed by an ai.AIClient
// resolved from cfg via the provider registry (ai.NewClient): cfg.Provider
// selects the registered provider (openai/anthropic, see
// cmd/kolosal-agentd's blank provider imports), cfg.APIKey/BaseURL/Timeout/
// RetryAttempts configure it. When cfg.Enabled is false or the registry
// lookup fails (no provider registered, bad credentials), the factory falls
// back to ai.NewOpenAIClient so engine construction itself never fails; a
// missing or rejected key only degrades Complete to a deterministic mock
// response, matching function.llmFunction's fallback-to-mock idiom for a
// provider-less deployment.
func NewAIEngineFactory(cfg core.AIConfig, logger core.Logger) EngineFactory {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	client := resolveAIClient(cfg, logger)
	return func(ctx context.Context, engineID, modelPath string, params LoadingParameters, gpuID int) (InferenceEngine, error) {
		return &aiEngine{
			id:        engineID,
			modelName: modelNameFromPath(modelPath),
			client:    client,
		}, nil
	}
}

// resolveAIClient builds an ai.AIClient from a core.AIConfig via the
// provider registry, falling back to a bare OpenAI client when AI is
// disabled or the registry can't satisfy the requested provider.
func resolveAIClient(cfg core.AIConfig, logger core.Logger) ai.AIClient {
	if !cfg.Enabled {
		return ai.NewOpenAIClient(cfg.APIKey, logger)
	}

	opts := []ai.AIOption{ai.WithLogger(logger)}
	if cfg.Provider != "" {
		opts = append(opts, ai.WithProvider(cfg.Provider))
	}
	if cfg.APIKey != "" {
		opts = append(opts, ai.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, ai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, ai.WithModel(cfg.Model))
	}
	if cfg.Temperature > 0 {
		opts = append(opts, ai.WithTemperature(cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, ai.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, ai.WithTimeout(cfg.Timeout))
	}
	if cfg.RetryAttempts > 0 {
		opts = append(opts, ai.WithMaxRetries(cfg.RetryAttempts))
	}

	client, err := ai.NewClient(opts...)
	if err != nil {
		logger.Warn("falling back to bare OpenAI client, AI provider registry lookup failed", map[string]interface{}{
			"provider": cfg.Provider,
			"error":    err.Error(),
		})
		return ai.NewOpenAIClient(cfg.APIKey, logger)
	}
	return client
}

// modelNameFromPath derives a model identifier from a local .gguf path or a
// download URL: the file's base name with its extension stripped, falling
// back to "gpt-4" when modelPath gives nothing usable.
func modelNameFromPath(modelPath string) string {
	name := filepath.Base(strings.TrimRight(modelPath, "/"))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "gpt-4"
	}
	return name
}

func (e *aiEngine) ID() string { return e.id }

// Complete forwards params to the wrapped AI client, degrading to a mock
// completion rather than returning an error when the client rejects the
// request (absent or invalid credentials) — an already-loaded engine should
// keep serving placeholder completions rather than break every in-flight
// request when no provider is configured.
func (e *aiEngine) Complete(ctx context.Context, params CompletionParams) (CompletionOutput, error) {
	e.active.Add(1)
	defer e.active.Add(-1)

	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}
	resp, err := e.client.GenerateResponse(ctx, params.Prompt, &core.AIOptions{
		Model:       e.modelName,
		Temperature: float32(params.Temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		text := "[mock response] " + params.Prompt
		return CompletionOutput{Text: text, OutputTokens: approxTokenCount(text)}, nil
	}

	tokens := resp.Usage.CompletionTokens
	if tokens == 0 {
		tokens = approxTokenCount(resp.Content)
	}
	return CompletionOutput{Text: resp.Content, OutputTokens: tokens}, nil
}

func (e *aiEngine) HasActiveJobs() bool { return e.active.Load() > 0 }

func (e *aiEngine) Close() error { return nil }

// approxTokenCount is a whitespace-delimited word count, mirroring
// function.estimateTokenCount for the cases where a provider's usage block
// doesn't report a completion-token count.
func approxTokenCount(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}
