// Package ai resolves a chat-completion client from a registry of provider
// factories. It backs node's InferenceEngine handles and the function
// registry's llm/inference builtins; providers register themselves from
// their package init, selected explicitly via WithProvider or by
// environment detection.
package ai

import (
	"context"

	"github.com/kolosalai/kolosal-agentd/core"
)

// AIClient re-exports the core contract every provider client satisfies.
type AIClient interface {
	GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error)
}

var _ AIClient = (*OpenAIClient)(nil)
