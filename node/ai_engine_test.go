package node

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kolosalai/kolosal-agentd/core"
)

type scriptedAIClient struct {
	response *core.AIResponse
	err      error
	lastOpts *core.AIOptions
}

func (c *scriptedAIClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	c.lastOpts = options
	if c.err != nil {
		return nil, c.err
	}
	return c.response, nil
}

func TestAIEngineCompleteMapsProviderResponse(t *testing.T) {
	client := &scriptedAIClient{response: &core.AIResponse{
		Content: "generated text",
		Model:   "llama-3",
		Usage:   core.TokenUsage{CompletionTokens: 7},
	}}
	e := &aiEngine{id: "e1", modelName: "llama-3", client: client}

	out, err := e.Complete(context.Background(), CompletionParams{Prompt: "hi", MaxTokens: 32, Temperature: 0.5})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Text != "generated text" || out.OutputTokens != 7 {
		t.Fatalf("unexpected output: %+v", out)
	}
	if client.lastOpts == nil || client.lastOpts.Model != "llama-3" || client.lastOpts.MaxTokens != 32 {
		t.Fatalf("engine did not thread model/params into the client: %+v", client.lastOpts)
	}
}

func TestAIEngineCompleteDegradesToMockOnClientError(t *testing.T) {
	client := &scriptedAIClient{err: errors.New("no credentials")}
	e := &aiEngine{id: "e1", modelName: "llama-3", client: client}

	out, err := e.Complete(context.Background(), CompletionParams{Prompt: "two words"})
	if err != nil {
		t.Fatalf("expected mock degradation, got error: %v", err)
	}
	if !strings.HasPrefix(out.Text, "[mock response]") {
		t.Fatalf("expected mock response text, got %q", out.Text)
	}
	if out.OutputTokens == 0 {
		t.Fatal("expected approximate token count on mock response")
	}
}

func TestAIEngineApproximatesMissingTokenCount(t *testing.T) {
	client := &scriptedAIClient{response: &core.AIResponse{Content: "three word reply"}}
	e := &aiEngine{id: "e1", modelName: "m", client: client}

	out, err := e.Complete(context.Background(), CompletionParams{Prompt: "p"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.OutputTokens != 3 {
		t.Fatalf("expected whitespace token estimate of 3, got %d", out.OutputTokens)
	}
}

func TestAIEngineHasActiveJobsIdleAfterComplete(t *testing.T) {
	e := &aiEngine{id: "e1", modelName: "m", client: &scriptedAIClient{response: &core.AIResponse{Content: "x"}}}
	if _, err := e.Complete(context.Background(), CompletionParams{Prompt: "p"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if e.HasActiveJobs() {
		t.Fatal("expected no active jobs after Complete returned")
	}
}

func TestModelNameFromPath(t *testing.T) {
	cases := map[string]string{
		"models/llama-3-8b.gguf":               "llama-3-8b",
		"/opt/models/qwen.Q4.gguf":             "qwen.Q4",
		"https-derived-name-already-stripped/": "https-derived-name-already-stripped",
		"":                                     "gpt-4",
	}
	for in, want := range cases {
		if got := modelNameFromPath(in); got != want {
			t.Fatalf("modelNameFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadingParamsAgentDataRoundTrip(t *testing.T) {
	p := LoadingParameters{
		ContextSize:   4096,
		BatchSize:     512,
		UBatchSize:    256,
		GPULayers:     33,
		ParallelCount: 2,
		KeepTokens:    64,
		UseMlock:      true,
		UseMmap:       true,
		ContBatching:  true,
		Warmup:        false,
	}
	got := LoadingParamsFromAgentData(LoadingParamsAsAgentData(p))
	if got != p {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
	}
}
