package function

import (
	"context"
	"fmt"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/node"
)

// EngineResolver gets a loaded InferenceEngine by id, matching
// node.Manager.GetEngine's signature without importing node's full surface
// into this package's public API.
type EngineResolver interface {
	GetEngine(ctx context.Context, engineID string) (node.InferenceEngine, error)
}

// CompletionRecorder is the subset of monitor.Monitor's method set the
// inference/llm functions drive; kept as a structurally-satisfied interface
// here so function does not import monitor (monitor has no need of function).
type CompletionRecorder interface {
	StartRequest(model, engine string) string
	RecordInputTokens(requestID string, n int)
	RecordFirstToken(requestID string)
	RecordOutputToken(requestID string)
	CompleteRequest(requestID string)
	FailRequest(requestID string, errMsg string)
}

func completionParamsFrom(params core.AgentData) node.CompletionParams {
	prompt, _ := params["prompt"].String()
	maxTokens, ok := params["max_tokens"].Int()
	if !ok {
		maxTokens = 256
	}
	temperature, ok := params["temperature"].Float()
	if !ok {
		temperature = 0.8
	}
	topP, ok := params["top_p"].Float()
	if !ok {
		topP = 0.95
	}
	seed, _ := params["seed"].Int()
	return node.CompletionParams{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
		Seed:        seed,
	}
}

// inferenceFunction bridges to an engine via NodeManager: fills
// CompletionParams from {prompt, max_tokens, temperature, top_p, seed},
// submits, waits, and returns text + token count + tokens/sec.
type inferenceFunction struct {
	engines  EngineResolver
	recorder CompletionRecorder
}

// NewInference constructs the "inference" builtin.
func NewInference(engines EngineResolver, recorder CompletionRecorder) Function {
	return &inferenceFunction{engines: engines, recorder: recorder}
}

func (f *inferenceFunction) Invoke(ctx context.Context, params core.AgentData) (Result, error) {
	engineID, _ := params["engine_id"].String()
	if engineID == "" {
		return Result{}, &core.FrameworkError{Op: "function.inference", Kind: core.KindValidation, Err: core.ErrValidationFailed}
	}

	engine, err := f.engines.GetEngine(ctx, engineID)
	if err != nil {
		return Result{}, err
	}

	cp := completionParamsFrom(params)

	var reqID string
	if f.recorder != nil {
		reqID = f.recorder.StartRequest(engineID, engineID)
		f.recorder.RecordInputTokens(reqID, estimateTokenCount(cp.Prompt))
	}

	start := time.Now()
	out, err := engine.Complete(ctx, cp)
	if err != nil {
		if f.recorder != nil {
			f.recorder.FailRequest(reqID, err.Error())
		}
		return Result{}, &core.FrameworkError{Op: "function.inference", Kind: core.KindExecution, ID: engineID, Err: fmt.Errorf("%w: %v", core.ErrExecutionFailed, err)}
	}
	elapsed := time.Since(start).Seconds()

	if f.recorder != nil {
		f.recorder.RecordFirstToken(reqID)
		for i := 0; i < out.OutputTokens; i++ {
			f.recorder.RecordOutputToken(reqID)
		}
		f.recorder.CompleteRequest(reqID)
	}

	tps := 0.0
	if elapsed > 0 {
		tps = float64(out.OutputTokens) / elapsed
	}

	result := core.NewAgentData()
	result["text"] = core.StringValue(out.Text)
	result["tokens"] = core.IntValue(out.OutputTokens)
	result["tps"] = core.FloatValue(tps)
	return Result{Success: true, Output: result}, nil
}

// llmFunction is inference with a system-prompt prefix; falls back to a
// mock response if the named engine is absent.
type llmFunction struct {
	inner *inferenceFunction
}

// NewLLM constructs the "llm" builtin.
func NewLLM(engines EngineResolver, recorder CompletionRecorder) Function {
	return &llmFunction{inner: &inferenceFunction{engines: engines, recorder: recorder}}
}

func (f *llmFunction) Invoke(ctx context.Context, params core.AgentData) (Result, error) {
	systemPrompt, _ := params["system_prompt"].String()
	prompt, _ := params["prompt"].String()
	if systemPrompt != "" {
		prompt = systemPrompt + "\n\n" + prompt
	}
	merged := params.Clone()
	merged["prompt"] = core.StringValue(prompt)

	engineID, _ := params["engine_id"].String()
	if engineID == "" {
		return Result{}, &core.FrameworkError{Op: "function.llm", Kind: core.KindValidation, Err: core.ErrValidationFailed}
	}
	if _, err := f.inner.engines.GetEngine(ctx, engineID); err != nil {
		out := core.NewAgentData()
		out["text"] = core.StringValue("[mock response] " + prompt)
		out["tokens"] = core.IntValue(estimateTokenCount(prompt))
		out["tps"] = core.FloatValue(0)
		out["mocked"] = core.BoolValue(true)
		return Result{Success: true, Output: out}, nil
	}

	return f.inner.Invoke(ctx, merged)
}

func estimateTokenCount(s string) int {
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
