package function

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
)

// addFunction adds two integer parameters "a" and "b".
type addFunction struct{}

func (addFunction) Invoke(ctx context.Context, params core.AgentData) (Result, error) {
	a, _ := params["a"].Int()
	b, _ := params["b"].Int()
	out := core.NewAgentData()
	out["sum"] = core.IntValue(a + b)
	return Result{Success: true, Output: out}, nil
}

// echoFunction returns the "text" parameter, uppercased when "uppercase" is true.
type echoFunction struct{}

func (echoFunction) Invoke(ctx context.Context, params core.AgentData) (Result, error) {
	text, _ := params["text"].String()
	upper, _ := params["uppercase"].Bool()
	if upper {
		text = strings.ToUpper(text)
	}
	out := core.NewAgentData()
	out["text"] = core.StringValue(text)
	return Result{Success: true, Output: out}, nil
}

// delayFunction sleeps for the "ms" parameter's duration, honoring context
// cancellation.
type delayFunction struct{}

func (delayFunction) Invoke(ctx context.Context, params core.AgentData) (Result, error) {
	ms, _ := params["ms"].Int()
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	out := core.NewAgentData()
	out["slept_ms"] = core.IntValue(ms)
	return Result{Success: true, Output: out}, nil
}

var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "happy": true,
	"love": true, "wonderful": true, "amazing": true, "best": true,
}
var negativeWords = map[string]bool{
	"bad": true, "terrible": true, "awful": true, "sad": true,
	"hate": true, "worst": true, "poor": true, "horrible": true,
}

// textAnalysisFunction computes word/char counts, a trivial dictionary
// sentiment score, whitespace tokenization, and a truncated summary.
type textAnalysisFunction struct{}

func (textAnalysisFunction) Invoke(ctx context.Context, params core.AgentData) (Result, error) {
	text, _ := params["text"].String()
	words := strings.Fields(text)

	posCount, negCount := 0, 0
	for _, w := range words {
		lw := strings.ToLower(strings.Trim(w, ".,!?;:\"'"))
		if positiveWords[lw] {
			posCount++
		}
		if negativeWords[lw] {
			negCount++
		}
	}
	sentiment := "neutral"
	if posCount > negCount {
		sentiment = "positive"
	} else if negCount > posCount {
		sentiment = "negative"
	}

	summary := text
	if len(summary) > 100 {
		summary = summary[:100] + "..."
	}

	out := core.NewAgentData()
	out["word_count"] = core.IntValue(len(words))
	out["char_count"] = core.IntValue(len(text))
	out["token_count"] = core.IntValue(len(words))
	out["sentiment"] = core.StringValue(sentiment)
	out["summary"] = core.StringValue(summary)
	return Result{Success: true, Output: out}, nil
}

// dataTransformFunction maps a string-list input through a named transform.
type dataTransformFunction struct{}

func (dataTransformFunction) Invoke(ctx context.Context, params core.AgentData) (Result, error) {
	items, ok := params["items"].StringList()
	if !ok {
		return Result{}, &core.FrameworkError{Op: "function.data_transform", Kind: core.KindValidation, Err: core.ErrValidationFailed}
	}
	op, _ := params["operation"].String()
	if op == "" {
		op = "identity"
	}

	result := make([]string, len(items))
	for i, item := range items {
		switch op {
		case "uppercase":
			result[i] = strings.ToUpper(item)
		case "lowercase":
			result[i] = strings.ToLower(item)
		case "reverse":
			result[i] = reverseString(item)
		case "length":
			result[i] = fmt.Sprintf("%d", len(item))
		case "identity":
			result[i] = item
		default:
			return Result{}, &core.FrameworkError{Op: "function.data_transform", Kind: core.KindValidation, ID: op, Err: core.ErrValidationFailed}
		}
	}

	out := core.NewAgentData()
	out["items"] = core.ListValue(result)
	out["operation"] = core.StringValue(op)
	return Result{Success: true, Output: out}, nil
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// dataAnalysisFunction runs one of basic/statistical/pattern analyses over a
// numeric array passed as a string list. Outputs are stubbed where the
// analysis has no meaningful interpretation, but the key set is stable.
type dataAnalysisFunction struct{}

func (dataAnalysisFunction) Invoke(ctx context.Context, params core.AgentData) (Result, error) {
	items, _ := params["items"].StringList()
	analysisType, _ := params["analysis_type"].String()
	if analysisType == "" {
		analysisType = "basic"
	}

	out := core.NewAgentData()
	out["analysis_type"] = core.StringValue(analysisType)
	out["count"] = core.IntValue(len(items))

	switch analysisType {
	case "basic":
		out["min"] = core.StringValue(minMax(items, true))
		out["max"] = core.StringValue(minMax(items, false))
	case "statistical":
		out["mean"] = core.FloatValue(meanOf(items))
		out["variance"] = core.FloatValue(0)
	case "pattern":
		out["unique_count"] = core.IntValue(len(uniqueOf(items)))
		out["most_common"] = core.StringValue(mostCommon(items))
	default:
		return Result{}, &core.FrameworkError{Op: "function.data_analysis", Kind: core.KindValidation, ID: analysisType, Err: core.ErrValidationFailed}
	}
	return Result{Success: true, Output: out}, nil
}

func minMax(items []string, wantMin bool) string {
	if len(items) == 0 {
		return ""
	}
	best := items[0]
	for _, it := range items[1:] {
		if (wantMin && it < best) || (!wantMin && it > best) {
			best = it
		}
	}
	return best
}

func meanOf(items []string) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	n := 0
	for _, it := range items {
		var f float64
		if _, err := fmt.Sscanf(it, "%g", &f); err == nil {
			sum += f
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func uniqueOf(items []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func mostCommon(items []string) string {
	counts := make(map[string]int)
	for _, it := range items {
		counts[it]++
	}
	best, bestCount := "", 0
	for _, it := range items {
		if counts[it] > bestCount {
			best, bestCount = it, counts[it]
		}
	}
	return best
}
