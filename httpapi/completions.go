package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kolosalai/kolosal-agentd/node"
)

func (s *Server) registerCompletionRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("POST /v1/completions", s.handleCompletions)
	mux.HandleFunc("POST /v1/inference/chat/completions", s.handleInferenceChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleModels)
}

// chatMessage is one OpenAI-style {role, content} turn.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest covers both /v1/chat/completions (Messages set) and
// /v1/completions (Prompt set).
type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Prompt      string        `json:"prompt"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
	Seed        int           `json:"seed"`
}

// promptFrom flattens Messages (if any) into a single prompt string,
// otherwise falls back to Prompt.
func (req completionRequest) promptFrom() string {
	if len(req.Messages) == 0 {
		return req.Prompt
	}
	var b strings.Builder
	for i, m := range req.Messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", m.Role, m.Content)
	}
	return b.String()
}

func (req completionRequest) engineID() string {
	if req.Model != "" {
		return req.Model
	}
	return "default"
}

func (req completionRequest) completionParams() node.CompletionParams {
	return node.CompletionParams{
		Prompt:      req.promptFrom(),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Seed:        req.Seed,
	}
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	s.serveCompletion(w, r, true)
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	s.serveCompletion(w, r, false)
}

// serveCompletion implements both completion routes: non-streaming returns
// one OpenAI-shaped JSON response; streaming writes text/event-stream data
// frames, chunking the engine's full completion into word-sized deltas
// since this runtime's InferenceEngine.Complete is not itself token-
// streaming.
func (s *Server) serveCompletion(w http.ResponseWriter, r *http.Request, chat bool) {
	var req completionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	engineID := req.engineID()
	engine, err := s.nodes.GetEngine(r.Context(), engineID)
	if err != nil {
		writeError(w, err)
		return
	}

	var reqID string
	if s.monitor != nil {
		reqID = s.monitor.StartRequest(req.Model, engineID)
		s.monitor.RecordInputTokens(reqID, len(strings.Fields(req.promptFrom())))
	}

	out, err := engine.Complete(r.Context(), req.completionParams())
	if err != nil {
		if s.monitor != nil {
			s.monitor.FailRequest(reqID, err.Error())
		}
		writeError(w, err)
		return
	}
	if s.monitor != nil {
		s.monitor.RecordFirstToken(reqID)
		for i := 0; i < out.OutputTokens; i++ {
			s.monitor.RecordOutputToken(reqID)
		}
		s.monitor.CompleteRequest(reqID)
	}

	id := "cmpl-" + uuid.NewString()
	created := time.Now().Unix()

	if req.Stream {
		streamCompletion(w, id, created, engineID, out.Text, chat)
		return
	}
	writeJSON(w, http.StatusOK, completionResponse(id, created, engineID, out.Text, chat))
}

func completionResponse(id string, created int64, model, text string, chat bool) map[string]interface{} {
	choice := map[string]interface{}{"index": 0, "finish_reason": "stop"}
	if chat {
		choice["message"] = chatMessage{Role: "assistant", Content: text}
	} else {
		choice["text"] = text
	}
	object := "text_completion"
	if chat {
		object = "chat.completion"
	}
	return map[string]interface{}{
		"id":      id,
		"object":  object,
		"created": created,
		"model":   model,
		"choices": []map[string]interface{}{choice},
	}
}

// streamCompletion writes text as a sequence of SSE data frames, one word
// per frame, terminated by "data: [DONE]\n\n".
func streamCompletion(w http.ResponseWriter, id string, created int64, model, text string, chat bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	object := "text_completion"
	if chat {
		object = "chat.completion.chunk"
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		words = []string{""}
	}
	for i, word := range words {
		delta := word
		if i < len(words)-1 {
			delta += " "
		}
		choice := map[string]interface{}{"index": 0, "finish_reason": nil}
		if chat {
			choice["delta"] = map[string]string{"content": delta}
		} else {
			choice["text"] = delta
		}
		chunk := map[string]interface{}{
			"id": id, "object": object, "created": created, "model": model,
			"choices": []map[string]interface{}{choice},
		}
		writeSSE(w, chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}

	finalChoice := map[string]interface{}{"index": 0, "finish_reason": "stop"}
	if chat {
		finalChoice["delta"] = map[string]string{}
	} else {
		finalChoice["text"] = ""
	}
	writeSSE(w, map[string]interface{}{
		"id": id, "object": object, "created": created, "model": model,
		"choices": []map[string]interface{}{finalChoice},
	})
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// inferenceChatRequest is the raw ChatCompletionParameters shape the
// original passes straight through to the inference engine.
type inferenceChatRequest struct {
	EngineID    string  `json:"engine_id"`
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Seed        int     `json:"seed"`
}

func (s *Server) handleInferenceChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req inferenceChatRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	engineID := req.EngineID
	if engineID == "" {
		engineID = req.Model
	}
	if engineID == "" {
		engineID = "default"
	}

	engine, err := s.nodes.GetEngine(r.Context(), engineID)
	if err != nil {
		writeError(w, err)
		return
	}

	var reqID string
	start := time.Now()
	if s.monitor != nil {
		reqID = s.monitor.StartRequest(req.Model, engineID)
		s.monitor.RecordInputTokens(reqID, len(strings.Fields(req.Prompt)))
	}

	out, err := engine.Complete(r.Context(), node.CompletionParams{
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Seed:        req.Seed,
	})
	if err != nil {
		if s.monitor != nil {
			s.monitor.FailRequest(reqID, err.Error())
		}
		writeError(w, err)
		return
	}

	ttft := time.Since(start).Seconds() * 1000
	elapsed := time.Since(start).Seconds()
	if s.monitor != nil {
		s.monitor.RecordFirstToken(reqID)
		for i := 0; i < out.OutputTokens; i++ {
			s.monitor.RecordOutputToken(reqID)
		}
		s.monitor.CompleteRequest(reqID)
	}

	tps := 0.0
	if elapsed > 0 {
		tps = float64(out.OutputTokens) / elapsed
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"text":   out.Text,
		"tokens": out.OutputTokens,
		"tps":    tps,
		"ttft":   ttft,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": s.nodes.ListEngineIDs()})
}
