package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolosalai/kolosal-agentd/ai"
	"github.com/kolosalai/kolosal-agentd/core"
)

func TestGenerateResponseWireFormat(t *testing.T) {
	var gotReq messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ant-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "claude-3-5-sonnet-latest",
			"content": []map[string]string{
				{"type": "text", "text": "claude says hi"},
			},
			"usage": map[string]int{"input_tokens": 4, "output_tokens": 6},
		})
	}))
	defer srv.Close()

	f := &Factory{}
	client := f.Create(&ai.AIConfig{
		APIKey:  "ant-key",
		BaseURL: srv.URL,
		Logger:  &core.NoOpLogger{},
	})

	resp, err := client.GenerateResponse(context.Background(), "hello", &core.AIOptions{
		SystemPrompt: "be helpful",
		MaxTokens:    128,
	})
	require.NoError(t, err)

	assert.Equal(t, "be helpful", gotReq.System)
	assert.Equal(t, 128, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)

	assert.Equal(t, "claude says hi", resp.Content)
	assert.Equal(t, 4, resp.Usage.PromptTokens)
	assert.Equal(t, 6, resp.Usage.CompletionTokens)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
}

func TestGenerateResponseAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "invalid_request_error", "message": "max_tokens required"},
		})
	}))
	defer srv.Close()

	f := &Factory{}
	client := f.Create(&ai.AIConfig{APIKey: "ant-key", BaseURL: srv.URL})

	_, err := client.GenerateResponse(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRequestFailed)
	assert.Contains(t, err.Error(), "max_tokens required")
}

func TestDetectEnvironment(t *testing.T) {
	f := &Factory{}

	t.Setenv("ANTHROPIC_API_KEY", "")
	_, available := f.DetectEnvironment()
	assert.False(t, available)

	t.Setenv("ANTHROPIC_API_KEY", "ant-key")
	_, available = f.DetectEnvironment()
	assert.True(t, available)
}
