package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolosalai/kolosal-agentd/core"
)

func TestOpenAIClientGenerateResponse(t *testing.T) {
	var gotAuth string
	var gotReq chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "gpt-4",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hello back"}},
			},
			"usage": map[string]int{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient("sk-test", &core.NoOpLogger{})
	client.SetBaseURL(srv.URL)

	resp, err := client.GenerateResponse(context.Background(), "hello", &core.AIOptions{
		Model:        "gpt-4",
		MaxTokens:    64,
		SystemPrompt: "be terse",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "be terse", gotReq.Messages[0].Content)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
	assert.Equal(t, "hello", gotReq.Messages[1].Content)

	assert.Equal(t, "hello back", resp.Content)
	assert.Equal(t, 3, resp.Usage.PromptTokens)
	assert.Equal(t, 2, resp.Usage.CompletionTokens)
}

func TestOpenAIClientSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "invalid api key", "type": "auth_error"},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient("bad-key", &core.NoOpLogger{})
	client.SetBaseURL(srv.URL)

	_, err := client.GenerateResponse(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRequestFailed)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestOpenAIClientEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"model": "gpt-4", "choices": []interface{}{}})
	}))
	defer srv.Close()

	client := NewOpenAIClient("sk-test", &core.NoOpLogger{})
	client.SetBaseURL(srv.URL)

	_, err := client.GenerateResponse(context.Background(), "hello", nil)
	assert.Error(t, err)
}
