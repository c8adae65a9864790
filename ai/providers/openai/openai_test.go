package openai

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

func TestDetectEnvironment(t *testing.T) {
	f := &Factory{}

	t.Setenv("OPENAI_API_KEY", "")
	_, available := f.DetectEnvironment()
	assert.False(t, available)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	priority, available := f.DetectEnvironment()
	assert.True(t, available)
	assert.Equal(t, f.Priority(), priority)
}

func TestFactoryCreateAndGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer cfg-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "gpt-4",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "from openai"}},
			},
			"usage": map[string]int{"prompt_tokens": 1, "completion_tokens": 2, "total_tokens": 3},
		})
	}))
	defer srv.Close()

	f := &Factory{}
	client := f.Create(&ai.AIConfig{
		APIKey:  "cfg-key",
		BaseURL: srv.URL,
		Model:   "gpt-4",
		Logger:  &core.NoOpLogger{},
	})

	resp, err := client.GenerateResponse(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "from openai", resp.Content)
	assert.Equal(t, 3, resp.Usage.TotalTokens)
}
