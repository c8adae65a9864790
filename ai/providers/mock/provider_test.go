package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolosalai/kolosal-agentd/core"
)

func TestScriptedResponsesCycle(t *testing.T) {
	c := NewClient(nil)
	c.SetResponses("first", "second")

	resp, err := c.GenerateResponse(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	resp, err = c.GenerateResponse(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)

	_, err = c.GenerateResponse(context.Background(), "p", nil)
	assert.Error(t, err, "exhausted script should fail")
}

func TestConfiguredErrorWins(t *testing.T) {
	c := NewClient(nil)
	boom := errors.New("boom")
	c.SetError(boom)

	_, err := c.GenerateResponse(context.Background(), "p", nil)
	assert.ErrorIs(t, err, boom)
}

func TestCallTrackingAndReset(t *testing.T) {
	c := NewClient(nil)
	opts := &core.AIOptions{Model: "custom"}
	resp, err := c.GenerateResponse(context.Background(), "the prompt", opts)
	require.NoError(t, err)

	assert.Equal(t, 1, c.CallCount)
	assert.Equal(t, "the prompt", c.LastPrompt)
	assert.Same(t, opts, c.LastOptions)
	assert.Equal(t, "custom", resp.Model)

	c.Reset()
	assert.Equal(t, 0, c.CallCount)
	assert.Empty(t, c.LastPrompt)
}

func TestContextCancellation(t *testing.T) {
	c := NewClient(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GenerateResponse(ctx, "p", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
