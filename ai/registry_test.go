package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolosalai/kolosal-agentd/core"
)

// fakeFactory is a registry entry whose availability the test controls.
type fakeFactory struct {
	name      string
	priority  int
	available *bool
}

func (f *fakeFactory) Name() string        { return f.name }
func (f *fakeFactory) Description() string { return "test factory" }
func (f *fakeFactory) Priority() int       { return f.priority }
func (f *fakeFactory) DetectEnvironment() (int, bool) {
	return f.priority, f.available != nil && *f.available
}
func (f *fakeFactory) Create(config *AIConfig) core.AIClient {
	return fakeClient{name: f.name}
}

type fakeClient struct{ name string }

func (c fakeClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	return &core.AIResponse{Content: c.name}, nil
}

func TestRegisterRejectsDuplicatesAndNil(t *testing.T) {
	avail := false
	require.NoError(t, Register(&fakeFactory{name: "dup-check", available: &avail}))
	assert.Error(t, Register(&fakeFactory{name: "dup-check", available: &avail}))
	assert.Error(t, Register(nil))
	assert.Error(t, Register(&fakeFactory{name: "", available: &avail}))
}

func TestNewClientProviderResolution(t *testing.T) {
	lowAvail, highAvail := false, false
	require.NoError(t, Register(&fakeFactory{name: "res-low", priority: 10, available: &lowAvail}))
	require.NoError(t, Register(&fakeFactory{name: "res-high", priority: 50, available: &highAvail}))

	t.Run("auto-detect fails when nothing is available", func(t *testing.T) {
		_, err := NewClient()
		assert.Error(t, err)
	})

	t.Run("auto-detect picks the highest available priority", func(t *testing.T) {
		lowAvail, highAvail = true, true
		t.Cleanup(func() { lowAvail, highAvail = false, false })

		client, err := NewClient()
		require.NoError(t, err)
		resp, err := client.GenerateResponse(context.Background(), "ping", nil)
		require.NoError(t, err)
		assert.Equal(t, "res-high", resp.Content)
	})

	t.Run("explicit provider wins regardless of detection", func(t *testing.T) {
		client, err := NewClient(WithProvider("res-low"))
		require.NoError(t, err)
		resp, err := client.GenerateResponse(context.Background(), "ping", nil)
		require.NoError(t, err)
		assert.Equal(t, "res-low", resp.Content)
	})

	t.Run("explicit unknown provider fails fast", func(t *testing.T) {
		_, err := NewClient(WithProvider("no-such-provider"))
		assert.Error(t, err)
	})

	t.Run("explicit empty provider fails fast rather than auto-detecting", func(t *testing.T) {
		lowAvail = true
		t.Cleanup(func() { lowAvail = false })
		_, err := NewClient(WithProvider(""))
		assert.Error(t, err)
	})
}

func TestListProvidersSorted(t *testing.T) {
	avail := false
	require.NoError(t, Register(&fakeFactory{name: "zz-last", available: &avail}))
	require.NoError(t, Register(&fakeFactory{name: "aa-first", available: &avail}))

	names := ListProviders()
	require.GreaterOrEqual(t, len(names), 2)
	assert.IsIncreasing(t, names)
}
