package core

import (
	"errors"
	"fmt"
	"testing"
)

// TestErrorClassifiers drives the four Is* helpers through one table:
// every sentinel the taxonomy defines, plus wrapped and foreign errors.
func TestErrorClassifiers(t *testing.T) {
	classifiers := map[string]func(error) bool{
		"IsRetryable":          IsRetryable,
		"IsNotFound":           IsNotFound,
		"IsConfigurationError": IsConfigurationError,
		"IsStateError":         IsStateError,
	}

	tests := []struct {
		name string
		err  error
		want map[string]bool // classifiers expected to return true
	}{
		{"download failure", ErrDownloadFailed, map[string]bool{"IsRetryable": true}},
		{"timeout", ErrTimeout, map[string]bool{"IsRetryable": true}},
		{"connection failure", ErrConnectionFailed, map[string]bool{"IsRetryable": true}},
		{"open circuit breaker", ErrCircuitBreakerOpen, map[string]bool{"IsRetryable": true}},
		{"agent lookup miss", ErrAgentNotFound, map[string]bool{"IsNotFound": true}},
		{"engine lookup miss", ErrEngineNotFound, map[string]bool{"IsNotFound": true}},
		{"job lookup miss", ErrJobNotFound, map[string]bool{"IsNotFound": true}},
		{"workflow lookup miss", ErrWorkflowNotFound, map[string]bool{"IsNotFound": true}},
		{"function lookup miss", ErrFunctionNotFound, map[string]bool{"IsNotFound": true}},
		{"invalid config", ErrInvalidConfiguration, map[string]bool{"IsConfigurationError": true}},
		{"missing config", ErrMissingConfiguration, map[string]bool{"IsConfigurationError": true}},
		{"port out of range is its own thing", ErrPortOutOfRange, map[string]bool{}},
		{"already started", ErrAlreadyStarted, map[string]bool{"IsStateError": true}},
		{"not initialized", ErrNotInitialized, map[string]bool{"IsStateError": true}},
		{"already registered", ErrAlreadyRegistered, map[string]bool{"IsStateError": true}},
		{"agent not ready", ErrAgentNotReady, map[string]bool{"IsStateError": true}},
		{"wrapped retryable", fmt.Errorf("engine poll: %w", ErrTimeout), map[string]bool{"IsRetryable": true}},
		{"wrapped not-found", fmt.Errorf("node.GetEngine: %w", ErrEngineNotFound), map[string]bool{"IsNotFound": true}},
		{"wrapped config error", fmt.Errorf("boot: %w", ErrInvalidConfiguration), map[string]bool{"IsConfigurationError": true}},
		{"wrapped state error", fmt.Errorf("agent.Start: %w", ErrNotInitialized), map[string]bool{"IsStateError": true}},
		{"foreign error", errors.New("something else"), map[string]bool{}},
		{"nil error", nil, map[string]bool{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for name, classify := range classifiers {
				if got, want := classify(tt.err), tt.want[name]; got != want {
					t.Errorf("%s(%v) = %v, want %v", name, tt.err, got, want)
				}
			}
		})
	}
}

// TestErrorWrapping verifies the helpers see through arbitrary %w depth.
func TestErrorWrapping(t *testing.T) {
	baseErr := ErrAgentNotFound
	wrappedOnce := fmt.Errorf("failed to find agent 'analyzer': %w", baseErr)
	wrappedTwice := fmt.Errorf("workflow step failed: %w", wrappedOnce)

	for _, err := range []error{baseErr, wrappedOnce, wrappedTwice} {
		if !IsNotFound(err) {
			t.Errorf("IsNotFound(%v) should be true", err)
		}
	}
	if !errors.Is(wrappedTwice, ErrAgentNotFound) {
		t.Error("errors.Is should work through multiple wrapping layers")
	}
}

// TestFrameworkErrorMessage pins Error()'s precedence: op+err wins, then
// message, then err, then a kind fallback.
func TestFrameworkErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *FrameworkError
		want string
	}{
		{
			name: "op with id and wrapped error",
			err:  &FrameworkError{Op: "node.GetEngine", Kind: KindNotFound, ID: "default", Err: ErrEngineNotFound},
			want: "node.GetEngine [default]: engine not found",
		},
		{
			name: "op without id",
			err:  &FrameworkError{Op: "job.CancelJob", Kind: KindConflict, Err: ErrJobNotFound},
			want: "job.CancelJob: job not found",
		},
		{
			name: "message only",
			err:  &FrameworkError{Kind: KindValidation, Message: "duplicate step id"},
			want: "duplicate step id",
		},
		{
			name: "kind fallback",
			err:  &FrameworkError{Kind: KindInternal},
			want: "internal error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewFrameworkError(t *testing.T) {
	err := NewFrameworkError("download.StartDownload", KindDownload, ErrDownloadFailed)
	if err.Op != "download.StartDownload" || err.Kind != KindDownload {
		t.Fatalf("unexpected fields: %+v", err)
	}
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatal("constructed error should wrap the cause")
	}
}

// TestKindToHTTPStatus pins the taxonomy-to-status mapping every handler
// relies on.
func TestKindToHTTPStatus(t *testing.T) {
	tests := []struct {
		kind string
		want int
	}{
		{KindValidation, 400},
		{KindNotFound, 404},
		{KindConflict, 409},
		{KindModelLoading, 422},
		{KindDownload, 502},
		{KindExecution, 422},
		{KindTimeout, 504},
		{KindCancelled, 499},
		{KindInternal, 500},
		{"unknown", 500},
	}
	for _, tt := range tests {
		if got := KindToHTTPStatus(tt.kind); got != tt.want {
			t.Errorf("KindToHTTPStatus(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func BenchmarkClassifyWrappedError(b *testing.B) {
	err := fmt.Errorf("wrapped: %w", ErrTimeout)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = IsRetryable(err)
	}
}
