package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonTestLogger(buf *bytes.Buffer, component string) *ProductionLogger {
	return &ProductionLogger{
		level:       LogLevelInfo,
		serviceName: "kolosal-agentd",
		component:   component,
		format:      "json",
		output:      buf,
	}
}

// TestProductionLoggerImplementsComponentAwareLogger pins the interface the
// per-subsystem loggers rely on.
func TestProductionLoggerImplementsComponentAwareLogger(t *testing.T) {
	logger := NewProductionLogger(
		LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		DevelopmentConfig{},
		"kolosal-agentd",
	)

	_, ok := logger.(ComponentAwareLogger)
	assert.True(t, ok, "ProductionLogger should implement ComponentAwareLogger")
}

// TestWithComponentCreatesNewLogger verifies WithComponent hands back a
// fresh instance rather than mutating the parent.
func TestWithComponentCreatesNewLogger(t *testing.T) {
	parentLogger := NewProductionLogger(
		LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		DevelopmentConfig{},
		"kolosal-agentd",
	)

	cal, ok := parentLogger.(ComponentAwareLogger)
	require.True(t, ok)

	childLogger := cal.WithComponent("framework/node")
	assert.NotSame(t, parentLogger, childLogger, "WithComponent should create a new logger instance")

	_, ok = childLogger.(ComponentAwareLogger)
	assert.True(t, ok, "child logger should also be component-aware")
}

// TestWithComponentPreservesConfiguration verifies the child keeps the
// parent's level/format/service while swapping only the component.
func TestWithComponentPreservesConfiguration(t *testing.T) {
	parentLogger := NewProductionLogger(
		LoggingConfig{Level: "debug", Format: "json", Output: "stdout"},
		DevelopmentConfig{},
		"kolosal-agentd",
	)

	cal := parentLogger.(ComponentAwareLogger)
	childLogger := cal.WithComponent("framework/workflow")

	parentPL := parentLogger.(*ProductionLogger)
	childPL := childLogger.(*ProductionLogger)

	assert.Equal(t, parentPL.level, childPL.level)
	assert.Equal(t, parentPL.serviceName, childPL.serviceName)
	assert.Equal(t, parentPL.format, childPL.format)
	assert.NotEqual(t, parentPL.component, childPL.component)
	assert.Equal(t, "framework/workflow", childPL.component)
}

// TestLogOutputIncludesComponent verifies structured entries carry the
// component field log aggregation filters on.
func TestLogOutputIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonTestLogger(&buf, "framework/download")

	logger.Info("resume started", map[string]interface{}{"model_id": "default"})

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "framework/download", logEntry["component"])
	assert.Equal(t, "kolosal-agentd", logEntry["service"])
	assert.Equal(t, "INFO", logEntry["level"])
	assert.Equal(t, "resume started", logEntry["message"])
	assert.Equal(t, "default", logEntry["model_id"])
}

// TestWithComponentChangesLogOutput verifies the child's component is what
// lands on the wire.
func TestWithComponentChangesLogOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := jsonTestLogger(&buf, "framework/core")

	child := parent.WithComponent("agent/analyzer")
	child.Info("agent started", nil)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "agent/analyzer", logEntry["component"])
}

// TestDefaultComponentIsFrameworkCore pins the default every constructor
// call starts from.
func TestDefaultComponentIsFrameworkCore(t *testing.T) {
	logger := NewProductionLogger(
		LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		DevelopmentConfig{},
		"kolosal-agentd",
	)

	pl, ok := logger.(*ProductionLogger)
	require.True(t, ok)
	assert.Equal(t, "framework/core", pl.component)
}

// TestComponentNamingConventions exercises the names this runtime's
// subsystems actually use.
func TestComponentNamingConventions(t *testing.T) {
	components := []string{
		"framework/core",
		"framework/node",
		"framework/download",
		"framework/workflow",
		"framework/orchestration",
		"agent/analyzer",
		"agent/summarizer",
	}

	for _, component := range components {
		t.Run(component, func(t *testing.T) {
			var buf bytes.Buffer
			logger := jsonTestLogger(&buf, "framework/core")

			logger.WithComponent(component).Info("test", nil)

			var logEntry map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
			assert.Equal(t, component, logEntry["component"])
		})
	}
}

// TestCreateComponentLoggerHelper verifies the fallback for loggers that
// aren't component-aware.
func TestCreateComponentLoggerHelper(t *testing.T) {
	t.Run("with component-aware logger", func(t *testing.T) {
		baseLogger := NewProductionLogger(
			LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			DevelopmentConfig{},
			"kolosal-agentd",
		)

		result := createComponentLogger(baseLogger, "agent/analyzer")
		pl, ok := result.(*ProductionLogger)
		require.True(t, ok)
		assert.Equal(t, "agent/analyzer", pl.component)
	})

	t.Run("with non-component-aware logger", func(t *testing.T) {
		baseLogger := &NoOpLogger{}
		result := createComponentLogger(baseLogger, "agent/analyzer")
		assert.Same(t, baseLogger, result, "NoOpLogger should pass through unchanged")
	})
}

// TestTextFormatWorksWithComponent verifies the human-readable format still
// renders when a component is set (text format deliberately omits the
// component field; it exists for JSON aggregation).
func TestTextFormatWorksWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := &ProductionLogger{
		level:       LogLevelInfo,
		serviceName: "kolosal-agentd",
		component:   "agent/analyzer",
		format:      "text",
		output:      &buf,
	}

	logger.Info("engine loaded", map[string]interface{}{"engine_id": "default"})

	output := buf.String()
	assert.True(t, strings.Contains(output, "kolosal-agentd"), "text output should include service name, got: %s", output)
	assert.True(t, strings.Contains(output, "INFO"), "text output should include level, got: %s", output)
	assert.True(t, strings.Contains(output, "engine loaded"), "text output should include message, got: %s", output)
	assert.Equal(t, "agent/analyzer", logger.component)
}

// TestChainedWithComponent verifies rebinding twice keeps only the last
// component.
func TestChainedWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonTestLogger(&buf, "framework/core")

	logger2 := logger.WithComponent("framework/orchestration")
	logger3 := logger2.(ComponentAwareLogger).WithComponent("agent/analyzer")
	logger3.Info("test", nil)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "agent/analyzer", logEntry["component"])
}
