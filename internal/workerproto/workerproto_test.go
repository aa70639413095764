package workerproto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceContextRoundTripsThroughString(t *testing.T) {
	tc, err := NewTraceContext()
	require.NoError(t, err)

	parsed, err := ParseTraceContext(tc.String())
	require.NoError(t, err)
	assert.Equal(t, tc, parsed)
	assert.Regexp(t, `^00-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`, tc.String())
}

func TestChildSpanSharesTraceIDWithFreshSpanID(t *testing.T) {
	root, err := NewTraceContext()
	require.NoError(t, err)

	child, err := root.ChildSpan()
	require.NoError(t, err)
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.NotEqual(t, root.SpanID, child.SpanID)
}

func TestNewTaskDescriptorChainsTraceFromParent(t *testing.T) {
	parent, err := NewTraceContext()
	require.NoError(t, err)

	td, err := NewTaskDescriptor("fs-proxy", "readFile", nil, parent)
	require.NoError(t, err)
	assert.NotEmpty(t, td.TaskID)

	parsedTrace, err := ParseTraceContext(td.Trace)
	require.NoError(t, err)
	assert.Equal(t, parent.TraceID, parsedTrace.TraceID)
}

func TestTaskResultMarshalsSuccessAndTraceContext(t *testing.T) {
	root, err := NewTraceContext()
	require.NoError(t, err)
	td, err := NewTaskDescriptor("fs-proxy", "readFile", nil, root)
	require.NoError(t, err)

	result := NewTaskResult(td, true, nil, "")
	assert.Equal(t, td.Trace, result.Trace.Traceparent)

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, true, decoded["success"])
	assert.NotContains(t, decoded, "ok")

	traceCtx, ok := decoded["trace_context"].(map[string]interface{})
	require.True(t, ok)
	assert.Regexp(t, `^00-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`, traceCtx["traceparent"])
}

func TestResponseMapResolveDeliversToRegisteredWaiter(t *testing.T) {
	rm := NewResponseMap()
	ch := rm.Register("task-1")
	assert.Equal(t, 1, rm.Pending())

	rm.Resolve(TaskResult{TaskID: "task-1", OK: true, CompletedAt: time.Now()})

	select {
	case result := <-ch:
		assert.True(t, result.OK)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolved result")
	}
	assert.Equal(t, 0, rm.Pending())
}

func TestResponseMapResolveWithNoWaiterDoesNotPanic(t *testing.T) {
	rm := NewResponseMap()
	assert.NotPanics(t, func() {
		rm.Resolve(TaskResult{TaskID: "unknown"})
	})
}

func TestValidateTransitionEnforcesStateMachine(t *testing.T) {
	assert.NoError(t, ValidateTransition(TaskStateQueued, TaskStateDispatched))
	assert.NoError(t, ValidateTransition(TaskStateDispatched, TaskStateCompleted))
	assert.Error(t, ValidateTransition(TaskStateCompleted, TaskStateDispatched))
	assert.Error(t, ValidateTransition(TaskStateQueued, TaskState("BOGUS")))
}
