package workerproto

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// TaskState is the lifecycle of a dispatched task, mirroring the
// SessionState enum shape of internal/protocol/session.go.
type TaskState string

const (
	TaskStateQueued     TaskState = "QUEUED"
	TaskStateDispatched TaskState = "DISPATCHED"
	TaskStateCompleted  TaskState = "COMPLETED"
	TaskStateFailed     TaskState = "FAILED"
	TaskStateTimedOut   TaskState = "TIMED_OUT"
)

// TaskDescriptor is the unit of work handed across the bridge to a
// worker: an opaque payload (often a shared-memory handle rather than
// an inline copy), the proxy it targets, and a trace context for
// cross-process correlation.
type TaskDescriptor struct {
	TaskID       string          `json:"task_id"`
	ProxyName    string          `json:"proxy_name"`
	Operation    string          `json:"operation"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	SharedMemory string          `json:"shared_memory,omitempty"` // handle name, when the payload is out-of-band
	Trace        string          `json:"trace"`                   // traceparent string
	SubmittedAt  time.Time       `json:"submitted_at"`
	DeadlineMS   int64           `json:"deadline_ms,omitempty"`
}

// NewTaskDescriptor builds a descriptor with a fresh correlation id
// and trace context rooted at parent (or a new root trace if parent is
// the zero value).
func NewTaskDescriptor(proxyName, operation string, payload json.RawMessage, parent TraceContext) (TaskDescriptor, error) {
	trace := parent
	var err error
	if trace == (TraceContext{}) {
		trace, err = NewTraceContext()
	} else {
		trace, err = parent.ChildSpan()
	}
	if err != nil {
		return TaskDescriptor{}, err
	}
	return TaskDescriptor{
		TaskID:      CorrelationID(),
		ProxyName:   proxyName,
		Operation:   operation,
		Payload:     payload,
		Trace:       trace.String(),
		SubmittedAt: time.Now(),
	}, nil
}

// Marshal serializes the descriptor to the wire envelope workers
// expect: a flat JSON object, matching internal/protocol/mcp_parser.go's
// preference for JSON-over-the-wire AI payloads.
func (t TaskDescriptor) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// TraceContextField echoes the traceparent a task was dispatched with
// back to the caller, nested under trace_context in the wire envelope.
type TraceContextField struct {
	Traceparent string `json:"traceparent"`
}

// TaskResult is a worker's reply to a TaskDescriptor.
type TaskResult struct {
	TaskID      string            `json:"task_id"`
	OK          bool              `json:"success"`
	Trace       TraceContextField `json:"trace_context"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Error       string            `json:"error,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// NewTaskResult builds a successful or failed TaskResult for td,
// echoing td's traceparent into the reply's trace_context.
func NewTaskResult(td TaskDescriptor, ok bool, payload json.RawMessage, errMsg string) TaskResult {
	return TaskResult{
		TaskID:      td.TaskID,
		OK:          ok,
		Trace:       TraceContextField{Traceparent: td.Trace},
		Payload:     payload,
		Error:       errMsg,
		CompletedAt: time.Now(),
	}
}

// ResponseMap correlates outstanding tasks to the channel that should
// receive their result, the Go analogue of internal/protocol/session.go's
// SequenceNum/AckNum bookkeeping, adapted from a single ordered stream
// to a concurrent task/response map.
type ResponseMap struct {
	mu      sync.Mutex
	pending map[string]chan TaskResult
}

// NewResponseMap creates an empty correlation table.
func NewResponseMap() *ResponseMap {
	return &ResponseMap{pending: make(map[string]chan TaskResult)}
}

// Register allocates a result channel for taskID; the caller must
// eventually call Resolve or Cancel to avoid leaking it.
func (m *ResponseMap) Register(taskID string) <-chan TaskResult {
	ch := make(chan TaskResult, 1)
	m.mu.Lock()
	m.pending[taskID] = ch
	m.mu.Unlock()
	return ch
}

// Resolve delivers result to the registered waiter, if any, and
// removes the registration. It is safe to call with no waiter
// registered (a late or duplicate reply is simply dropped).
func (m *ResponseMap) Resolve(result TaskResult) {
	m.mu.Lock()
	ch, ok := m.pending[result.TaskID]
	if ok {
		delete(m.pending, result.TaskID)
	}
	m.mu.Unlock()
	if ok {
		ch <- result
		close(ch)
	}
}

// Cancel removes taskID's registration without delivering a result,
// used when a deadline elapses before any worker replies.
func (m *ResponseMap) Cancel(taskID string) {
	m.mu.Lock()
	ch, ok := m.pending[taskID]
	if ok {
		delete(m.pending, taskID)
	}
	m.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Pending reports how many tasks are currently awaiting a reply.
func (m *ResponseMap) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (s TaskState) valid() bool {
	switch s {
	case TaskStateQueued, TaskStateDispatched, TaskStateCompleted, TaskStateFailed, TaskStateTimedOut:
		return true
	default:
		return false
	}
}

// ValidateTransition enforces the task state machine: queued ->
// dispatched -> (completed|failed|timed out), with queued -> failed
// also allowed, matching
// internal/protocol/session.go's state-guarded Activate().
func ValidateTransition(from, to TaskState) error {
	if !to.valid() {
		return fmt.Errorf("workerproto: unknown task state %q", to)
	}
	switch from {
	case TaskStateQueued:
		if to == TaskStateDispatched || to == TaskStateFailed {
			return nil
		}
	case TaskStateDispatched:
		if to == TaskStateCompleted || to == TaskStateFailed || to == TaskStateTimedOut {
			return nil
		}
	}
	return fmt.Errorf("workerproto: invalid task transition %s -> %s", from, to)
}
