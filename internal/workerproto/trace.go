// Package workerproto implements the wire contract between the VM and
// the Synaptic Bridge's out-of-process workers: task descriptors,
// trace propagation, task state transitions, and task/response
// correlation, in the style of internal/protocol/session.go's session
// layer.
package workerproto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// TraceContext is a W3C traceparent-compatible correlation token
// attached to every TaskDescriptor, so a worker's logs/spans can be
// joined back to the VM activation that dispatched the task.
type TraceContext struct {
	Version  byte
	TraceID  [16]byte
	SpanID   [8]byte
	Flags    byte
}

// NewTraceContext mints a fresh root trace context, seeded with
// crypto/rand exactly as internal/protocol/session.go's session ID
// generation does.
func NewTraceContext() (TraceContext, error) {
	var tc TraceContext
	if _, err := rand.Read(tc.TraceID[:]); err != nil {
		return TraceContext{}, fmt.Errorf("trace context: generate trace id: %w", err)
	}
	if _, err := rand.Read(tc.SpanID[:]); err != nil {
		return TraceContext{}, fmt.Errorf("trace context: generate span id: %w", err)
	}
	tc.Flags = 0x01 // sampled
	return tc, nil
}

// ChildSpan derives a new trace context that shares TraceID with the
// receiver (same logical request) but carries a fresh SpanID (a new
// hop), the standard traceparent child-span derivation.
func (tc TraceContext) ChildSpan() (TraceContext, error) {
	child := tc
	if _, err := rand.Read(child.SpanID[:]); err != nil {
		return TraceContext{}, fmt.Errorf("trace context: generate child span id: %w", err)
	}
	return child, nil
}

// String renders the traceparent header value:
// "00-<32 hex trace id>-<16 hex span id>-<2 hex flags>".
func (tc TraceContext) String() string {
	return fmt.Sprintf("%02x-%s-%s-%02x", tc.Version, hex.EncodeToString(tc.TraceID[:]), hex.EncodeToString(tc.SpanID[:]), tc.Flags)
}

// ParseTraceContext parses a traceparent header value produced by
// String (or a compliant peer).
func ParseTraceContext(s string) (TraceContext, error) {
	var tc TraceContext
	if len(s) != 55 {
		return tc, fmt.Errorf("trace context: malformed traceparent %q", s)
	}
	if _, err := fmt.Sscanf(s[0:2], "%02x", &tc.Version); err != nil {
		return tc, fmt.Errorf("trace context: parse version: %w", err)
	}
	traceIDBytes, err := hex.DecodeString(s[3:35])
	if err != nil || len(traceIDBytes) != 16 {
		return tc, fmt.Errorf("trace context: parse trace id: %w", err)
	}
	copy(tc.TraceID[:], traceIDBytes)
	spanIDBytes, err := hex.DecodeString(s[36:52])
	if err != nil || len(spanIDBytes) != 8 {
		return tc, fmt.Errorf("trace context: parse span id: %w", err)
	}
	copy(tc.SpanID[:], spanIDBytes)
	if _, err := fmt.Sscanf(s[53:55], "%02x", &tc.Flags); err != nil {
		return tc, fmt.Errorf("trace context: parse flags: %w", err)
	}
	return tc, nil
}

// CorrelationID mints a task correlation identifier. google/uuid gives
// a collision-safe id without the VM having to manage a counter shared
// across worker processes.
func CorrelationID() string {
	return uuid.New().String()
}
