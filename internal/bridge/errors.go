package bridge

import "errors"

// Fault sentinels for SubmitTask's failure modes. SubmitTask itself
// returns only a ResultCode; the matching sentinel's message is what
// it records as the last error (GetLastError), usually followed by
// detail. dispatch wraps ErrTransport with %w into the error it hands
// the circuit breaker.
var (
	// ErrNotInitialized is recorded when SubmitTask is called before
	// Start, or after Stop.
	ErrNotInitialized = errors.New("bridge: not initialized")

	// ErrBadPayload is recorded when a task's payload exceeds the
	// bridge's transport size limit.
	ErrBadPayload = errors.New("bridge: payload exceeds transport limit")

	// ErrReplyTooLarge is recorded when a requested reply capacity
	// exceeds the shared-memory pool's total byte budget, or the pool
	// cannot currently allocate a segment of that size.
	ErrReplyTooLarge = errors.New("bridge: reply capacity exceeds shared memory budget")

	// ErrWorkerError is recorded when a worker completes a task but
	// reports failure in its TaskResult.
	ErrWorkerError = errors.New("bridge: worker reported task failure")

	// ErrTransport is recorded when the worker pool or shared-memory
	// transport itself fails independent of worker-reported outcome
	// (worker acquire failure, reply-handle map failure, context done,
	// circuit open).
	ErrTransport = errors.New("bridge: transport failure")
)
