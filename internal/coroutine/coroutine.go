// Package coroutine implements the VM's cooperative fiber model.
// Scheduling is symmetric and cooperative: exactly one coroutine is
// ever executing VM code at a time.
//
// Go gives no portable access to raw stack/ucontext switching, so
// each Coroutine is backed by one goroutine and a pair of unbuffered
// channels that hand control back and forth. The cooperative
// guarantee is real: the other goroutine is always blocked on a
// channel receive except the one currently "current."
package coroutine

import (
	"github.com/synapticgarden/vm/internal/heap"
)

// Status is the coroutine's lifecycle state.
type Status uint8

const (
	Inert Status = iota
	Running
	Parked
	Terminated
)

func (s Status) String() string {
	switch s {
	case Inert:
		return "inert"
	case Running:
		return "running"
	case Parked:
		return "parked"
	default:
		return "terminated"
	}
}

// StopStatus is the per-activation control-flow signal described in
// the glossary: it carries return/break/continue/exception out of an
// activation until the right boundary clears it.
type StopStatus uint8

const (
	StopNormal StopStatus = iota
	StopReturn
	StopBreak
	StopContinue
	StopEndOfLine
	StopException
)

// RunFunc is the body a coroutine executes once started. It receives
// the coroutine so it can call Yield from within; it returns the
// coroutine's final result (or an error, captured into Exception on
// an uncaught failure).
type RunFunc func(co *Coroutine) (heap.ID, error)

type handoff struct {
	value heap.ID
	done  bool
	err   error
}

// Coroutine is a cooperative fiber: its own (goroutine-backed) stack,
// a retain-pool stack of generational GC roots, and a parent link.
type Coroutine struct {
	id         uint64
	parent     *Coroutine
	status     Status
	started    bool
	stop       StopStatus
	result     heap.ID
	exception  error
	debug      bool
	retainPool [][]heap.ID

	run         RunFunc
	toCoroutine chan heap.ID
	toCaller    chan handoff
}

// New creates an inert coroutine with the given id and parent. Every
// coroutine but the main one must have a non-nil parent, forming the
// DAG-rooted-at-main invariant; the main coroutine is created with a
// nil parent by its owner (internal/vmstate).
func New(id uint64, parent *Coroutine, run RunFunc) *Coroutine {
	return &Coroutine{
		id:          id,
		parent:      parent,
		status:      Inert,
		run:         run,
		toCoroutine: make(chan heap.ID),
		toCaller:    make(chan handoff),
	}
}

// ID returns the coroutine's identity.
func (co *Coroutine) ID() uint64 { return co.id }

// Parent returns the coroutine that created this one, or nil for main.
func (co *Coroutine) Parent() *Coroutine { return co.parent }

// Status reports the coroutine's lifecycle state.
func (co *Coroutine) Status() Status { return co.status }

// StopStatus reports the current control-flow signal.
func (co *Coroutine) StopStatus() StopStatus { return co.stop }

// SetStopStatus sets the control-flow signal; the Evaluator clears it
// at the appropriate boundary.
func (co *Coroutine) SetStopStatus(s StopStatus) { co.stop = s }

// Cancel sets stop-status to exception, causing the coroutine's next
// message activation to unwind.
func (co *Coroutine) Cancel(err error) {
	co.exception = err
	co.stop = StopException
}

// Exception returns the error captured in this coroutine's exception
// slot, if any (populated by a completed try() child, or by Cancel).
func (co *Coroutine) Exception() error { return co.exception }

// SetDebug toggles the debugging flag.
func (co *Coroutine) SetDebug(v bool) { co.debug = v }

// Debug reports the debugging flag.
func (co *Coroutine) Debug() bool { return co.debug }

// PushRetainPool pushes a fresh generational root frame, entered on
// protection-scope entry.
func (co *Coroutine) PushRetainPool() {
	co.retainPool = append(co.retainPool, nil)
}

// PopRetainPool pops the topmost retain frame on protection-scope
// exit.
func (co *Coroutine) PopRetainPool() {
	if len(co.retainPool) == 0 {
		return
	}
	co.retainPool = co.retainPool[:len(co.retainPool)-1]
}

// Retain adds id to the topmost retain-pool frame so it survives
// collections until that frame is popped.
func (co *Coroutine) Retain(id heap.ID) {
	if len(co.retainPool) == 0 {
		co.PushRetainPool()
	}
	top := len(co.retainPool) - 1
	co.retainPool[top] = append(co.retainPool[top], id)
}

// Roots returns every id retained across all frames, for the
// scheduler's owner (internal/vmstate) to add as GC roots.
func (co *Coroutine) Roots() []heap.ID {
	var all []heap.ID
	for _, frame := range co.retainPool {
		all = append(all, frame...)
	}
	return all
}

// Yield suspends the calling coroutine (must be invoked from within
// its own RunFunc), handing val back to whoever resumed it, and
// blocks until the next Resume, returning the value that call passed.
func (co *Coroutine) Yield(val heap.ID) heap.ID {
	co.status = Parked
	co.toCaller <- handoff{value: val}
	resumed := <-co.toCoroutine
	co.status = Running
	return resumed
}

// Resume switches execution to co: starting it if inert, or handing
// it sendVal if previously parked. It blocks the calling goroutine's
// native thread until co yields or terminates, and returns the
// produced value, whether the coroutine has now terminated, and any
// error from an uncaught failure.
//
// Resuming an already-terminated coroutine is well-defined: it
// repeats the terminal result without restarting the body.
func (co *Coroutine) Resume(sendVal heap.ID) (heap.ID, bool, error) {
	if co.status == Terminated {
		return co.result, true, co.exception
	}

	co.status = Running
	if co.wasStarted() {
		co.toCoroutine <- sendVal
	} else {
		co.started = true
		go co.bootstrap()
	}

	h := <-co.toCaller
	if h.done {
		co.status = Terminated
		co.result = h.value
		co.exception = h.err
	}
	return h.value, h.done, h.err
}

func (co *Coroutine) wasStarted() bool { return co.started }

func (co *Coroutine) bootstrap() {
	val, err := co.run(co)
	co.toCaller <- handoff{value: val, done: true, err: err}
}
