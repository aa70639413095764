package eval

import (
	"github.com/synapticgarden/vm/internal/coroutine"
	"github.com/synapticgarden/vm/internal/heap"
)

// cfunc wraps a Go function as a KindCFunction slot value.
func cfunc(h *heap.Heap, fn CFunc) heap.ID {
	return h.NewObject(heap.KindCFunction, nil, fn)
}

// InstallCorePrimitives sets the always-present message-dispatch
// primitives onto target (the Object prototype, wired up by
// internal/vmstate when it builds the Lobby). forward is deliberately
// not installed here: its absence is what makes the default
// doesNotUnderstand path in Send fire; an embedder or user program
// installs its own forward slot to opt in to message interception.
func InstallCorePrimitives(e *Evaluator, target heap.ID) {
	set := func(name string, fn CFunc) {
		e.Heap.SetSlot(target, e.Symbols.InternString(name), cfunc(e.Heap, fn))
	}

	set("clone", primClone)
	set("setSlotWithType", primSetSlot)
	set("updateSlot", primUpdateSlot)
	set("newSlot", primSetSlot)
	set("resend", primResend)
	set("self", primSelf)
	set("return", primReturn)
	set("break", primBreak)
	set("continue", primContinue)
}

// primClone implements "On clone/primitive-new: object is inserted
// after the grays sentinel" — the new object's sole prototype is the
// call's receiver. It is retained on the active coroutine's top retain
// frame so a concurrent incremental collection cannot free it before
// its caller stores it in a slot.
func primClone(e *Evaluator, call *Call) (heap.ID, error) {
	obj := e.Heap.NewObject(heap.KindObject, []heap.ID{call.Target}, nil)
	if call.Coro != nil {
		call.Coro.Retain(obj)
	}
	return obj, nil
}

// primSetSlot implements ":="/"::=": the slot name is the first
// argument message's own name, used unevaluated (the classic
// "assignment's left side is syntax, not a sub-expression"), and the
// value is the second argument evaluated against the sender's context.
func primSetSlot(e *Evaluator, call *Call) (heap.ID, error) {
	if call.NumArgs() != 2 {
		return heap.NilID, ErrArgumentCount
	}
	name := call.Message.Args[0].Name
	value, err := call.ArgAt(e, 1)
	if err != nil {
		return heap.NilID, err
	}
	e.Heap.SetSlot(call.Target, name, value)
	return value, nil
}

// primUpdateSlot implements "=": it requires the slot already exist
// somewhere on the prototype chain and writes through to whichever
// object actually owns it, rather than shadowing it on the receiver.
func primUpdateSlot(e *Evaluator, call *Call) (heap.ID, error) {
	if call.NumArgs() != 2 {
		return heap.NilID, ErrArgumentCount
	}
	name := call.Message.Args[0].Name
	_, owner, ok := e.lookup(call.Target, name)
	if !ok {
		return heap.NilID, &Exception{
			Cause:       ErrDoesNotUnderstand,
			TargetKind:  e.Heap.Kind(call.Target).String(),
			MessageName: name.String(),
		}
	}
	value, err := call.ArgAt(e, 1)
	if err != nil {
		return heap.NilID, err
	}
	e.Heap.SetSlot(owner, name, value)
	return value, nil
}

// primResend re-dispatches the message that is currently being
// activated, starting the prototype search one level up from wherever
// the current slot was found, keeping the original receiver as target
// so self still binds the way the caller expects.
func primResend(e *Evaluator, call *Call) (heap.ID, error) {
	val, owner, ok := e.lookupPastOwner(call.Owner, call.Message.Name)
	if !ok {
		return heap.NilID, &Exception{
			Cause:       ErrDoesNotUnderstand,
			TargetKind:  e.Heap.Kind(call.Target).String(),
			MessageName: call.Message.Name.String(),
		}
	}
	up := &Call{
		Sender:      call.Sender,
		Target:      call.Target,
		Owner:       owner,
		Activated:   val,
		Message:     call.Message,
		SlotContext: call.SlotContext,
		Coro:        call.Coro,
	}
	return e.activate(call.Coro, val, up)
}

func primSelf(e *Evaluator, call *Call) (heap.ID, error) {
	return call.Target, nil
}

// primReturn sets StopReturn on the active coroutine; the nearest
// enclosing Block activation with PassStops false absorbs it (see
// activateBlock).
func primReturn(e *Evaluator, call *Call) (heap.ID, error) {
	result := e.Nil
	if call.NumArgs() > 0 {
		v, err := call.ArgAt(e, 0)
		if err != nil {
			return heap.NilID, err
		}
		result = v
	}
	if call.Coro != nil {
		call.Coro.SetStopStatus(coroutine.StopReturn)
	}
	return result, nil
}

func primBreak(e *Evaluator, call *Call) (heap.ID, error) {
	if call.Coro != nil {
		call.Coro.SetStopStatus(coroutine.StopBreak)
	}
	return e.Nil, nil
}

func primContinue(e *Evaluator, call *Call) (heap.ID, error) {
	if call.Coro != nil {
		call.Coro.SetStopStatus(coroutine.StopContinue)
	}
	return e.Nil, nil
}
