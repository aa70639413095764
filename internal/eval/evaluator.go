// Package eval implements the VM's message-dispatch contract: per-send
// literal caching, depth-first cycle-safe prototype lookup,
// forward/doesNotUnderstand fallback, and activation of
// CFunction/Block/primitive slot values.
package eval

import (
	"github.com/synapticgarden/vm/internal/coroutine"
	"github.com/synapticgarden/vm/internal/heap"
	"github.com/synapticgarden/vm/internal/message"
	"github.com/synapticgarden/vm/internal/symbol"
)

// CFunc is a primitive slot value implemented in Go. It receives the
// evaluator and the activation record and decides for itself whether
// and when to evaluate its call's argument messages — exactly the
// lazy-evaluation latitude ifTrue/ifFalse and and/or rely on.
type CFunc func(e *Evaluator, call *Call) (heap.ID, error)

// Evaluator drives message sends against a single Heap. It is not
// itself the scheduler: internal/vmstate owns the current coroutine and
// calls Send on its behalf once per top-level send, ticking the
// sandbox gate (which runs Heap.Step(1)) each time. Sends made from
// inside the Evaluator are not gated.
type Evaluator struct {
	Heap    *heap.Heap
	Symbols *symbol.Table

	forwardSym *symbol.Symbol
	dnuSym     *symbol.Symbol

	literalCache map[*message.Tree]heap.ID

	// Nil is the cached singleton returned for literal-less empty
	// results. Constructors below are injected by internal/vmstate,
	// which owns the prototype objects (Number, Sequence, ...) that
	// literal values and primitives need to clone from.
	Nil        heap.ID
	MakeNumber func(n float64) heap.ID
	MakeString func(s string) heap.ID
}

// NewEvaluator creates an Evaluator bound to h and symtab.
func NewEvaluator(h *heap.Heap, symtab *symbol.Table) *Evaluator {
	return &Evaluator{
		Heap:         h,
		Symbols:      symtab,
		forwardSym:   symtab.InternString("forward"),
		dnuSym:       symtab.InternString("doesNotUnderstand"),
		literalCache: make(map[*message.Tree]heap.ID),
	}
}

// Send performs one message dispatch: target receives msg, evaluated
// in the context of locals. target and locals coincide for an
// implicit-self send (the common case — "x := 5" at top level); they
// diverge when a Block activates its body with a distinct receiver.
//
// Send implements the four-step contract verbatim: literal shortcut,
// prototype-chain lookup with forward/doesNotUnderstand fallback,
// activation, and returning control to the caller so it can consult
// the coroutine's stop-status (EvalSequence does that for statement
// lists; a single Send leaves the decision to its caller).
func (e *Evaluator) Send(co *coroutine.Coroutine, target, locals heap.ID, msg *message.Tree) (heap.ID, error) {
	if msg.Literal.Valid {
		return e.literalValue(msg), nil
	}

	val, owner, found := e.lookup(target, msg.Name)
	if found {
		call := &Call{Sender: locals, Target: target, Owner: owner, Activated: val, Message: msg, SlotContext: locals, Coro: co}
		return e.activate(co, val, call)
	}

	if fwd, fOwner, ok := e.lookup(target, e.forwardSym); ok {
		call := &Call{Sender: locals, Target: target, Owner: fOwner, Activated: fwd, Message: msg, SlotContext: locals, Coro: co}
		return e.activate(co, fwd, call)
	}

	if dnu, dOwner, ok := e.lookup(target, e.dnuSym); ok {
		call := &Call{Sender: locals, Target: target, Owner: dOwner, Activated: dnu, Message: msg, SlotContext: locals, Coro: co}
		return e.activate(co, dnu, call)
	}

	return heap.NilID, &Exception{
		Cause:       ErrDoesNotUnderstand,
		TargetKind:  e.Heap.Kind(target).String(),
		MessageName: msg.Name.String(),
	}
}

// EvalSequence walks a statement list (the Next chain), sending each
// node to target/locals in turn, checking the coroutine's stop-status
// after every statement. A normal or end-of-line signal continues the
// list (end-of-line is cleared so the next top-level statement starts
// fresh); any other signal (return/break/continue/exception) halts the
// sequence immediately so the right boundary up the call stack can
// observe and clear it.
func (e *Evaluator) EvalSequence(co *coroutine.Coroutine, target, locals heap.ID, first *message.Tree) (heap.ID, error) {
	result := e.Nil
	for n := first; n != nil; n = n.Next {
		v, err := e.Send(co, target, locals, n)
		if err != nil {
			return heap.NilID, err
		}
		result = v
		if co == nil {
			continue
		}
		switch co.StopStatus() {
		case coroutine.StopNormal:
		case coroutine.StopEndOfLine:
			co.SetStopStatus(coroutine.StopNormal)
		default:
			return result, nil
		}
	}
	return result, nil
}

func (e *Evaluator) activate(co *coroutine.Coroutine, val heap.ID, call *Call) (heap.ID, error) {
	switch e.Heap.Kind(val) {
	case heap.KindCFunction:
		fn, ok := e.Heap.Payload(val).(CFunc)
		if !ok {
			return heap.NilID, ErrTypeMismatch
		}
		return fn(e, call)
	case heap.KindBlock:
		blk, ok := e.Heap.Payload(val).(*Block)
		if !ok {
			return heap.NilID, ErrTypeMismatch
		}
		return e.activateBlock(co, blk, call)
	default:
		// "Primitive objects (numbers, sequences, nil/true/false)
		// activate to themselves."
		return val, nil
	}
}

// lookup walks target's prototype graph depth-first, stopping at
// already-visited objects so multiple-inheritance diamonds and outright
// cycles terminate instead of looping forever. It returns the slot
// value and the object that actually owns the slot (target itself, or
// an ancestor) — the owner is what resend needs to search past.
func (e *Evaluator) lookup(target heap.ID, name *symbol.Symbol) (heap.ID, heap.ID, bool) {
	return e.lookupFrom(target, name, make(map[heap.ID]bool))
}

func (e *Evaluator) lookupFrom(obj heap.ID, name *symbol.Symbol, visited map[heap.ID]bool) (heap.ID, heap.ID, bool) {
	if obj.IsNil() || visited[obj] {
		return heap.NilID, heap.NilID, false
	}
	visited[obj] = true

	if v, ok := e.Heap.GetSlot(obj, name); ok {
		return v, obj, true
	}
	for _, proto := range e.Heap.Protos(obj) {
		if v, owner, ok := e.lookupFrom(proto, name, visited); ok {
			return v, owner, true
		}
	}
	return heap.NilID, heap.NilID, false
}

// lookupPastOwner searches name starting one level up from owner's own
// prototype list, skipping owner itself — resend's "re-dispatch
// starting one level up the prototype list."
func (e *Evaluator) lookupPastOwner(owner heap.ID, name *symbol.Symbol) (heap.ID, heap.ID, bool) {
	visited := map[heap.ID]bool{owner: true}
	for _, proto := range e.Heap.Protos(owner) {
		if v, o, ok := e.lookupFrom(proto, name, visited); ok {
			return v, o, true
		}
	}
	return heap.NilID, heap.NilID, false
}

func (e *Evaluator) literalValue(msg *message.Tree) heap.ID {
	if cached, ok := e.literalCache[msg]; ok {
		return cached
	}
	var v heap.ID
	switch msg.Literal.Kind {
	case message.LiteralNumber:
		if e.MakeNumber != nil {
			v = e.MakeNumber(msg.Literal.Num)
		}
	case message.LiteralString, message.LiteralSymbol:
		if e.MakeString != nil {
			v = e.MakeString(msg.Literal.Str)
		}
	}
	e.literalCache[msg] = v
	return v
}
