package vmstate

import (
	"github.com/synapticgarden/vm/internal/coroutine"
	"github.com/synapticgarden/vm/internal/eval"
	"github.com/synapticgarden/vm/internal/heap"
)

// installControlFlow installs the loop primitives onto Object: "while"
// re-evaluates its condition message before every iteration, "loop"
// runs its body unconditionally until broken. Both establish the
// nearest enclosing loop boundary that break/continue clear at, the
// counterpart to activateBlock's absorption of return.
func (s *State) installControlFlow() {
	set := func(name string, fn eval.CFunc) {
		s.Heap.SetSlot(s.ObjectProto, s.Symbols.InternString(name), s.Heap.NewObject(heap.KindCFunction, nil, fn))
	}
	set("while", s.primWhile)
	set("loop", s.primLoop)
}

// primWhile implements "while(condMessage, bodyMessage)": while the
// condition (arg 0) evaluates truthy, evaluates the body (arg 1). A
// break clears at this boundary and ends the loop; a continue clears
// here and starts the next condition check; any other stop status
// (return, exception) propagates past this primitive unresolved.
func (s *State) primWhile(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
	if call.NumArgs() != 2 {
		return heap.NilID, eval.ErrArgumentCount
	}
	result := s.Nil
	for {
		cond, err := call.ArgAt(e, 0)
		if err != nil {
			return heap.NilID, err
		}
		if !s.Truthy(cond) {
			return result, nil
		}

		v, err := call.ArgAt(e, 1)
		if err != nil {
			return heap.NilID, err
		}
		result = v

		if done, err := s.absorbLoopStop(call.Coro); done {
			return result, err
		}
	}
}

// primLoop implements "loop(bodyMessage)": evaluates the body message
// (arg 0) repeatedly until a break clears the loop boundary.
func (s *State) primLoop(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
	if call.NumArgs() != 1 {
		return heap.NilID, eval.ErrArgumentCount
	}
	result := s.Nil
	for {
		v, err := call.ArgAt(e, 0)
		if err != nil {
			return heap.NilID, err
		}
		result = v

		if done, err := s.absorbLoopStop(call.Coro); done {
			return result, err
		}
	}
}

// absorbLoopStop inspects co's stop status after one loop-body
// evaluation: normal/end-of-line and continue are cleared and the loop
// keeps running (done=false); break is cleared and ends the loop
// (done=true); anything else (return, exception) is left untouched so
// it propagates to whichever boundary up the stack is meant to see it.
func (s *State) absorbLoopStop(co *coroutine.Coroutine) (done bool, err error) {
	if co == nil {
		return false, nil
	}
	switch co.StopStatus() {
	case coroutine.StopNormal, coroutine.StopEndOfLine, coroutine.StopContinue:
		co.SetStopStatus(coroutine.StopNormal)
		return false, nil
	case coroutine.StopBreak:
		co.SetStopStatus(coroutine.StopNormal)
		return true, nil
	default:
		return true, nil
	}
}
