package vmstate

import (
	"github.com/synapticgarden/vm/internal/eval"
	"github.com/synapticgarden/vm/internal/heap"
)

// installBooleanLogic gives true/false the conditional and
// short-circuiting primitives, and nil (through Object) the
// conditionals only. ifTrue/ifFalse/and/or all lean on
// Call.ArgAt's lazy evaluation: the branch not taken is never sent,
// matching the "lazy evaluation latitude" the evaluator's doc comment
// calls out. ifTrue/ifFalse are installed on ObjectProto (so nil's
// default false-like behavior falls out of the same primitive) and
// overridden on BoolProto for true.
func (s *State) installBooleanLogic() {
	setOn := func(target heap.ID, name string, fn eval.CFunc) {
		s.Heap.SetSlot(target, s.Symbols.InternString(name), s.Heap.NewObject(heap.KindCFunction, nil, fn))
	}

	// Default (Object, and therefore Nil via inheritance): falsy.
	setOn(s.ObjectProto, "ifTrue", func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
		return s.Nil, nil
	})
	setOn(s.ObjectProto, "ifFalse", func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
		if call.NumArgs() == 0 {
			return s.Nil, nil
		}
		return call.ArgAt(e, 0)
	})

	setOn(s.BoolProto, "ifTrue", func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
		if call.Target != s.True {
			return s.Nil, nil
		}
		if call.NumArgs() == 0 {
			return s.Nil, nil
		}
		return call.ArgAt(e, 0)
	})
	setOn(s.BoolProto, "ifFalse", func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
		if call.Target == s.True {
			return s.Nil, nil
		}
		if call.NumArgs() == 0 {
			return s.Nil, nil
		}
		return call.ArgAt(e, 0)
	})

	setOn(s.BoolProto, "and", func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
		if call.Target != s.True {
			return s.False, nil
		}
		v, err := call.ArgAt(e, 0)
		if err != nil {
			return heap.NilID, err
		}
		return s.asBool(s.Truthy(v)), nil
	})
	setOn(s.BoolProto, "or", func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
		if call.Target == s.True {
			return s.True, nil
		}
		v, err := call.ArgAt(e, 0)
		if err != nil {
			return heap.NilID, err
		}
		return s.asBool(s.Truthy(v)), nil
	})
	setOn(s.BoolProto, "not", func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
		return s.asBool(call.Target != s.True), nil
	})
}

// Truthy implements Io-style truthiness: only nil and false are
// falsy; every other object, including 0 and the empty sequence, is
// truthy.
func (s *State) Truthy(id heap.ID) bool {
	return id != s.Nil && id != s.False
}

func (s *State) asBool(v bool) heap.ID {
	if v {
		return s.True
	}
	return s.False
}
