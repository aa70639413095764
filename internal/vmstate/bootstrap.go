package vmstate

import (
	"github.com/synapticgarden/vm/internal/eval"
	"github.com/synapticgarden/vm/internal/heap"
)

// bootstrap builds the Lobby, the primitive-object prototypes, the
// cached nil/true/false singletons, and the cached small-integer
// table, then wires the Evaluator's literal constructors to clone from
// the prototypes this package owns (internal/eval deliberately has no
// opinion on what a "number" or "string" object looks like beyond its
// Kind tag).
func (s *State) bootstrap() {
	h := s.Heap

	s.ObjectProto = h.NewObject(heap.KindObject, nil, nil)
	h.AddRoot(s.ObjectProto)
	eval.InstallCorePrimitives(s.Eval, s.ObjectProto)

	s.NumberProto = h.NewObject(heap.KindObject, []heap.ID{s.ObjectProto}, nil)
	s.SequenceProto = h.NewObject(heap.KindObject, []heap.ID{s.ObjectProto}, nil)
	s.BoolProto = h.NewObject(heap.KindObject, []heap.ID{s.ObjectProto}, nil)
	s.NilProto = h.NewObject(heap.KindObject, []heap.ID{s.ObjectProto}, nil)
	s.BlockProto = h.NewObject(heap.KindObject, []heap.ID{s.ObjectProto}, nil)
	s.CoroutineProto = h.NewObject(heap.KindObject, []heap.ID{s.ObjectProto}, nil)
	for _, id := range []heap.ID{s.NumberProto, s.SequenceProto, s.BoolProto, s.NilProto, s.BlockProto, s.CoroutineProto} {
		h.AddRoot(id)
	}

	s.Nil = h.NewObject(heap.KindNil, []heap.ID{s.NilProto}, nil)
	s.True = h.NewObject(heap.KindBool, []heap.ID{s.BoolProto}, true)
	s.False = h.NewObject(heap.KindBool, []heap.ID{s.BoolProto}, false)
	h.AddRoot(s.Nil)
	h.AddRoot(s.True)
	h.AddRoot(s.False)
	s.Eval.Nil = s.Nil

	// Activating nil with arguments does not fail — it returns nil:
	// give Nil its own forward slot so the default doesNotUnderstand
	// path never fires for it.
	nilForward := h.NewObject(heap.KindCFunction, nil, eval.CFunc(func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
		return s.Nil, nil
	}))
	h.SetSlot(s.NilProto, s.Symbols.InternString("forward"), nilForward)

	for i := smallIntMin; i <= smallIntMax; i++ {
		id := h.NewObject(heap.KindNumber, []heap.ID{s.NumberProto}, float64(i))
		h.AddRoot(id)
		s.smallInts[i-smallIntMin] = id
	}

	s.Eval.MakeNumber = s.makeNumber
	s.Eval.MakeString = s.makeString

	s.Lobby = h.NewObject(heap.KindObject, []heap.ID{s.ObjectProto}, nil)
	h.AddRoot(s.Lobby)
	h.SetSlot(s.Lobby, s.Symbols.InternString("Lobby"), s.Lobby)
	h.SetSlot(s.Lobby, s.Symbols.InternString("Object"), s.ObjectProto)
	h.SetSlot(s.Lobby, s.Symbols.InternString("Number"), s.NumberProto)
	h.SetSlot(s.Lobby, s.Symbols.InternString("Sequence"), s.SequenceProto)
	h.SetSlot(s.Lobby, s.Symbols.InternString("true"), s.True)
	h.SetSlot(s.Lobby, s.Symbols.InternString("false"), s.False)
	h.SetSlot(s.Lobby, s.Symbols.InternString("nil"), s.Nil)

	s.installCompare()
	s.installArithmetic()
	s.installBooleanLogic()
	s.installControlFlow()
}

// makeNumber returns the cached object for n if n is a small integer
// in [smallIntMin, smallIntMax], else allocates a fresh Number object.
func (s *State) makeNumber(n float64) heap.ID {
	if i := int(n); float64(i) == n && i >= smallIntMin && i <= smallIntMax {
		return s.smallInts[i-smallIntMin]
	}
	return s.Heap.NewObject(heap.KindNumber, []heap.ID{s.NumberProto}, n)
}

// makeString allocates a fresh Sequence object holding str. Unlike
// numbers, sequences are mutable in Io's object model, so they are
// never cached.
func (s *State) makeString(str string) heap.ID {
	return s.Heap.NewObject(heap.KindSequence, []heap.ID{s.SequenceProto}, str)
}

// installCompare gives Object a default `compare` primitive realizing
// the edge case "comparing objects of different tags falls back to
// address ordering": numbers and matching-kind sequences compare by
// value, everything else compares by heap index.
func (s *State) installCompare() {
	h := s.Heap
	h.SetSlot(s.ObjectProto, s.Symbols.InternString("compare"), h.NewObject(heap.KindCFunction, nil, eval.CFunc(
		func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
			if call.NumArgs() != 1 {
				return heap.NilID, eval.ErrArgumentCount
			}
			other, err := call.ArgAt(e, 0)
			if err != nil {
				return heap.NilID, err
			}
			return s.makeNumber(float64(s.compare(call.Target, other))), nil
		},
	)))
}

func (s *State) compare(a, b heap.ID) int {
	kindA, kindB := s.Heap.Kind(a), s.Heap.Kind(b)
	if kindA == heap.KindNumber && kindB == heap.KindNumber {
		na, _ := s.Heap.Payload(a).(float64)
		nb, _ := s.Heap.Payload(b).(float64)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	if kindA == heap.KindSequence && kindB == heap.KindSequence {
		sa, _ := s.Heap.Payload(a).(string)
		sb, _ := s.Heap.Payload(b).(string)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		default:
			return 0
		}
	}
	// Different tags (or identical non-comparable kinds): fall back to
	// address ordering on the arena index, the Go realization of
	// "falls back to address ordering" without exposing real pointers.
	switch {
	case a.Index < b.Index:
		return -1
	case a.Index > b.Index:
		return 1
	default:
		return 0
	}
}
