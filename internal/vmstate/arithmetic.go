package vmstate

import (
	"math"

	"github.com/synapticgarden/vm/internal/eval"
	"github.com/synapticgarden/vm/internal/heap"
)

// installArithmetic gives NumberProto the four basic operators. Each
// is a CFunc rather than a Block because the fast path (both operands
// already Numbers) never needs a locals frame, and the slow path
// (operand is some other kind) needs to raise typeMismatch directly
// rather than let a generic block body do it.
func (s *State) installArithmetic() {
	set := func(name string, fn eval.CFunc) {
		s.Heap.SetSlot(s.NumberProto, s.Symbols.InternString(name), s.Heap.NewObject(heap.KindCFunction, nil, fn))
	}

	set("+", s.numAdd)
	set("-", s.numSub)
	set("*", s.numMul)
	set("/", s.numDiv)
}

func (s *State) numOperand(e *eval.Evaluator, call *eval.Call, i int) (float64, error) {
	if i >= call.NumArgs() {
		return 0, eval.ErrArgumentCount
	}
	v, err := call.ArgAt(e, i)
	if err != nil {
		return 0, err
	}
	if s.Heap.Kind(v) != heap.KindNumber {
		return 0, &eval.Exception{Cause: eval.ErrTypeMismatch, TargetKind: s.Heap.Kind(v).String(), MessageName: call.Message.Name.String()}
	}
	n, _ := s.Heap.Payload(v).(float64)
	return n, nil
}

// checkOverflow realizes the "numericOverflow" fault: once a result
// escapes float64's finite range, the arithmetic primitive fails
// instead of silently producing +Inf/-Inf/NaN. Operands are not
// checked on their own.
func checkOverflow(n float64) error {
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return eval.ErrNumericOverflow
	}
	return nil
}

func (s *State) numSelf(call *eval.Call) (float64, error) {
	if s.Heap.Kind(call.Target) != heap.KindNumber {
		return 0, &eval.Exception{Cause: eval.ErrTypeMismatch, TargetKind: s.Heap.Kind(call.Target).String(), MessageName: call.Message.Name.String()}
	}
	n, _ := s.Heap.Payload(call.Target).(float64)
	return n, nil
}

func (s *State) numAdd(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
	self, err := s.numSelf(call)
	if err != nil {
		return heap.NilID, err
	}
	operand, err := s.numOperand(e, call, 0)
	if err != nil {
		return heap.NilID, err
	}
	result := self + operand
	if err := checkOverflow(result); err != nil {
		return heap.NilID, err
	}
	return s.makeNumber(result), nil
}

func (s *State) numSub(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
	self, err := s.numSelf(call)
	if err != nil {
		return heap.NilID, err
	}
	operand, err := s.numOperand(e, call, 0)
	if err != nil {
		return heap.NilID, err
	}
	result := self - operand
	if err := checkOverflow(result); err != nil {
		return heap.NilID, err
	}
	return s.makeNumber(result), nil
}

func (s *State) numMul(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
	self, err := s.numSelf(call)
	if err != nil {
		return heap.NilID, err
	}
	operand, err := s.numOperand(e, call, 0)
	if err != nil {
		return heap.NilID, err
	}
	result := self * operand
	if err := checkOverflow(result); err != nil {
		return heap.NilID, err
	}
	return s.makeNumber(result), nil
}

func (s *State) numDiv(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
	self, err := s.numSelf(call)
	if err != nil {
		return heap.NilID, err
	}
	operand, err := s.numOperand(e, call, 0)
	if err != nil {
		return heap.NilID, err
	}
	if operand == 0 {
		return heap.NilID, eval.ErrDivisionByZero
	}
	result := self / operand
	if err := checkOverflow(result); err != nil {
		return heap.NilID, err
	}
	return s.makeNumber(result), nil
}
