package vmstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapticgarden/vm/internal/coroutine"
	"github.com/synapticgarden/vm/internal/eval"
	"github.com/synapticgarden/vm/internal/heap"
	"github.com/synapticgarden/vm/internal/message"
)

func (s *State) sendOp(t *testing.T, target heap.ID, name string, args ...*message.Tree) (heap.ID, error) {
	t.Helper()
	msg := message.New(s.Symbols.InternString(name)).WithArgs(args...)
	return s.Send(target, target, msg)
}

func (s *State) litNum(n float64) *message.Tree {
	return message.NumberLiteral(s.Symbols.InternString(""), n)
}

func TestNumberArithmetic(t *testing.T) {
	s := newTestState(t)
	ten := s.makeNumber(10)

	sum, err := s.sendOp(t, ten, "+", s.litNum(4))
	require.NoError(t, err)
	assert.Equal(t, 14.0, s.Heap.Payload(sum))

	diff, err := s.sendOp(t, ten, "-", s.litNum(4))
	require.NoError(t, err)
	assert.Equal(t, 6.0, s.Heap.Payload(diff))

	prod, err := s.sendOp(t, ten, "*", s.litNum(4))
	require.NoError(t, err)
	assert.Equal(t, 40.0, s.Heap.Payload(prod))

	quot, err := s.sendOp(t, ten, "/", s.litNum(4))
	require.NoError(t, err)
	assert.Equal(t, 2.5, s.Heap.Payload(quot))
}

func TestDivisionByZeroFails(t *testing.T) {
	s := newTestState(t)
	ten := s.makeNumber(10)

	_, err := s.sendOp(t, ten, "/", s.litNum(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, eval.ErrDivisionByZero)
}

func TestArithmeticTypeMismatch(t *testing.T) {
	s := newTestState(t)
	ten := s.makeNumber(10)

	_, err := s.sendOp(t, ten, "+", &message.Tree{Name: s.Symbols.InternString("clone")})
	require.Error(t, err)
	assert.ErrorIs(t, err, eval.ErrTypeMismatch)
}

func TestBooleanIfTrueIfFalse(t *testing.T) {
	s := newTestState(t)

	hit, err := s.sendOp(t, s.True, "ifTrue", s.litNum(1))
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Heap.Payload(hit))

	miss, err := s.sendOp(t, s.False, "ifTrue", s.litNum(1))
	require.NoError(t, err)
	assert.Equal(t, s.Nil, miss)

	hit2, err := s.sendOp(t, s.False, "ifFalse", s.litNum(2))
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.Heap.Payload(hit2))
}

func TestBooleanAndOrShortCircuit(t *testing.T) {
	s := newTestState(t)

	r, err := s.sendOp(t, s.False, "and", &message.Tree{Name: s.Symbols.InternString("bogusMessageThatWouldFail")})
	require.NoError(t, err) // "and" on false never evaluates its argument
	assert.Equal(t, s.False, r)

	r2, err := s.sendOp(t, s.True, "or", &message.Tree{Name: s.Symbols.InternString("bogusMessageThatWouldFail")})
	require.NoError(t, err) // "or" on true never evaluates its argument
	assert.Equal(t, s.True, r2)

	r3, err := s.sendOp(t, s.True, "and", &message.Tree{Name: s.Symbols.InternString("self")})
	require.NoError(t, err)
	assert.Equal(t, s.True, r3)
}

func TestWhileLoopRunsUntilConditionIsFalse(t *testing.T) {
	s := newTestState(t)

	count := 0
	condSym := s.Symbols.InternString("stillGoing")
	bodySym := s.Symbols.InternString("tick")
	s.Heap.SetSlot(s.ObjectProto, condSym, s.Heap.NewObject(heap.KindCFunction, nil, eval.CFunc(
		func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
			return s.asBool(count < 5), nil
		},
	)))
	s.Heap.SetSlot(s.ObjectProto, bodySym, s.Heap.NewObject(heap.KindCFunction, nil, eval.CFunc(
		func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
			count++
			return s.Nil, nil
		},
	)))

	_, err := s.sendOp(t, s.Lobby, "while", &message.Tree{Name: condSym}, &message.Tree{Name: bodySym})
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Equal(t, coroutine.StopNormal, s.current.StopStatus())
}

func TestLoopBreakStopsAtTheLoopBoundary(t *testing.T) {
	s := newTestState(t)

	count := 0
	bodySym := s.Symbols.InternString("tickThenBreak")
	s.Heap.SetSlot(s.ObjectProto, bodySym, s.Heap.NewObject(heap.KindCFunction, nil, eval.CFunc(
		func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
			count++
			if count == 3 {
				call.Coro.SetStopStatus(coroutine.StopBreak)
			}
			return s.Nil, nil
		},
	)))

	_, err := s.sendOp(t, s.Lobby, "loop", &message.Tree{Name: bodySym})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, coroutine.StopNormal, s.current.StopStatus())
}

func TestLoopContinueSkipsToNextIteration(t *testing.T) {
	s := newTestState(t)

	count, continued := 0, 0
	bodySym := s.Symbols.InternString("tickMaybeContinue")
	s.Heap.SetSlot(s.ObjectProto, bodySym, s.Heap.NewObject(heap.KindCFunction, nil, eval.CFunc(
		func(e *eval.Evaluator, call *eval.Call) (heap.ID, error) {
			count++
			if count == 2 {
				continued++
				call.Coro.SetStopStatus(coroutine.StopContinue)
				return s.Nil, nil
			}
			if count == 5 {
				call.Coro.SetStopStatus(coroutine.StopBreak)
			}
			return s.Nil, nil
		},
	)))

	_, err := s.sendOp(t, s.Lobby, "loop", &message.Tree{Name: bodySym})
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Equal(t, 1, continued)
	assert.Equal(t, coroutine.StopNormal, s.current.StopStatus())
}
