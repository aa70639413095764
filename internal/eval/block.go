package eval

import (
	"github.com/synapticgarden/vm/internal/coroutine"
	"github.com/synapticgarden/vm/internal/heap"
	"github.com/synapticgarden/vm/internal/message"
	"github.com/synapticgarden/vm/internal/symbol"
)

// Block is the payload of a KindBlock object: a captured lexical scope
// plus an unevaluated body, the VM's closure/method representation.
// IsMethod distinguishes Io's two activation flavors: a method rebinds
// self to the call's receiver, while a standalone block keeps the self
// it closed over.
type Block struct {
	Body      *message.Tree // first statement of the body's statement list; nil is an empty body
	ArgNames  []*symbol.Symbol
	Self      heap.ID // captured receiver, used when IsMethod is false
	DefLocals heap.ID // captured lexical locals
	IsMethod  bool
	PassStops bool // if true, a Return inside the body propagates past this activation instead of being absorbed
}

// NewBlock allocates a KindBlock object on h.
func NewBlock(h *heap.Heap, protos []heap.ID, blk *Block) heap.ID {
	return h.NewObject(heap.KindBlock, protos, blk)
}

// activateBlock binds argument values into a fresh locals object and
// evaluates the body's statement list against it, consulting the
// per-activation stop status after each step: a Return that reaches a
// block with PassStops false (method or plain) is absorbed and becomes
// that block's result; a block with PassStops true leaves it set so it
// propagates to the enclosing activation.
func (e *Evaluator) activateBlock(co *coroutine.Coroutine, blk *Block, call *Call) (heap.ID, error) {
	self := blk.Self
	localsProto := []heap.ID{blk.DefLocals}
	if blk.IsMethod {
		self = call.Target
		localsProto = []heap.ID{call.Target}
	}

	locals := e.Heap.NewObject(heap.KindObject, localsProto, nil)
	if co != nil {
		co.Retain(locals)
	}

	for i, name := range blk.ArgNames {
		var argVal heap.ID
		var err error
		if i < call.NumArgs() {
			argVal, err = call.ArgAt(e, i)
			if err != nil {
				return heap.NilID, err
			}
		} else {
			argVal = e.Nil
		}
		e.Heap.SetSlot(locals, name, argVal)
	}

	result, err := e.EvalSequence(co, self, locals, blk.Body)
	if err != nil {
		return heap.NilID, err
	}

	if co != nil && co.StopStatus() == coroutine.StopReturn && !blk.PassStops {
		co.SetStopStatus(coroutine.StopNormal)
	}
	return result, nil
}
