package eval

import (
	"github.com/synapticgarden/vm/internal/coroutine"
	"github.com/synapticgarden/vm/internal/heap"
	"github.com/synapticgarden/vm/internal/message"
)

// Call is the activation record handed to a CFunction or Block: the
// sender, target, message, and slot-context an activation runs with.
type Call struct {
	Sender      heap.ID // the locals object the message was sent from
	Target      heap.ID // the receiver the message was dispatched to
	Owner       heap.ID // the prototype-chain object where the slot was found
	Activated   heap.ID // the slot value being activated
	Message     *message.Tree
	SlotContext heap.ID // usually == Sender; the context Args evaluate in
	Coro        *coroutine.Coroutine
}

// ArgAt evaluates the i'th unevaluated argument message against the
// call's sender context, the idiom every lazily-evaluating primitive
// (ifTrue:, and/or short-circuiting, block argument binding) relies on.
func (c *Call) ArgAt(e *Evaluator, i int) (heap.ID, error) {
	if i < 0 || i >= len(c.Message.Args) {
		return heap.NilID, ErrArgumentCount
	}
	return e.Send(c.Coro, c.SlotContext, c.SlotContext, c.Message.Args[i])
}

// NumArgs reports how many unevaluated argument messages were sent.
func (c *Call) NumArgs() int { return len(c.Message.Args) }
