// Package vmstate assembles the heap, symbol table, evaluator, and
// coroutine scheduler into the VM's single process-wide State: cached
// singletons, the sandbox gate, the Lobby, and the embedding callback
// hooks (print, exception, exit, active-coro, bindings-init).
package vmstate

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/synapticgarden/vm/internal/config"
	"github.com/synapticgarden/vm/internal/coroutine"
	"github.com/synapticgarden/vm/internal/eval"
	"github.com/synapticgarden/vm/internal/heap"
	"github.com/synapticgarden/vm/internal/message"
	"github.com/synapticgarden/vm/internal/symbol"
)

// smallIntMin/smallIntMax bound the cached-integer range: small
// literals are looked up in this table instead of allocating.
const (
	smallIntMin = -10
	smallIntMax = 256
)

// Parser turns already-tokenized source text into a shuffled message
// tree. Lexing, tokenization, and the operator shuffle itself are
// external-collaborator concerns; State depends on nothing narrower
// than this interface so an embedder can link in whichever parser it
// likes. A process that
// never calls SetParser can still build and evaluate message trees
// directly (the test suite does exactly this).
type Parser interface {
	Parse(source string) (*message.Tree, error)
}

// State owns every process-wide singleton and cache the VM needs: the
// Heap, SymbolTable, Evaluator, Lobby object, prototype objects,
// cached nil/true/false and small integers, the sandbox counters, the
// main/current coroutine pointers, and the embedding callbacks.
//
// State and everything it owns is touched only by the single VM OS
// thread; it carries no internal locking.
type State struct {
	Heap    *heap.Heap
	Symbols *symbol.Table
	Eval    *eval.Evaluator

	Lobby heap.ID

	ObjectProto    heap.ID
	NumberProto    heap.ID
	SequenceProto  heap.ID
	BoolProto      heap.ID
	NilProto       heap.ID
	BlockProto     heap.ID
	CoroutineProto heap.ID

	True  heap.ID
	False heap.ID
	Nil   heap.ID

	smallInts [smallIntMax - smallIntMin + 1]heap.ID

	mainCoro   *coroutine.Coroutine
	current    *coroutine.Coroutine
	nextCoroID uint64
	coroCount  int

	sandbox SandboxConfig

	messageCount int64
	endTime      time.Time

	parser Parser

	PrintCallback        func(s string)
	ExceptionCallback    func(err error)
	ExitCallback         func(code int)
	ActiveCoroCallback   func(count int)
	BindingsInitCallback func(s *State)
	CallbackContext      interface{}

	exitCode int
}

// SandboxConfig mirrors config.SandboxConfig; State keeps its own copy
// so a sandbox can be tightened per-State without mutating the global
// config singleton.
type SandboxConfig struct {
	MessageCountLimit int64
	TimeLimit         time.Duration
}

// New builds a State from cfg: a fresh Heap and SymbolTable, the
// Evaluator bound to them, and a fully bootstrapped Lobby — the
// VM's state_new() entry point.
func New(cfg config.VMConfig) *State {
	symtab := symbol.NewTable()
	h := heap.New(heap.Options{
		MaxRecycledObjects: cfg.GC.MaxRecycledObjects,
		GCQuantum:          cfg.GC.GCQuantum,
		Symbols:            symtab,
	})
	e := eval.NewEvaluator(h, symtab)

	s := &State{
		Heap:    h,
		Symbols: symtab,
		Eval:    e,
		sandbox: SandboxConfig{
			MessageCountLimit: cfg.Sandbox.MessageCountLimit,
			TimeLimit:         time.Duration(cfg.Sandbox.TimeLimitMS) * time.Millisecond,
		},
		ExceptionCallback: func(err error) {
			slog.Error("synapsevm: uncaught exception", "error", err)
		},
		ExitCallback: os.Exit,
		PrintCallback: func(s string) {
			fmt.Print(s)
		},
	}
	s.resetSandboxClock()
	s.bootstrap()

	s.mainCoro = coroutine.New(s.nextCoroutineID(), nil, nil)
	s.current = s.mainCoro
	s.coroCount = 1

	if s.BindingsInitCallback != nil {
		s.BindingsInitCallback(s)
	}
	return s
}

// SetParser installs the external parser State.DoCString/DoFile defer
// to.
func (s *State) SetParser(p Parser) { s.parser = p }

func (s *State) nextCoroutineID() uint64 {
	s.nextCoroID++
	return s.nextCoroID
}

func (s *State) resetSandboxClock() {
	s.messageCount = 0
	if s.sandbox.TimeLimit > 0 {
		s.endTime = time.Now().Add(s.sandbox.TimeLimit)
	} else {
		s.endTime = time.Time{}
	}
}

// CurrentCoroutine returns the coroutine the VM thread is currently
// executing on behalf of.
func (s *State) CurrentCoroutine() *coroutine.Coroutine { return s.current }

// tick is the sandbox gate: called once per State.Send. It performs
// one object's worth of collector work, increments messageCount
// against the limit and compares wall-clock to endTime; on exhaustion
// it sets the current coroutine's stop-status to an unwinding sandbox
// exception instead of returning an error directly. Sends the
// Evaluator makes on its own (argument evaluation, block bodies, loop
// bodies, Try's child coroutine) do not pass through tick and are not
// counted.
func (s *State) tick() {
	s.Heap.Step(1)

	if s.sandbox.MessageCountLimit > 0 {
		s.messageCount++
		if s.messageCount > s.sandbox.MessageCountLimit {
			s.raiseSandboxExceeded()
			return
		}
	}
	if !s.endTime.IsZero() && time.Now().After(s.endTime) {
		s.raiseSandboxExceeded()
	}
}

func (s *State) raiseSandboxExceeded() {
	s.current.Cancel(&eval.Exception{Cause: eval.ErrSandboxExceeded})
}

// Send performs one gated message dispatch: it runs the sandbox gate,
// then delegates to the Evaluator against the current coroutine.
func (s *State) Send(target, locals heap.ID, msg *message.Tree) (heap.ID, error) {
	s.tick()
	if s.current.StopStatus() == coroutine.StopException {
		return heap.NilID, s.current.Exception()
	}
	return s.Eval.Send(s.current, target, locals, msg)
}

// EvalSequence runs a statement list to completion against target,
// gating every statement through the sandbox.
func (s *State) EvalSequence(target, locals heap.ID, first *message.Tree) (heap.ID, error) {
	result := s.Nil
	for n := first; n != nil; n = n.Next {
		v, err := s.Send(target, locals, n)
		if err != nil {
			return result, err
		}
		result = v
		switch s.current.StopStatus() {
		case coroutine.StopNormal:
		case coroutine.StopEndOfLine:
			s.current.SetStopStatus(coroutine.StopNormal)
		default:
			return result, nil
		}
	}
	return result, nil
}

// DoCString parses source with the installed Parser and evaluates the
// resulting message tree against the Lobby. It fails with ErrNoParser
// if no Parser has been installed, since lexing/tokenization is
// explicitly an external-collaborator concern this package does not
// implement.
func (s *State) DoCString(source string) (heap.ID, error) {
	if s.parser == nil {
		return heap.NilID, ErrNoParser
	}
	tree, err := s.parser.Parse(source)
	if err != nil {
		return heap.NilID, fmt.Errorf("vmstate: parse: %w", err)
	}
	result, err := s.EvalSequence(s.Lobby, s.Lobby, tree)
	if err != nil {
		s.reportException(err)
		return heap.NilID, err
	}
	if s.current.StopStatus() == coroutine.StopException {
		err := s.current.Exception()
		s.current.SetStopStatus(coroutine.StopNormal)
		s.reportException(err)
		return heap.NilID, err
	}
	return result, nil
}

// DoFile reads path and evaluates it as if passed to DoCString.
// Reading the file itself is ordinary stdlib plumbing, not the
// file/directory standard library the VM's user-facing surface
// excludes — that exclusion is about the VM exposing a `File` object
// to user programs, which this package does not do.
func (s *State) DoFile(path string) (heap.ID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return heap.NilID, fmt.Errorf("vmstate: read %s: %w", path, err)
	}
	return s.DoCString(string(data))
}

// TryToPerform sends msg to target with the given locals, without
// going through the parser — the direct embedding entry point for a
// host that already has a message tree in hand (e.g. the Bridge
// delivering a foreign call back into the VM).
func (s *State) TryToPerform(target, locals heap.ID, msg *message.Tree) (heap.ID, error) {
	return s.Send(target, locals, msg)
}

// Try spawns a child coroutine that evaluates msg against
// target/locals, capturing any raised exception into the child's
// exception slot, and returns the tuple (result, exception) once the
// child resumes to completion.
func (s *State) Try(target, locals heap.ID, msg *message.Tree) (heap.ID, error) {
	child := coroutine.New(s.nextCoroutineID(), s.current, func(co *coroutine.Coroutine) (heap.ID, error) {
		return s.Eval.EvalSequence(co, target, locals, msg)
	})
	s.coroCount++
	if s.ActiveCoroCallback != nil {
		s.ActiveCoroCallback(s.coroCount)
	}
	defer func() {
		s.coroCount--
		if s.ActiveCoroCallback != nil {
			s.ActiveCoroCallback(s.coroCount)
		}
	}()

	prev := s.current
	s.current = child
	result, _, err := child.Resume(s.Nil)
	s.current = prev

	if err != nil {
		return result, err
	}
	return result, child.Exception()
}

func (s *State) reportException(err error) {
	if s.ExceptionCallback != nil {
		s.ExceptionCallback(err)
	}
}

// ExitResult returns the code recorded by a prior call to user-level
// exit.
func (s *State) ExitResult() int { return s.exitCode }

// Exit records code and invokes ExitCallback (which defaults to
// os.Exit, but an embedder registering its own callback can override
// process-exit semantics entirely).
func (s *State) Exit(code int) {
	s.exitCode = code
	if s.ExitCallback != nil {
		s.ExitCallback(code)
	}
}

// RunCLI is the state_run_cli ABI entry point: a minimal REPL that
// reads lines from in, hands each to DoCString, and prints the result
// (or reports the exception) via the print/exception callbacks. Since
// a REPL's line-editing and prompt behavior is itself an
// external-parser adjacent concern, this is the small concrete loop
// that makes cmd/synapsevm a runnable binary.
func (s *State) RunCLI(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "synapsevm> ")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			fmt.Fprint(out, "synapsevm> ")
			continue
		}
		result, err := s.DoCString(line)
		if err != nil {
			fmt.Fprintf(out, "%v\n", err)
		} else {
			fmt.Fprintf(out, "%s\n", s.describe(result))
		}
		fmt.Fprint(out, "synapsevm> ")
	}
}

// describe renders a result value for the REPL: numbers and strings
// print their Go payload, everything else prints its heap kind.
func (s *State) describe(id heap.ID) string {
	switch s.Heap.Kind(id) {
	case heap.KindNil:
		return "nil"
	case heap.KindBool:
		if id == s.True {
			return "true"
		}
		return "false"
	case heap.KindNumber:
		n, _ := s.Heap.Payload(id).(float64)
		return fmt.Sprintf("%g", n)
	case heap.KindSequence:
		str, _ := s.Heap.Payload(id).(string)
		return str
	default:
		return fmt.Sprintf("%s_%v", s.Heap.Kind(id), id)
	}
}
