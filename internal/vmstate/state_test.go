package vmstate

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapticgarden/vm/internal/config"
	"github.com/synapticgarden/vm/internal/message"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	return New(config.VMConfig{
		GC:    config.GCConfig{MaxRecycledObjects: 64, GCQuantum: 8},
		Slots: config.SlotsConfig{MaxDisplacement: 10},
	})
}

// literalParser builds a single message tree for one statement; tests
// use it to stand in for the external lexer/parser.
type literalParser struct {
	build func(s string) *message.Tree
}

func (p literalParser) Parse(source string) (*message.Tree, error) {
	return p.build(source), nil
}

func TestSmallIntegersAreCachedAndIdentical(t *testing.T) {
	s := newTestState(t)
	a := s.makeNumber(5)
	b := s.makeNumber(5)
	assert.Equal(t, a, b)
}

func TestLargeIntegersAreNotCached(t *testing.T) {
	s := newTestState(t)
	a := s.makeNumber(100000)
	b := s.makeNumber(100000)
	assert.NotEqual(t, a, b)
}

func TestActivatingNilWithArgumentsReturnsNil(t *testing.T) {
	s := newTestState(t)
	msg := message.New(s.Symbols.InternString("whatever")).WithArgs(
		message.NumberLiteral(s.Symbols.InternString(""), 1),
	)
	result, err := s.Send(s.Nil, s.Nil, msg)
	require.NoError(t, err)
	assert.Equal(t, s.Nil, result)
}

func TestCompareFallsBackToAddressOrderingAcrossTags(t *testing.T) {
	s := newTestState(t)
	str := s.makeString("hi")

	argMsg := message.NumberLiteral(s.Symbols.InternString(""), 42)
	result, err := s.Eval.Send(s.current, str, str, &message.Tree{
		Name: s.Symbols.InternString("compare"),
		Args: []*message.Tree{argMsg},
	})
	require.NoError(t, err)
	n, _ := s.Heap.Payload(result).(float64)
	assert.NotEqual(t, float64(0), n)
}

func TestSandboxMessageCountLimitUnwindsWithException(t *testing.T) {
	s := New(config.VMConfig{
		GC:      config.GCConfig{MaxRecycledObjects: 64, GCQuantum: 8},
		Sandbox: config.SandboxConfig{MessageCountLimit: 2},
	})

	selfSym := s.Symbols.InternString("self")
	msg := message.New(selfSym)
	msg.Next = message.New(selfSym)
	msg.Next.Next = message.New(selfSym)

	_, err := s.EvalSequence(s.Lobby, s.Lobby, msg)
	require.Error(t, err)
}

func TestTryCapturesDoesNotUnderstandIntoChildException(t *testing.T) {
	s := newTestState(t)
	msg := message.New(s.Symbols.InternString("bogusMessageName"))

	_, exc := s.Try(s.Lobby, s.Lobby, msg)
	assert.Error(t, exc)
}

func TestDoCStringWithoutParserFails(t *testing.T) {
	s := newTestState(t)
	_, err := s.DoCString("1")
	assert.ErrorIs(t, err, ErrNoParser)
}

func TestDoCStringEvaluatesParsedTree(t *testing.T) {
	s := newTestState(t)
	s.SetParser(literalParser{build: func(src string) *message.Tree {
		return message.New(s.Symbols.InternString("self"))
	}})

	result, err := s.DoCString("self")
	require.NoError(t, err)
	assert.Equal(t, s.Lobby, result)
}

func TestRunCLIPrintsPromptAndResult(t *testing.T) {
	s := newTestState(t)
	s.SetParser(literalParser{build: func(src string) *message.Tree {
		return message.NumberLiteral(s.Symbols.InternString(""), 7)
	}})

	var out bytes.Buffer
	s.RunCLI(strings.NewReader("anything\n"), &out)
	assert.Contains(t, out.String(), "7")
}
