package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapticgarden/vm/internal/symbol"
)

func TestStatementListAppendAndLast(t *testing.T) {
	symtab := symbol.NewTable()
	first := New(symtab.InternString("foo"))
	second := New(symtab.InternString("bar"))
	third := New(symtab.InternString("baz"))

	first.Append(second).Append(third)

	require.Equal(t, second, first.Next)
	require.Equal(t, third, first.Next.Next)
	assert.Equal(t, third, first.Last())
}

func TestShuffleRewritesAssignmentOperator(t *testing.T) {
	symtab := symbol.NewTable()
	table := DefaultOperatorTable()

	assign := New(symtab.InternString(":="))
	assign.Args = []*Tree{NumberLiteral(symtab.InternString("10"), 10)}

	shuffled := Shuffle(symtab, table, assign)

	assert.Equal(t, "setSlotWithType", shuffled.Name.String())
	require.Len(t, shuffled.Args, 1)
	assert.Equal(t, 10.0, shuffled.Args[0].Literal.Num)
}

func TestPrintRoundTripsSimpleCall(t *testing.T) {
	symtab := symbol.NewTable()
	call := New(symtab.InternString("foo"))
	call.Args = []*Tree{NumberLiteral(symtab.InternString("1"), 1)}

	out := Print(call)
	assert.Equal(t, "foo(1)", out)
}

func TestPrintRoundTripsStatementList(t *testing.T) {
	symtab := symbol.NewTable()
	a := New(symtab.InternString("a"))
	b := New(symtab.InternString("b"))
	a.Append(b)

	out := Print(a)
	assert.Equal(t, "a; b", out)
}
