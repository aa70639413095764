package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternIdentity(t *testing.T) {
	tbl := NewTable()

	a := tbl.InternString("foo")
	b := tbl.InternString("foo")
	c := tbl.InternString("bar")

	assert.Same(t, a, b, "interning the same bytes twice must yield the same pointer")
	assert.NotSame(t, a, c)
	assert.Equal(t, "foo", a.String())
}

func TestInternBytesEqualityImpliesPointerEquality(t *testing.T) {
	tbl := NewTable()

	symbols := []*Symbol{}
	words := []string{"clone", "setSlot", "forward", "clone", "forward", "+"}
	for _, w := range words {
		symbols = append(symbols, tbl.InternString(w))
	}

	for i := range words {
		for j := range words {
			samePointer := symbols[i] == symbols[j]
			sameBytes := words[i] == words[j]
			require.Equal(t, sameBytes, samePointer, "word %q vs %q", words[i], words[j])
		}
	}
}

func TestHashesStableAcrossCallsAndNonZero(t *testing.T) {
	tbl := NewTable()
	sym := tbl.InternString("aSymbol")
	h1a, h2a := sym.Hashes()
	h1b, h2b := sym.Hashes()
	assert.Equal(t, h1a, h1b)
	assert.Equal(t, h2a, h2b)
	assert.NotZero(t, h1a)
}

func TestLookupAndRemove(t *testing.T) {
	tbl := NewTable()
	tbl.InternString("x")

	sym, ok := tbl.Lookup([]byte("x"))
	require.True(t, ok)

	tbl.Remove(sym)
	_, ok = tbl.Lookup([]byte("x"))
	assert.False(t, ok)
}
