package slots

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapticgarden/vm/internal/symbol"
)

func TestSetGetDelete(t *testing.T) {
	tbl := New(10)
	symtab := symbol.NewTable()

	x := symtab.InternString("x")
	y := symtab.InternString("y")

	tbl.Set(x, 10)
	tbl.Set(y, 20)

	v, ok := tbl.Get(x)
	require.True(t, ok)
	assert.Equal(t, 10, v)

	v, ok = tbl.Get(y)
	require.True(t, ok)
	assert.Equal(t, 20, v)

	assert.True(t, tbl.Delete(x))
	_, ok = tbl.Get(x)
	assert.False(t, ok)
}

func TestOverwriteKeepsSingleSlot(t *testing.T) {
	tbl := New(10)
	symtab := symbol.NewTable()
	k := symtab.InternString("k")

	tbl.Set(k, 1)
	tbl.Set(k, 2)

	assert.Equal(t, 1, tbl.Len())
	v, _ := tbl.Get(k)
	assert.Equal(t, 2, v)
}

func TestGrowsUnderLoad(t *testing.T) {
	tbl := New(10)
	symtab := symbol.NewTable()

	const n = 500
	for i := 0; i < n; i++ {
		sym := symtab.InternString(fmt.Sprintf("slot-%d", i))
		tbl.Set(sym, i)
	}

	assert.Equal(t, n, tbl.Len())

	for i := 0; i < n; i++ {
		sym, ok := symtab.Lookup([]byte(fmt.Sprintf("slot-%d", i)))
		require.True(t, ok)
		v, ok := tbl.Get(sym)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestIterationVisitsAllLiveSlots(t *testing.T) {
	tbl := New(10)
	symtab := symbol.NewTable()

	want := map[string]int{"a": 1, "b": 2, "c": 3}
	for k, v := range want {
		tbl.Set(symtab.InternString(k), v)
	}

	got := map[string]int{}
	tbl.Each(func(key *symbol.Symbol, value Value) {
		got[key.String()] = value.(int)
	})

	assert.Equal(t, want, got)
}
