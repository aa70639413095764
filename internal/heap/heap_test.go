package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapticgarden/vm/internal/symbol"
)

func newTestHeap() (*Heap, *symbol.Table) {
	symtab := symbol.NewTable()
	return New(Options{Symbols: symtab}), symtab
}

func TestNewObjectStartsGray(t *testing.T) {
	h, _ := newTestHeap()
	id := h.NewObject(KindObject, nil, nil)
	assert.Equal(t, Gray, h.ColorOf(id))
}

func TestWriteBarrierGraysWhiteReferentOfBlackOwner(t *testing.T) {
	h, symtab := newTestHeap()

	owner := h.NewObject(KindObject, nil, nil)
	// Promote owner to black by running it through one scan quantum.
	h.Step(1)
	require.Equal(t, Black, h.ColorOf(owner))

	value := h.NewObject(KindObject, nil, nil)
	// Force value white to simulate "left over from a previous cycle".
	h.moveTo(int32(value.Index), White)
	require.Equal(t, White, h.ColorOf(value))

	h.SetSlot(owner, symtab.InternString("x"), value)

	assert.Equal(t, Gray, h.ColorOf(value), "write barrier must gray a white value written into a black owner")
}

func TestTricolorInvariantAfterFullCollection(t *testing.T) {
	h, symtab := newTestHeap()
	root := h.NewObject(KindObject, nil, nil)
	h.AddRoot(root)

	child := h.NewObject(KindObject, nil, nil)
	h.SetSlot(root, symtab.InternString("child"), child)

	orphan := h.NewObject(KindObject, nil, nil)

	h.Collect()

	for _, id := range []ID{root, child} {
		c := h.ColorOf(id)
		assert.NotEqual(t, White, c, "reachable object must not be white after a cycle")
		assert.True(t, c == Gray || c == Black)
	}
	assert.False(t, h.Live(orphan), "unreachable object must be swept")
}

func TestCyclicGarbageIsCollectedWithoutFalseFreeingOfRoots(t *testing.T) {
	h, symtab := newTestHeap()
	root := h.NewObject(KindObject, nil, nil)
	h.AddRoot(root)

	const n = 1000
	nodes := make([]ID, n)
	for i := 0; i < n; i++ {
		nodes[i] = h.NewObject(KindObject, nil, nil)
	}
	nextSym := symtab.InternString("next")
	for i := 0; i < n; i++ {
		h.SetSlot(nodes[i], nextSym, nodes[(i+1)%n]) // cycle
	}
	// No external reference into the cycle; root does not point at it.
	_ = root

	h.Collect()

	for i, id := range nodes {
		assert.False(t, h.Live(id), "node %d of unreferenced cycle must be freed", i)
	}
	assert.True(t, h.Live(root), "the single external root must survive")
}

func TestWeakLinkReadsNilAfterTargetFreed(t *testing.T) {
	h, _ := newTestHeap()
	target := h.NewObject(KindObject, nil, nil)
	link := h.NewWeakLink(target)

	assert.Equal(t, target, link.Read())

	// No roots reference target, so Collect frees it.
	h.Collect()

	assert.Equal(t, NilID, link.Read())
}

func TestWeakLinkUnregisterIsIdempotentAndDoesNotAffectLiveReads(t *testing.T) {
	h, _ := newTestHeap()
	target := h.NewObject(KindObject, nil, nil)
	h.AddRoot(target)
	link := h.NewWeakLink(target)

	link.Unregister()
	link.Unregister() // idempotent

	assert.Equal(t, target, link.Read(), "unregistering must not null a still-live target")
}

func TestGenerationPreventsStaleIDFromAliasingRecycledSlot(t *testing.T) {
	h, _ := newTestHeap()
	first := h.NewObject(KindObject, nil, nil)
	h.Collect() // nothing rooted: first is swept and its slot recycled

	second := h.NewObject(KindObject, nil, nil)
	if second.Index == first.Index {
		assert.NotEqual(t, first.Generation, second.Generation)
		assert.False(t, h.Live(first))
	}
}
