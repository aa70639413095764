package heap

import "github.com/synapticgarden/vm/internal/symbol"

// Color is the tricolor marking state of an object, per the glossary:
// white = unscanned + presumed dead, gray = reachable + unscanned,
// black = reachable + scanned.
type Color uint8

const (
	White Color = iota
	Gray
	Black
	Free
)

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Gray:
		return "gray"
	case Black:
		return "black"
	default:
		return "free"
	}
}

// WriteBarrier implements "On slot write ref := value: if owner is
// black and value is white, mark value gray." It is invoked by
// SetSlot/AppendProto and is safe to call redundantly.
func (h *Heap) WriteBarrier(owner, value ID) {
	if value.IsNil() {
		return
	}
	ownerRec := h.rec(owner)
	valueRec := h.rec(value)
	if ownerRec == nil || valueRec == nil {
		return
	}
	if ownerRec.color == Black && valueRec.color == White {
		h.moveTo(int32(value.Index), Gray)
	}
}

// Step performs up to n units of "gray an object's outgoing
// references, then blacken it" work, a bounded per-quantum increment.
// It returns the number of objects actually blackened (fewer than n
// once the gray list empties).
func (h *Heap) Step(n int) int {
	scanned := 0
	for i := 0; i < n; i++ {
		addr := h.getNext(sentinelGray)
		if addr == sentinelGray {
			break // gray list empty, nothing left to scan this quantum
		}
		h.scanAndBlacken(addr)
		scanned++
	}
	return scanned
}

func (h *Heap) scanAndBlacken(addr int32) {
	r := &h.arena[addr]
	for _, p := range r.protos {
		h.grayIfWhite(p)
	}
	id := ID{Index: uint32(addr), Generation: r.generation}
	h.EachSlot(id, func(_ *symbol.Symbol, value ID) {
		h.grayIfWhite(value)
	})
	h.moveTo(addr, Black)
}

func (h *Heap) grayIfWhite(id ID) {
	r := h.rec(id)
	if r != nil && r.color == White {
		h.moveTo(int32(id.Index), Gray)
	}
}

// collectRounds bounds how many mark-sweep-rotate rounds Collect runs.
// A freshly allocated object is always born gray (presumed reachable
// until proven otherwise), so the very first round after a burst of
// allocation cannot yet tell live objects from garbage created in the
// same burst — it only establishes the black/white baseline. The
// second round sweeps anything that round one's root retrace did not
// reach. A third round confirms the result is stable. Normal VM
// operation never calls Collect at all: it calls Step once per
// message dispatch, which is where the "incremental" in "incremental
// tricolor mark-sweep" actually matters; Collect exists
// for tests and embedders that want a synchronous full pass.
const collectRounds = 3

// Collect drives Step/EndCycle to a synchronous full collection and
// returns the total number of objects swept across all rounds. On
// return, every reachable object is gray or black, because each round
// re-drains the gray list produced by EndCycle's root-regraying before
// starting the next round's sweep.
func (h *Heap) Collect() (totalSwept int) {
	for round := 0; round < collectRounds; round++ {
		h.drainGray()
		totalSwept += h.EndCycle()
		h.drainGray()
	}
	return totalSwept
}

func (h *Heap) drainGray() {
	for h.getNext(sentinelGray) != sentinelGray {
		h.Step(h.gcQuantum)
	}
}

// EndCycle sweeps the white list (freeing unreached objects and
// notifying their weak-link listeners), then rotates: the scanned
// black set becomes tomorrow's white, and roots are re-grayed to seed
// the next incremental cycle.
func (h *Heap) EndCycle() (swept int) {
	for {
		addr := h.getNext(sentinelWhite)
		if addr == sentinelWhite {
			break
		}
		h.remove(addr)
		h.free(addr)
		swept++
	}

	for {
		addr := h.getNext(sentinelBlack)
		if addr == sentinelBlack {
			break
		}
		h.remove(addr)
		h.arena[addr].color = White
		h.insertAfter(sentinelWhite, addr)
	}

	for _, root := range h.roots {
		if r := h.rec(root); r != nil && r.color == White {
			h.moveTo(int32(root.Index), Gray)
		}
	}
	return swept
}

// free finalizes a swept object: notifies weak listeners, releases
// its slot table, and recycles its arena slot (bumping the
// generation so stale IDs become unreachable) subject to the
// maxRecycledObjects cap.
func (h *Heap) free(addr int32) {
	r := &h.arena[addr]
	for _, cell := range r.listeners {
		cell.freed = true
	}
	kind := r.kind
	gen := r.generation + 1
	*r = record{}
	r.generation = gen
	r.color = Free

	if h.recycled2 < h.maxRecycled {
		h.recycled[kind] = append(h.recycled[kind], addr)
		h.recycled2++
	} else {
		h.freeArena = append(h.freeArena, uint32(addr))
	}
}
