// Package heap implements the VM's ObjectHeap, its incremental
// tricolor Collector, and the WeakLinks notification protocol. The
// three are kept in one package because the collector owns the arena
// directly, but each is documented as its own file/concern so the
// grounding ledger in DESIGN.md can cite them independently.
//
// Objects are never exposed as raw pointers; every reference outside
// this package is an ID{Index, Generation} handle, avoiding raw
// pointers across the FFI boundary the Synaptic Bridge opens.
package heap

import (
	"github.com/synapticgarden/vm/internal/slots"
	"github.com/synapticgarden/vm/internal/symbol"
)

// Kind tags the primitive payload carried by an object record.
type Kind uint8

const (
	KindObject Kind = iota
	KindNil
	KindBool
	KindNumber
	KindSequence
	KindBlock
	KindCFunction
	KindCoroutine
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "Object"
	case KindNil:
		return "Nil"
	case KindBool:
		return "Bool"
	case KindNumber:
		return "Number"
	case KindSequence:
		return "Sequence"
	case KindBlock:
		return "Block"
	case KindCFunction:
		return "CFunction"
	case KindCoroutine:
		return "Coroutine"
	default:
		return "Unknown"
	}
}

// ID is a stable handle into the heap's arena. It replaces a raw
// pointer: Generation lets the heap distinguish a live object from a
// stale reference to a freed-and-recycled arena slot.
type ID struct {
	Index      uint32
	Generation uint32
}

// NilID is the zero value and never denotes a live object; it is what
// a WeakLink reads back once its target has been collected.
var NilID = ID{}

// IsNil reports whether id is the nil handle.
func (id ID) IsNil() bool { return id == NilID }

type record struct {
	kind       Kind
	slotsTbl   *slots.Table
	protos     []ID
	payload    interface{}
	color      Color
	prev, next int32
	listeners  []*weakCell
	generation uint32
	inUse      bool
}

// sentinel list addresses, encoded as negative indices so the same
// prev/next fields can point at either a real arena record or a list
// head without a type tag.
const (
	sentinelWhite int32 = -1
	sentinelGray  int32 = -2
	sentinelBlack int32 = -3
	sentinelFree  int32 = -4
)

func sentinelFor(c Color) int32 {
	switch c {
	case White:
		return sentinelWhite
	case Gray:
		return sentinelGray
	case Black:
		return sentinelBlack
	default:
		return sentinelFree
	}
}

// Heap owns the object arena and the four tricolor lists.
type Heap struct {
	arena       []record
	freeArena   []uint32 // arena slots available for a brand-new allocation
	sentinels   [4]struct{ prev, next int32 }
	recycled    map[Kind][]int32 // per-kind free-list of arena slots, capped by maxRecycled
	recycled2   int
	maxRecycled int
	roots       []ID
	symbols     *symbol.Table
	gcQuantum   int
}

// Options configures a Heap at construction.
type Options struct {
	// MaxRecycledObjects bounds how many freed arena slots are kept,
	// in total across all the per-Kind free lists, for fast reuse
	// instead of being handed back to the general free-arena pool. 0
	// selects a sensible default.
	MaxRecycledObjects int
	// GCQuantum is the number of gray objects Collect scans and
	// blackens per Step() call while draining the gray list. 0 selects
	// a sensible default.
	GCQuantum int
	Symbols   *symbol.Table
}

// New creates an empty Heap.
func New(opts Options) *Heap {
	if opts.MaxRecycledObjects <= 0 {
		opts.MaxRecycledObjects = 4096
	}
	if opts.GCQuantum <= 0 {
		opts.GCQuantum = 64
	}
	h := &Heap{
		recycled:    make(map[Kind][]int32),
		maxRecycled: opts.MaxRecycledObjects,
		symbols:     opts.Symbols,
		gcQuantum:   opts.GCQuantum,
	}
	for c := White; c <= Free; c++ {
		addr := sentinelFor(c)
		h.setPrev(addr, addr)
		h.setNext(addr, addr)
	}
	return h
}

// AddRoot registers id as a permanent GC root (symbols, cached small
// integers, the Lobby). Roots are re-grayed at the start of every
// collection cycle.
func (h *Heap) AddRoot(id ID) {
	h.roots = append(h.roots, id)
}

// NewObject allocates a fresh object with the given kind and prototype list,
// colored gray: on clone/primitive-new, the object is inserted after
// the grays sentinel.
func (h *Heap) NewObject(kind Kind, protos []ID, payload interface{}) ID {
	idx, gen := h.allocSlot(kind)
	h.arena[idx] = record{
		kind:       kind,
		slotsTbl:   slots.New(0),
		protos:     append([]ID(nil), protos...),
		payload:    payload,
		color:      Gray,
		generation: gen,
		inUse:      true,
	}
	h.insertAfter(sentinelGray, int32(idx))
	return ID{Index: idx, Generation: gen}
}

func (h *Heap) allocSlot(kind Kind) (uint32, uint32) {
	if freelist := h.recycled[kind]; len(freelist) > 0 {
		idx := freelist[len(freelist)-1]
		h.recycled[kind] = freelist[:len(freelist)-1]
		h.recycled2--
		return uint32(idx), h.arena[idx].generation
	}
	if n := len(h.freeArena); n > 0 {
		idx := h.freeArena[n-1]
		h.freeArena = h.freeArena[:n-1]
		return idx, h.arena[idx].generation
	}
	idx := uint32(len(h.arena))
	h.arena = append(h.arena, record{})
	return idx, 0
}

// Live reports whether id currently refers to a live object.
func (h *Heap) Live(id ID) bool {
	if id.IsNil() || int(id.Index) >= len(h.arena) {
		return false
	}
	r := &h.arena[id.Index]
	return r.inUse && r.generation == id.Generation
}

func (h *Heap) rec(id ID) *record {
	if !h.Live(id) {
		return nil
	}
	return &h.arena[id.Index]
}

// Kind returns the object's kind tag.
func (h *Heap) Kind(id ID) Kind {
	if r := h.rec(id); r != nil {
		return r.kind
	}
	return KindNil
}

// Payload returns the object's primitive payload, if any.
func (h *Heap) Payload(id ID) interface{} {
	if r := h.rec(id); r != nil {
		return r.payload
	}
	return nil
}

// SetPayload overwrites the object's primitive payload.
func (h *Heap) SetPayload(id ID, payload interface{}) {
	if r := h.rec(id); r != nil {
		r.payload = payload
	}
}

// Protos returns the object's prototype list (ordered, for multiple
// inheritance).
func (h *Heap) Protos(id ID) []ID {
	if r := h.rec(id); r != nil {
		return r.protos
	}
	return nil
}

// AppendProto adds a prototype to id's prototype list and applies the
// write barrier (a new outgoing reference is exactly the case the
// barrier exists to catch).
func (h *Heap) AppendProto(id ID, proto ID) {
	r := h.rec(id)
	if r == nil {
		return
	}
	r.protos = append(r.protos, proto)
	h.WriteBarrier(id, proto)
}

// GetSlot looks up a slot directly on id (no prototype walk — that is
// the Evaluator's job).
func (h *Heap) GetSlot(id ID, key *symbol.Symbol) (ID, bool) {
	r := h.rec(id)
	if r == nil {
		return NilID, false
	}
	v, ok := r.slotsTbl.Get(key)
	if !ok {
		return NilID, false
	}
	return v.(ID), true
}

// SetSlot writes a slot on id and applies the write barrier.
func (h *Heap) SetSlot(id ID, key *symbol.Symbol, value ID) {
	r := h.rec(id)
	if r == nil {
		return
	}
	r.slotsTbl.Set(key, value)
	h.WriteBarrier(id, value)
}

// EachSlot iterates id's own slots (not the prototype chain).
func (h *Heap) EachSlot(id ID, fn func(key *symbol.Symbol, value ID)) {
	r := h.rec(id)
	if r == nil {
		return
	}
	r.slotsTbl.Each(func(key *symbol.Symbol, v slots.Value) {
		fn(key, v.(ID))
	})
}

func (h *Heap) setPrev(addr int32, v int32) {
	if addr >= 0 {
		h.arena[addr].prev = v
	} else {
		h.sentinels[-addr-1].prev = v
	}
}

func (h *Heap) setNext(addr int32, v int32) {
	if addr >= 0 {
		h.arena[addr].next = v
	} else {
		h.sentinels[-addr-1].next = v
	}
}

func (h *Heap) getPrev(addr int32) int32 {
	if addr >= 0 {
		return h.arena[addr].prev
	}
	return h.sentinels[-addr-1].prev
}

func (h *Heap) getNext(addr int32) int32 {
	if addr >= 0 {
		return h.arena[addr].next
	}
	return h.sentinels[-addr-1].next
}

// remove unlinks addr from whatever list currently contains it.
func (h *Heap) remove(addr int32) {
	p, n := h.getPrev(addr), h.getNext(addr)
	h.setNext(p, n)
	h.setPrev(n, p)
}

// insertAfter splices addr into the list immediately after sentinel,
// giving O(1) list transitions.
func (h *Heap) insertAfter(sentinel int32, addr int32) {
	next := h.getNext(sentinel)
	h.setNext(sentinel, addr)
	h.setPrev(addr, sentinel)
	h.setNext(addr, next)
	h.setPrev(next, addr)
}

// moveTo recolors addr and splices it after the destination color's
// sentinel.
func (h *Heap) moveTo(addr int32, c Color) {
	h.remove(addr)
	h.arena[addr].color = c
	h.insertAfter(sentinelFor(c), addr)
}

// ColorOf reports the color of a live object; freed or unknown ids
// report Free.
func (h *Heap) ColorOf(id ID) Color {
	if r := h.rec(id); r != nil {
		return r.color
	}
	return Free
}
