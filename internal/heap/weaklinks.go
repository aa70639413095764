package heap

// weakCell is the shared, heap-owned state behind a WeakLink. The
// Collector flips freed to true when the target is swept; every
// WeakLink wrapping the same registration shares (and therefore
// observes) that flip.
type weakCell struct {
	target ID
	freed  bool
}

// WeakLink is a non-owning reference that self-nullifies once its
// target is collected. Reading a WeakLink after collection yields
// NilID — the caller's embedding maps that to the VM nil singleton.
type WeakLink struct {
	heap *Heap
	cell *weakCell
}

// NewWeakLink registers a weak observer on target. Registration is
// idempotent in the sense that each call returns an independent
// handle that can be unregistered without affecting others.
func (h *Heap) NewWeakLink(target ID) *WeakLink {
	cell := &weakCell{target: target}
	if r := h.rec(target); r != nil {
		r.listeners = append(r.listeners, cell)
	} else {
		cell.freed = true
	}
	return &WeakLink{heap: h, cell: cell}
}

// Read returns the target if still live, or NilID if it has been
// collected.
func (w *WeakLink) Read() ID {
	if w.cell.freed || !w.heap.Live(w.cell.target) {
		return NilID
	}
	return w.cell.target
}

// Unregister removes this link's subscription early, so the
// collector will no longer notify it when the target is freed. It
// does not itself null the link — Read() independently verifies
// liveness via the target's generation, so an unregistered link to a
// still-live object keeps reading that object. Idempotent: a second
// call is a no-op.
func (w *WeakLink) Unregister() {
	r := w.heap.rec(w.cell.target)
	if r == nil {
		return
	}
	for i, c := range r.listeners {
		if c == w.cell {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			break
		}
	}
}
