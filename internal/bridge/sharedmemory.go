package bridge

import (
	"fmt"
	"sync"
)

// maxSharedMemorySlots bounds the fixed-capacity slot pool that backs
// SharedMemoryHandle indices, independent of the pool's byte budget.
const maxSharedMemorySlots = 65536

// SharedMemoryHandle is the ABI-facing handle to a shared-memory
// segment: an integer index into a fixed-capacity slot pool, the form
// a real shm_open-backed implementation would hand back, plus the
// underlying segment name this in-process pool actually keys on.
type SharedMemoryHandle struct {
	Index int
	Name  string
}

// SharedMemoryPool is an in-process stand-in for OS shared-memory
// segments (shm_open-style handles): a named-buffer
// pool that lets a VM-side caller hand a large payload to a worker by
// handle instead of copying it through a TaskDescriptor. Segments are
// plain in-process byte slices keyed by handle name; nothing maps them
// into the worker containers. This pool tracks the handles and their
// byte budget.
type SharedMemoryPool struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	segments map[string][]byte

	slotNames map[int]string
	freeSlots []int
	nextSlot  int
}

// NewSharedMemoryPool creates a pool with the given total byte budget.
func NewSharedMemoryPool(capacityBytes int64) *SharedMemoryPool {
	return &SharedMemoryPool{
		capacity:  capacityBytes,
		segments:  make(map[string][]byte),
		slotNames: make(map[int]string),
	}
}

// Acquire allocates a fresh segment of size bytes from the next free
// slot index and returns its handle. This is the entry point task
// dispatch uses to hand a worker a reply transport by handle rather
// than by name.
func (p *SharedMemoryPool) Acquire(size int) (SharedMemoryHandle, error) {
	p.mu.Lock()
	index, reused := p.popFreeSlotLocked()
	p.mu.Unlock()
	if !reused {
		var err error
		index, err = p.newSlotIndex()
		if err != nil {
			return SharedMemoryHandle{}, err
		}
	}

	name := fmt.Sprintf("shm-%d", index)
	if err := p.Create(name, size); err != nil {
		p.mu.Lock()
		p.freeSlots = append(p.freeSlots, index)
		p.mu.Unlock()
		return SharedMemoryHandle{}, err
	}

	p.mu.Lock()
	p.slotNames[index] = name
	p.mu.Unlock()
	return SharedMemoryHandle{Index: index, Name: name}, nil
}

// Release destroys h's segment and returns its slot index to the free
// list for reuse.
func (p *SharedMemoryPool) Release(h SharedMemoryHandle) error {
	if err := p.Destroy(h.Name); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.slotNames, h.Index)
	p.freeSlots = append(p.freeSlots, h.Index)
	p.mu.Unlock()
	return nil
}

func (p *SharedMemoryPool) popFreeSlotLocked() (int, bool) {
	if len(p.freeSlots) == 0 {
		return 0, false
	}
	index := p.freeSlots[len(p.freeSlots)-1]
	p.freeSlots = p.freeSlots[:len(p.freeSlots)-1]
	return index, true
}

func (p *SharedMemoryPool) newSlotIndex() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nextSlot >= maxSharedMemorySlots {
		return 0, fmt.Errorf("bridge: shared memory slot pool exhausted at capacity %d", maxSharedMemorySlots)
	}
	index := p.nextSlot
	p.nextSlot++
	return index, nil
}

// Create allocates a new named segment of size bytes. The handle name
// is the caller's responsibility to generate uniquely (Acquire uses
// shm-<index>; Bridge.CreateSharedMemory takes the caller's name).
func (p *SharedMemoryPool) Create(handle string, size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.segments[handle]; exists {
		return fmt.Errorf("bridge: shared memory handle %q already exists", handle)
	}
	if p.used+int64(size) > p.capacity {
		return fmt.Errorf("bridge: shared memory pool exhausted: used=%d requested=%d capacity=%d", p.used, size, p.capacity)
	}
	p.segments[handle] = make([]byte, size)
	p.used += int64(size)
	return nil
}

// Map returns the backing buffer for handle for direct read/write
// access, the Go realization of mmap-ing a shared-memory segment.
func (p *SharedMemoryPool) Map(handle string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf, ok := p.segments[handle]
	if !ok {
		return nil, fmt.Errorf("bridge: shared memory handle %q not found", handle)
	}
	return buf, nil
}

// Unmap is a no-op placeholder for symmetry with Map/Create/Destroy:
// this in-process pool has no separate unmap step, but callers that
// pair Map with Unmap keep working if a future revision backs this
// pool with real OS shared memory.
func (p *SharedMemoryPool) Unmap(handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.segments[handle]; !ok {
		return fmt.Errorf("bridge: shared memory handle %q not found", handle)
	}
	return nil
}

// Destroy releases handle's segment and its byte budget.
func (p *SharedMemoryPool) Destroy(handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf, ok := p.segments[handle]
	if !ok {
		return fmt.Errorf("bridge: shared memory handle %q not found", handle)
	}
	p.used -= int64(len(buf))
	delete(p.segments, handle)
	return nil
}

// Used reports the pool's current byte usage, exported for the
// telemetry gauge.
func (p *SharedMemoryPool) Used() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// Capacity reports the pool's total byte budget.
func (p *SharedMemoryPool) Capacity() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}
