package core

import (
	"fmt"
	"sync"
	"unsafe"
)

// Arena hands out aligned byte regions from pre-committed storage. All
// pool backing memory (the slot argument buffers, sized at construction
// time) comes from an Arena, so the scheduler's footprint is fixed up front.
type Arena interface {
	// Allocate returns a region of exactly size bytes whose first byte
	// is aligned to align (a power of two). Regions are never reclaimed
	// individually; the arena lives as long as its consumers.
	Allocate(size, align int) ([]byte, error)
}

// FixedArena is a bump allocator over a single pre-allocated block.
// Allocate is safe for concurrent use; Reset is not.
type FixedArena struct {
	mu   sync.Mutex
	buf  []byte
	off  int
	base uintptr
}

// NewFixedArena allocates a block of the given size. The block is padded so
// that alignment requests up to 64 bytes can always be honored relative to
// the machine address of the block.
func NewFixedArena(size int) *FixedArena {
	if size < 0 {
		size = 0
	}
	buf := make([]byte, size+64)
	return &FixedArena{
		buf:  buf,
		base: uintptr(unsafe.Pointer(&buf[0])),
	}
}

// Allocate returns the next size bytes aligned to align.
func (a *FixedArena) Allocate(size, align int) ([]byte, error) {
	if size < 0 || align <= 0 || align&(align-1) != 0 {
		return nil, fmt.Errorf("arena: bad request size=%d align=%d", size, align)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	addr := a.base + uintptr(a.off)
	pad := int((uintptr(align) - addr%uintptr(align)) % uintptr(align))
	start := a.off + pad
	if start+size > len(a.buf) {
		return nil, fmt.Errorf("arena: out of space (want %d bytes, %d free)", size, len(a.buf)-a.off)
	}
	a.off = start + size
	return a.buf[start : start+size : start+size], nil
}

// Remaining returns the number of unallocated bytes, ignoring alignment
// padding that future requests may consume.
func (a *FixedArena) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf) - a.off
}

// Reset discards all allocations. Only safe when no region handed out by
// the arena is still referenced.
func (a *FixedArena) Reset() {
	a.mu.Lock()
	a.off = 0
	a.mu.Unlock()
}
