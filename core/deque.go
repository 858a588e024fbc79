package core

import (
	"sync"
	"sync/atomic"
)

// taskDeque is a fixed-capacity Chase-Lev work-stealing deque of TaskIDs.
//
// The owner pushes and pops at the bottom (LIFO, good locality for
// recursively spawned children); thieves take from the top (FIFO, oldest
// and typically largest work first). Owner and thieves only contend on the
// single-element boundary case, which both sides resolve with one
// compare-and-swap on top.
//
// Entries are stored as raw uint32s; capacity is rounded up to a power of
// two so indices wrap with a mask.
type taskDeque struct {
	buf    []atomic.Uint32
	mask   int64
	bottom atomic.Int64
	top    atomic.Int64
}

func newTaskDeque(capacity int) *taskDeque {
	size := int64(1)
	for size < int64(capacity) {
		size <<= 1
	}
	return &taskDeque{
		buf:  make([]atomic.Uint32, size),
		mask: size - 1,
	}
}

// PushBottom appends id at the bottom. Owner only. Returns false when the
// deque is full; with capacity >= pool slot count this cannot happen for
// tasks of the owning pool.
func (d *taskDeque) PushBottom(id TaskID) bool {
	b := d.bottom.Load()
	t := d.top.Load()
	if b-t > d.mask {
		return false
	}
	d.buf[b&d.mask].Store(uint32(id))
	d.bottom.Store(b + 1)
	return true
}

// PopBottom removes and returns the most recently pushed id. Owner only.
func (d *taskDeque) PopBottom() (TaskID, bool) {
	b := d.bottom.Load() - 1
	d.bottom.Store(b)
	t := d.top.Load()

	if t > b {
		// Empty: restore bottom.
		d.bottom.Store(t)
		return InvalidTaskID, false
	}

	id := TaskID(d.buf[b&d.mask].Load())
	if b > t {
		return id, true
	}

	// Last element: race a concurrent thief for it.
	won := d.top.CompareAndSwap(t, t+1)
	d.bottom.Store(t + 1)
	if !won {
		return InvalidTaskID, false
	}
	return id, true
}

// Steal removes and returns the oldest id. Safe to call from any thief.
func (d *taskDeque) Steal() (TaskID, bool) {
	for {
		t := d.top.Load()
		b := d.bottom.Load()
		if t >= b {
			return InvalidTaskID, false
		}
		id := TaskID(d.buf[t&d.mask].Load())
		if d.top.CompareAndSwap(t, t+1) {
			return id, true
		}
		// Lost the race against the owner or another thief; retry
		// against the new top.
	}
}

// Len returns a point-in-time size estimate.
func (d *taskDeque) Len() int {
	n := d.bottom.Load() - d.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// =============================================================================
// remoteInbox: cross-pool readiness hand-off
// =============================================================================

// remoteInbox collects TaskIDs made ready by completions on other workers.
// Only the owning worker may push to its deque's bottom, so remote
// completions park readiness here and the owner drains it. Multi-producer,
// single-consumer, mutex-guarded: the inbox is off the hot path.
type remoteInbox struct {
	mu  sync.Mutex
	ids []TaskID
}

func (in *remoteInbox) push(id TaskID) {
	in.mu.Lock()
	in.ids = append(in.ids, id)
	in.mu.Unlock()
}

// drainInto moves every queued id to the bottom of d. Owner only.
// Returns the number of ids moved.
func (in *remoteInbox) drainInto(d *taskDeque) int {
	in.mu.Lock()
	ids := in.ids
	in.ids = nil
	in.mu.Unlock()

	moved := 0
	for i, id := range ids {
		if !d.PushBottom(id) {
			// Deque full; keep the rest queued for the next drain.
			in.mu.Lock()
			in.ids = append(in.ids, ids[i:]...)
			in.mu.Unlock()
			break
		}
		moved++
	}
	return moved
}

func (in *remoteInbox) len() int {
	in.mu.Lock()
	n := len(in.ids)
	in.mu.Unlock()
	return n
}
