package core

import (
	"sync"
	"testing"
)

func dequeID(n uint32) TaskID {
	return PackTaskID(0, n, 0)
}

// TestTaskDeque_OwnerLIFO verifies the owner end ordering
// Given: ids 1..4 pushed at the bottom
// When: the owner pops them back
// Then: they come out newest-first
func TestTaskDeque_OwnerLIFO(t *testing.T) {
	d := newTaskDeque(8)

	for n := uint32(1); n <= 4; n++ {
		if !d.PushBottom(dequeID(n)) {
			t.Fatalf("PushBottom(%d) failed on non-full deque", n)
		}
	}

	for want := uint32(4); want >= 1; want-- {
		id, ok := d.PopBottom()
		if !ok {
			t.Fatalf("PopBottom failed with %d entries left", want)
		}
		if id.SlotIndex() != want {
			t.Fatalf("PopBottom = slot %d, want %d", id.SlotIndex(), want)
		}
	}

	if _, ok := d.PopBottom(); ok {
		t.Fatal("PopBottom succeeded on empty deque")
	}
}

// TestTaskDeque_ThiefFIFO verifies the thief end ordering
// Given: ids 1..4 pushed at the bottom
// When: a thief steals them
// Then: they come out oldest-first
func TestTaskDeque_ThiefFIFO(t *testing.T) {
	d := newTaskDeque(8)

	for n := uint32(1); n <= 4; n++ {
		d.PushBottom(dequeID(n))
	}

	for want := uint32(1); want <= 4; want++ {
		id, ok := d.Steal()
		if !ok {
			t.Fatalf("Steal failed with entries remaining")
		}
		if id.SlotIndex() != want {
			t.Fatalf("Steal = slot %d, want %d", id.SlotIndex(), want)
		}
	}

	if _, ok := d.Steal(); ok {
		t.Fatal("Steal succeeded on empty deque")
	}
}

// TestTaskDeque_Capacity verifies the full condition
func TestTaskDeque_Capacity(t *testing.T) {
	d := newTaskDeque(4)

	for n := uint32(0); n < 4; n++ {
		if !d.PushBottom(dequeID(n)) {
			t.Fatalf("PushBottom failed at %d of 4", n)
		}
	}
	if d.PushBottom(dequeID(99)) {
		t.Fatal("PushBottom succeeded past capacity")
	}

	// Draining one entry makes room again.
	if _, ok := d.Steal(); !ok {
		t.Fatal("Steal failed on full deque")
	}
	if !d.PushBottom(dequeID(99)) {
		t.Fatal("PushBottom failed after making room")
	}
}

// TestTaskDeque_ConcurrentConservation verifies no entry is lost or
// duplicated under contention
// Given: a deque preloaded with distinct ids
// When: the owner pops and several thieves steal concurrently
// Then: every id is taken exactly once
func TestTaskDeque_ConcurrentConservation(t *testing.T) {
	const entries = 2048
	const thieves = 4

	d := newTaskDeque(entries)
	for n := uint32(0); n < entries; n++ {
		if !d.PushBottom(dequeID(n)) {
			t.Fatalf("preload failed at %d", n)
		}
	}

	var mu sync.Mutex
	taken := make(map[TaskID]int, entries)
	record := func(id TaskID) {
		mu.Lock()
		taken[id]++
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(1 + thieves)

	// Owner drains from the bottom.
	go func() {
		defer wg.Done()
		misses := 0
		for misses < 1000 {
			if id, ok := d.PopBottom(); ok {
				record(id)
				misses = 0
			} else {
				misses++
			}
		}
	}()

	for i := 0; i < thieves; i++ {
		go func() {
			defer wg.Done()
			misses := 0
			for misses < 1000 {
				if id, ok := d.Steal(); ok {
					record(id)
					misses = 0
				} else {
					misses++
				}
			}
		}()
	}

	wg.Wait()

	if len(taken) != entries {
		t.Fatalf("took %d distinct ids, want %d", len(taken), entries)
	}
	for id, count := range taken {
		if count != 1 {
			t.Fatalf("id %v taken %d times", id, count)
		}
	}
}

// TestRemoteInbox_DrainOrder verifies cross-pool hand-off semantics
// Given: ids pushed from several producers
// When: the owner drains into its deque
// Then: all ids arrive and the inbox empties
func TestRemoteInbox_DrainOrder(t *testing.T) {
	var in remoteInbox
	d := newTaskDeque(16)

	var wg sync.WaitGroup
	for p := uint32(0); p < 4; p++ {
		wg.Add(1)
		go func(p uint32) {
			defer wg.Done()
			for n := uint32(0); n < 3; n++ {
				in.push(dequeID(p*3 + n))
			}
		}(p)
	}
	wg.Wait()

	if got := in.len(); got != 12 {
		t.Fatalf("inbox len = %d, want 12", got)
	}
	if moved := in.drainInto(d); moved != 12 {
		t.Fatalf("drainInto moved %d, want 12", moved)
	}
	if got := in.len(); got != 0 {
		t.Fatalf("inbox len after drain = %d, want 0", got)
	}
	if got := d.Len(); got != 12 {
		t.Fatalf("deque len after drain = %d, want 12", got)
	}
}

// TestRemoteInbox_DrainFullDeque verifies overflow entries stay queued
// instead of vanishing when the deque has no room.
func TestRemoteInbox_DrainFullDeque(t *testing.T) {
	var in remoteInbox
	d := newTaskDeque(4)

	for n := uint32(0); n < 6; n++ {
		in.push(dequeID(n))
	}

	if moved := in.drainInto(d); moved != 4 {
		t.Fatalf("drainInto moved %d, want 4", moved)
	}
	if got := in.len(); got != 2 {
		t.Fatalf("inbox kept %d ids, want 2", got)
	}

	// After the owner makes room the remainder drains.
	d.PopBottom()
	d.PopBottom()
	if moved := in.drainInto(d); moved != 2 {
		t.Fatalf("second drainInto moved %d, want 2", moved)
	}
}
