package core

import (
	"errors"
	"testing"
	"unsafe"
)

func argsAddr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// newTestScheduler builds a scheduler for tests and tears it down with the
// test. Deterministic victim selection keeps stealing tests reproducible.
func newTestScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	if cfg.NewRandomSource == nil {
		cfg.NewRandomSource = func(workerIndex int) RandomSource {
			return NewXorshiftSource(uint64(workerIndex) + 1)
		}
	}
	s, err := NewScheduler(cfg)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s
}

// TestTaskPool_CreateAndGetData verifies the slot reservation basics
// Given: a fresh main pool
// When: tasks are created and their records fetched
// Then: each handle resolves to a zeroed record and argument buffer
func TestTaskPool_CreateAndGetData(t *testing.T) {
	s := newTestScheduler(t, Config{CPUWorkers: 1, MainSlots: 16})
	pool := s.MainPool()

	ids, err := pool.Create(3)
	if err != nil {
		t.Fatalf("Create(3) failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("Create(3) returned %d ids", len(ids))
	}

	seen := make(map[TaskID]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %#x", uint32(id))
		}
		seen[id] = true

		task, args, err := pool.GetData(id)
		if err != nil {
			t.Fatalf("GetData(%#x) failed: %v", uint32(id), err)
		}
		if task.Entry != nil || task.Parent != InvalidTaskID {
			t.Fatal("fresh task record is not zeroed")
		}
		if len(args) != TaskArgsSize {
			t.Fatalf("args buffer is %d bytes, want %d", len(args), TaskArgsSize)
		}
		for i, b := range args {
			if b != 0 {
				t.Fatalf("args[%d] = %d on fresh slot, want 0", i, b)
			}
		}
	}
}

// TestTaskPool_OutOfSlots verifies exhaustion is all-or-nothing
// Given: a main pool with 4 slots, 3 of them taken
// When: 2 more are requested
// Then: the call fails with ErrOutOfSlots and reserves nothing
func TestTaskPool_OutOfSlots(t *testing.T) {
	s := newTestScheduler(t, Config{CPUWorkers: 1, MainSlots: 4})
	pool := s.MainPool()

	if _, err := pool.Create(3); err != nil {
		t.Fatalf("Create(3) failed: %v", err)
	}

	_, err := pool.Create(2)
	if !errors.Is(err, ErrOutOfSlots) {
		t.Fatalf("Create(2) = %v, want ErrOutOfSlots", err)
	}

	// The failed call must not have consumed the last slot.
	if _, err := pool.Create(1); err != nil {
		t.Fatalf("Create(1) after failed Create(2): %v", err)
	}
}

// TestTaskPool_GenerationSafety verifies stale handles are detected
// Given: a task that has been published, executed and recycled
// When: the old handle is resolved again
// Then: GetData rejects it with ErrInvalidTaskID, and the recycled slot
//       hands out a distinct handle
func TestTaskPool_GenerationSafety(t *testing.T) {
	s := newTestScheduler(t, Config{CPUWorkers: 1, MainSlots: 1})
	pool := s.MainPool()

	ids, err := pool.Create(1)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	old := ids[0]

	task, _, err := pool.GetData(old)
	if err != nil {
		t.Fatalf("GetData failed: %v", err)
	}
	task.Entry = func(tc *TaskContext) {}

	if _, err := pool.Publish([]TaskID{old}, nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := pool.Wait(old); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if _, _, err := pool.GetData(old); !errors.Is(err, ErrInvalidTaskID) {
		t.Fatalf("GetData(stale) = %v, want ErrInvalidTaskID", err)
	}

	fresh, err := pool.Create(1)
	if err != nil {
		t.Fatalf("Create after recycle failed: %v", err)
	}
	if fresh[0] == old {
		t.Fatal("recycled slot issued the same handle again")
	}
	if fresh[0].SlotIndex() != old.SlotIndex() {
		t.Fatal("single-slot pool reused a different slot index")
	}
}

// TestTaskPool_ForeignAndMalformedIDs verifies resolve rejects bad handles
func TestTaskPool_ForeignAndMalformedIDs(t *testing.T) {
	s := newTestScheduler(t, Config{CPUWorkers: 1, MainSlots: 8})
	pool := s.MainPool()

	if _, _, err := pool.GetData(InvalidTaskID); !errors.Is(err, ErrInvalidTaskID) {
		t.Errorf("GetData(InvalidTaskID) = %v, want ErrInvalidTaskID", err)
	}

	// A handle from another pool's index space.
	foreign := PackTaskID(pool.Index()+1, 0, 0)
	if _, _, err := pool.GetData(foreign); !errors.Is(err, ErrInvalidTaskID) {
		t.Errorf("GetData(foreign) = %v, want ErrInvalidTaskID", err)
	}

	// A slot index past the pool's capacity.
	oob := PackTaskID(pool.Index(), uint32(pool.SlotCount()), 0)
	if _, _, err := pool.GetData(oob); !errors.Is(err, ErrInvalidTaskID) {
		t.Errorf("GetData(out-of-range) = %v, want ErrInvalidTaskID", err)
	}
}

// TestTaskPool_Delete verifies teardown of never-published tasks
// Given: a created task
// When: it is deleted instead of published
// Then: the slot returns to the free list and the handle goes stale
func TestTaskPool_Delete(t *testing.T) {
	s := newTestScheduler(t, Config{CPUWorkers: 1, MainSlots: 2})
	pool := s.MainPool()

	ids, err := pool.Create(2)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := pool.Delete(ids[0]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, _, err := pool.GetData(ids[0]); !errors.Is(err, ErrInvalidTaskID) {
		t.Fatalf("GetData after Delete = %v, want ErrInvalidTaskID", err)
	}

	// The freed slot is available again.
	if _, err := pool.Create(1); err != nil {
		t.Fatalf("Create after Delete failed: %v", err)
	}

	// Published tasks cannot be deleted; they complete instead.
	task, _, _ := pool.GetData(ids[1])
	task.Completion = CompletionExternal
	if _, err := pool.Publish([]TaskID{ids[1]}, nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := pool.Delete(ids[1]); !errors.Is(err, ErrPublish) {
		t.Fatalf("Delete(published) = %v, want ErrPublish", err)
	}
}

// TestTaskPool_CapabilityViolations verifies restricted pools fail closed
// Given: a user pool configured without the create/publish capabilities
// When: restricted operations are attempted through it
// Then: each fails with ErrCapabilityViolation
func TestTaskPool_CapabilityViolations(t *testing.T) {
	s := newTestScheduler(t, Config{
		CPUWorkers: 1,
		MainSlots:  8,
		PoolTypes: []PoolTypeConfig{{
			TypeID:       PoolTypeUser,
			Name:         "observer",
			Count:        1,
			SlotCount:    8,
			Capabilities: CapComplete | CapSteal,
		}},
	})

	pool, err := s.AcquirePool(PoolTypeUser)
	if err != nil {
		t.Fatalf("AcquirePool failed: %v", err)
	}
	defer s.ReleasePool(pool)

	if _, err := pool.Create(1); !errors.Is(err, ErrCapabilityViolation) {
		t.Errorf("Create = %v, want ErrCapabilityViolation", err)
	}
	if _, err := pool.Publish(nil, nil); !errors.Is(err, ErrCapabilityViolation) {
		t.Errorf("Publish = %v, want ErrCapabilityViolation", err)
	}
	if err := pool.Wait(InvalidTaskID); !errors.Is(err, ErrCapabilityViolation) {
		t.Errorf("Wait = %v, want ErrCapabilityViolation", err)
	}

	// Complete is granted, so its failure mode is the bad handle, not
	// the capability.
	if _, err := pool.Complete(InvalidTaskID); !errors.Is(err, ErrInvalidTaskID) {
		t.Errorf("Complete = %v, want ErrInvalidTaskID", err)
	}
}

// TestTaskPool_ArgsBufferAlignment verifies the inline buffers are aligned
// for vector-width payloads.
func TestTaskPool_ArgsBufferAlignment(t *testing.T) {
	s := newTestScheduler(t, Config{CPUWorkers: 1, MainSlots: 8})
	pool := s.MainPool()

	ids, err := pool.Create(8)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, id := range ids {
		_, args, err := pool.GetData(id)
		if err != nil {
			t.Fatalf("GetData failed: %v", err)
		}
		if addr := argsAddr(args); addr%taskArgsAlign != 0 {
			t.Fatalf("args buffer of %#x at %#x, not %d-aligned", uint32(id), addr, taskArgsAlign)
		}
	}
}
