package core

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// slotState tracks where a slot is in the task lifecycle. Guarded by the
// slot mutex.
type slotState uint8

const (
	slotFree slotState = iota
	slotReserved
	slotPublished
	slotCompleted // transient: fully complete, waiters being notified
)

// taskSlot is the engine-private state behind one TaskID.
//
// generation is atomic so liveness checks (GetData, Wait) stay lock-free.
// pendingDeps and pendingChildren use the guard-count scheme: both start
// one above their real value so a concurrent decrement can never observe
// zero while registration is still in progress.
type taskSlot struct {
	mu         sync.Mutex
	state      slotState
	waiters    []TaskID // ids blocked on this task's completion
	def        Task
	generation atomic.Uint32

	pendingDeps     atomic.Int32
	pendingChildren atomic.Int32
}

// TaskPool is fixed-capacity task storage bound to one owner goroutine,
// together with that owner's ready deque. Create, GetData, Publish and the
// bottom end of the deque are owner-only; Complete and Steal may be
// exercised from any pool holding the matching capability.
//
// Tasks readied into this pool from elsewhere sit in its inbox until the
// owner drains them via Wait (or the owning worker's loop); an acquired
// pool whose owner never pumps stalls those tasks.
type TaskPool struct {
	sched  *Scheduler
	index  uint32
	typeID int
	name   string
	caps   Capability

	slots []taskSlot
	args  []byte // len(slots)*TaskArgsSize, 16-byte aligned, arena-backed

	freeMu sync.Mutex
	free   []uint16 // LIFO free-slot stack

	ready  *taskDeque
	inbox  remoteInbox
	signal chan struct{}

	// Victim selection source. Used only by the pool's owner goroutine.
	rng RandomSource

	// Identity of the managed worker bound to this pool, or -1 plus nil
	// for externally acquired pools.
	workerIndex int
	workerCtx   any

	acquired atomic.Bool
	bound    atomic.Bool
}

func newTaskPool(s *Scheduler, index uint32, typeID int, name string, caps Capability, slotCount int, arena Arena) (*TaskPool, error) {
	args, err := arena.Allocate(slotCount*TaskArgsSize, taskArgsAlign)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}

	p := &TaskPool{
		sched:       s,
		index:       index,
		typeID:      typeID,
		name:        name,
		caps:        caps,
		slots:       make([]taskSlot, slotCount),
		args:        args,
		free:        make([]uint16, slotCount),
		ready:       newTaskDeque(slotCount),
		signal:      make(chan struct{}, 1),
		workerIndex: -1,
	}
	// Free list starts with low indices on top of the stack.
	for i := range p.free {
		p.free[i] = uint16(slotCount - 1 - i)
	}
	return p, nil
}

// Name returns the pool's diagnostic name (for example "cpu-2").
func (p *TaskPool) Name() string { return p.name }

// Index returns the pool index encoded into this pool's TaskIDs.
func (p *TaskPool) Index() uint32 { return p.index }

// TypeID reports the pool type this pool was configured under.
func (p *TaskPool) TypeID() int { return p.typeID }

// Capabilities returns the operations this pool may perform.
func (p *TaskPool) Capabilities() Capability { return p.caps }

// SlotCount returns the fixed slot capacity.
func (p *TaskPool) SlotCount() int { return len(p.slots) }

// Bind claims the calling goroutine as the pool's owner. Owner-only
// operations (Create, GetData, Publish, Wait) must come from the binding
// goroutine until Unbind or ReleasePool hands the pool over. Worker pools
// are permanently bound to their worker, and a pool already bound elsewhere
// cannot be rebound.
func (p *TaskPool) Bind() error {
	if p.workerIndex >= 0 {
		return fmt.Errorf("pool %s is bound to worker %d", p.name, p.workerIndex)
	}
	if !p.bound.CompareAndSwap(false, true) {
		return fmt.Errorf("pool %s is already bound", p.name)
	}
	return nil
}

// Unbind releases a Bind claim so another goroutine can take the pool over.
// The releasing goroutine must no longer touch owner-only operations.
func (p *TaskPool) Unbind() {
	if p.workerIndex < 0 {
		p.bound.Store(false)
	}
}

// Create reserves count free slots and returns their handles. Owner
// goroutine only. The reservation keeps each slot's current generation, so
// handles from before the slot's last recycle remain detectably stale.
// Fails with ErrOutOfSlots (reserving nothing) when fewer than count slots
// are free.
func (p *TaskPool) Create(count int) ([]TaskID, error) {
	if !p.caps.Has(CapCreate) {
		return nil, fmt.Errorf("%w: create on pool %s (caps %s)", ErrCapabilityViolation, p.name, p.caps)
	}
	if count <= 0 {
		return nil, fmt.Errorf("create: count must be > 0, got %d", count)
	}

	p.freeMu.Lock()
	if len(p.free) < count {
		free := len(p.free)
		p.freeMu.Unlock()
		p.sched.metrics.RecordTaskRejected(p.name, "out_of_slots")
		return nil, fmt.Errorf("%w: pool %s needs %d slots, %d free", ErrOutOfSlots, p.name, count, free)
	}
	taken := make([]uint16, count)
	copy(taken, p.free[len(p.free)-count:])
	p.free = p.free[:len(p.free)-count]
	p.freeMu.Unlock()

	ids := make([]TaskID, count)
	for i, si := range taken {
		slot := &p.slots[si]
		slot.mu.Lock()
		slot.state = slotReserved
		slot.def = Task{}
		slot.waiters = nil
		slot.mu.Unlock()
		slot.pendingDeps.Store(0)
		// One for the task's own body; children published later add
		// to it.
		slot.pendingChildren.Store(1)
		ids[i] = PackTaskID(p.index, uint32(si), slot.generation.Load())

		a := p.argsOf(uint32(si))
		for j := range a {
			a[j] = 0
		}
	}
	return ids, nil
}

// GetData resolves id to its task record and inline argument buffer. Owner
// goroutine only, and only before Publish: once published the record is the
// engine's and the argument buffer belongs to the executing worker.
// Returns ErrInvalidTaskID when the handle is stale or foreign.
func (p *TaskPool) GetData(id TaskID) (*Task, []byte, error) {
	if !p.caps.Has(CapCreate) {
		return nil, nil, fmt.Errorf("%w: get data on pool %s (caps %s)", ErrCapabilityViolation, p.name, p.caps)
	}
	slot, err := p.resolve(id)
	if err != nil {
		return nil, nil, err
	}
	return &slot.def, p.argsOf(id.SlotIndex()), nil
}

// Delete tears down a created-but-never-published task and returns its slot
// to the free list. Published tasks delete themselves through completion;
// passing one is an error.
func (p *TaskPool) Delete(id TaskID) error {
	if !p.caps.Has(CapCreate) {
		return fmt.Errorf("%w: delete on pool %s (caps %s)", ErrCapabilityViolation, p.name, p.caps)
	}
	slot, err := p.resolve(id)
	if err != nil {
		return err
	}

	slot.mu.Lock()
	if slot.state != slotReserved {
		slot.mu.Unlock()
		return fmt.Errorf("%w: delete of published task %#x", ErrPublish, uint32(id))
	}
	slot.state = slotFree
	slot.def = Task{}
	slot.mu.Unlock()

	p.recycle(id.SlotIndex(), slot)
	return nil
}

// resolve maps id to its slot, checking structure, pool index and
// generation. A generation mismatch means the task completed and the slot
// was recycled; callers see ErrInvalidTaskID, never a crash.
func (p *TaskPool) resolve(id TaskID) (*taskSlot, error) {
	if !id.IsValid() {
		return nil, fmt.Errorf("%w: %#x", ErrInvalidTaskID, uint32(id))
	}
	if id.PoolIndex() != p.index {
		return nil, fmt.Errorf("%w: %#x belongs to pool %d, not %d", ErrInvalidTaskID, uint32(id), id.PoolIndex(), p.index)
	}
	si := id.SlotIndex()
	if si >= uint32(len(p.slots)) {
		return nil, fmt.Errorf("%w: slot %d out of range", ErrInvalidTaskID, si)
	}
	slot := &p.slots[si]
	if slot.generation.Load() != id.Generation() {
		return nil, fmt.Errorf("%w: %#x is stale", ErrInvalidTaskID, uint32(id))
	}
	return slot, nil
}

// isLive reports whether id still names a live slot in this pool.
func (p *TaskPool) isLive(id TaskID) bool {
	_, err := p.resolve(id)
	return err == nil
}

// recycle bumps the slot generation (invalidating every outstanding handle)
// and returns the slot to the free list. Safe from any goroutine: remote
// completions recycle slots of pools they do not own.
func (p *TaskPool) recycle(si uint32, slot *taskSlot) {
	gen := (slot.generation.Load() + 1) & generationMask
	slot.generation.Store(gen)

	p.freeMu.Lock()
	p.free = append(p.free, uint16(si))
	p.freeMu.Unlock()
}

// argsOf returns the inline argument buffer of slot si.
func (p *TaskPool) argsOf(si uint32) []byte {
	off := int(si) * TaskArgsSize
	return p.args[off : off+TaskArgsSize : off+TaskArgsSize]
}

// freeSlots returns the current free-list depth.
func (p *TaskPool) freeSlots() int {
	p.freeMu.Lock()
	n := len(p.free)
	p.freeMu.Unlock()
	return n
}

// wake nudges the pool's owner if it is parked.
func (p *TaskPool) wake() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// nextLocalTask pops the next ready task from the owner's deque, draining
// the remote inbox first when the deque runs dry. Owner goroutine only.
func (p *TaskPool) nextLocalTask() (TaskID, bool) {
	if id, ok := p.ready.PopBottom(); ok {
		return id, true
	}
	if p.inbox.drainInto(p.ready) > 0 {
		return p.ready.PopBottom()
	}
	return InvalidTaskID, false
}

// Stats returns a point-in-time snapshot of the pool.
func (p *TaskPool) Stats() PoolStats {
	return PoolStats{
		Name:      p.name,
		TypeID:    p.typeID,
		Slots:     len(p.slots),
		FreeSlots: p.freeSlots(),
		Ready:     p.ready.Len(),
		Inbox:     p.inbox.len(),
	}
}
