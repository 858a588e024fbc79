package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler owns the fixed set of task pools and the managed worker
// goroutines executing ready tasks from them, with work stealing between
// pools. Construction commits all pool storage up front; the scheduler
// never allocates task slots afterwards.
type Scheduler struct {
	cfg          Config
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler

	pools    []*TaskPool // indexed by TaskID pool index
	mainPool *TaskPool
	workers  []*worker

	delay   *DelayManager
	history *executionHistory

	asyncSem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// stealSignal wakes parked thieves when work appears anywhere;
	// completionSignal wakes Wait callers parked on a completion. Both
	// are best-effort hints backed by the park timeout.
	stealSignal      chan struct{}
	completionSignal chan struct{}

	shuttingDown atomic.Bool

	executed  atomic.Int64
	stolen    atomic.Int64
	published atomic.Int64
	completed atomic.Int64
}

// NewScheduler builds pools and workers from cfg and starts the workers.
// Every worker runs the configured init callback before entering its loop;
// if any callback fails, all workers are torn down and the whole
// construction fails with ErrWorkerInit.
func NewScheduler(cfg Config) (*Scheduler, error) {
	cfg.normalize()

	if n := cfg.poolCount(); n > MaxPoolCount {
		return nil, fmt.Errorf("config describes %d pools, task ids address at most %d", n, MaxPoolCount)
	}

	s := &Scheduler{
		cfg:              cfg,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		panicHandler:     cfg.PanicHandler,
		asyncSem:         make(chan struct{}, cfg.MaxAsyncRequests),
		stealSignal:      make(chan struct{}, (cfg.CPUWorkers+cfg.AsyncWorkers)*2),
		completionSignal: make(chan struct{}, 1),
		history:          newExecutionHistory(cfg.HistoryCapacity),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	arena := cfg.Arena
	if arena == nil {
		total := 0
		addSlots := func(n int) { total += n*TaskArgsSize + taskArgsAlign }
		addSlots(cfg.MainSlots)
		for i := 0; i < cfg.CPUWorkers+cfg.AsyncWorkers; i++ {
			addSlots(cfg.WorkerSlots)
		}
		for _, pt := range cfg.PoolTypes {
			for i := 0; i < pt.Count; i++ {
				addSlots(pt.SlotCount)
			}
		}
		arena = NewFixedArena(total)
	}

	if err := s.buildPools(arena); err != nil {
		return nil, err
	}

	s.delay = newDelayManager(s)

	if err := s.startWorkers(); err != nil {
		s.delay.stop()
		s.cancel()
		return nil, err
	}

	s.logger.Info("scheduler started",
		F("cpu_workers", cfg.CPUWorkers),
		F("async_workers", cfg.AsyncWorkers),
		F("pools", len(s.pools)))
	return s, nil
}

func (s *Scheduler) buildPools(arena Arena) error {
	add := func(typeID int, name string, caps Capability, slots int) (*TaskPool, error) {
		p, err := newTaskPool(s, uint32(len(s.pools)), typeID, name, caps, slots, arena)
		if err != nil {
			return nil, err
		}
		p.rng = s.cfg.NewRandomSource(len(s.pools))
		s.pools = append(s.pools, p)
		return p, nil
	}

	main, err := add(PoolTypeMain, "main", CapAll, s.cfg.MainSlots)
	if err != nil {
		return err
	}
	main.acquired.Store(true)
	main.bound.Store(true)
	s.mainPool = main

	for i := 0; i < s.cfg.CPUWorkers; i++ {
		p, err := add(PoolTypeCPUWorker, fmt.Sprintf("cpu-%d", i), CapAll, s.cfg.WorkerSlots)
		if err != nil {
			return err
		}
		p.workerIndex = len(s.workers)
		s.workers = append(s.workers, &worker{index: p.workerIndex, kind: WorkerKindCPU, pool: p, sched: s})
	}
	for i := 0; i < s.cfg.AsyncWorkers; i++ {
		p, err := add(PoolTypeAsyncWorker, fmt.Sprintf("async-%d", i), CapAll, s.cfg.WorkerSlots)
		if err != nil {
			return err
		}
		p.workerIndex = len(s.workers)
		s.workers = append(s.workers, &worker{index: p.workerIndex, kind: WorkerKindAsyncIO, pool: p, sched: s})
	}
	for _, pt := range s.cfg.PoolTypes {
		for i := 0; i < pt.Count; i++ {
			name := pt.Name
			if pt.Count > 1 {
				name = fmt.Sprintf("%s-%d", pt.Name, i)
			}
			if _, err := add(pt.TypeID, name, pt.Capabilities, pt.SlotCount); err != nil {
				return err
			}
		}
	}
	return nil
}

// startWorkers launches every worker goroutine and waits for all init
// callbacks before declaring the scheduler constructed.
func (s *Scheduler) startWorkers() error {
	initErrs := make(chan error, len(s.workers))
	start := make(chan struct{})

	for _, w := range s.workers {
		s.wg.Add(1)
		go w.run(start, initErrs)
	}

	var initErr error
	for range s.workers {
		if err := <-initErrs; err != nil && initErr == nil {
			initErr = err
		}
	}

	if initErr != nil {
		// Tear everything down: workers that initialized fine are
		// still parked on the start barrier.
		s.cancel()
		close(start)
		s.wg.Wait()
		return fmt.Errorf("%w: %v", ErrWorkerInit, initErr)
	}

	close(start)
	return nil
}

// Shutdown stops intake, lets every worker finish its current task, joins
// them and invalidates all outstanding TaskIDs. Idempotent.
func (s *Scheduler) Shutdown() {
	if s.shuttingDown.Swap(true) {
		return
	}
	s.delay.stop()
	s.cancel()
	s.wg.Wait()

	// Recycle every slot so stale handles cannot resolve.
	for _, p := range s.pools {
		p.freeMu.Lock()
		p.free = p.free[:0]
		for i := range p.slots {
			slot := &p.slots[i]
			slot.mu.Lock()
			slot.state = slotFree
			slot.def = Task{}
			slot.waiters = nil
			slot.mu.Unlock()
			slot.generation.Store((slot.generation.Load() + 1) & generationMask)
			p.free = append(p.free, uint16(len(p.slots)-1-i))
		}
		p.freeMu.Unlock()
	}
	s.logger.Info("scheduler stopped",
		F("executed", s.executed.Load()),
		F("stolen", s.stolen.Load()))
}

// ShutdownGraceful waits for all published tasks to complete before
// stopping, up to timeout. On timeout the scheduler is shut down anyway and
// an error returned.
func (s *Scheduler) ShutdownGraceful(timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			s.Shutdown()
			return fmt.Errorf("graceful shutdown timed out after %v", timeout)
		case <-ticker.C:
			if s.idle() {
				s.Shutdown()
				return nil
			}
		}
	}
}

// idle reports whether every slot in every pool is free.
func (s *Scheduler) idle() bool {
	for _, p := range s.pools {
		if p.freeSlots() != len(p.slots) {
			return false
		}
	}
	return true
}

// MainPool returns the pool reserved for the goroutine that constructed the
// scheduler (typically the application's main goroutine).
func (s *Scheduler) MainPool() *TaskPool {
	return s.mainPool
}

// AcquirePool claims an unbound pool of the given type for the calling
// goroutine. Worker-bound pools are not acquirable.
func (s *Scheduler) AcquirePool(typeID int) (*TaskPool, error) {
	for _, p := range s.pools {
		if p.typeID != typeID || p.workerIndex >= 0 {
			continue
		}
		if p.acquired.CompareAndSwap(false, true) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no free pool of type %d", typeID)
}

// ReleasePool returns an acquired pool, dropping any Bind claim on it. The
// releasing goroutine must no longer use it afterwards.
func (s *Scheduler) ReleasePool(p *TaskPool) {
	if p != nil && p.workerIndex < 0 {
		p.bound.Store(false)
		p.acquired.Store(false)
	}
}

// AcquireAsyncRequest admits one async I/O request, blocking while
// MaxAsyncRequests are already outstanding.
func (s *Scheduler) AcquireAsyncRequest(ctx context.Context) error {
	select {
	case s.asyncSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrSchedulerStopped
	}
}

// ReleaseAsyncRequest releases a slot taken by AcquireAsyncRequest.
func (s *Scheduler) ReleaseAsyncRequest() {
	select {
	case <-s.asyncSem:
	default:
	}
}

// WorkerCount returns the number of managed workers.
func (s *Scheduler) WorkerCount() int { return len(s.workers) }

// Stats returns a point-in-time snapshot of the scheduler.
func (s *Scheduler) Stats() SchedulerStats {
	stats := SchedulerStats{
		Workers:        len(s.workers),
		Executed:       s.executed.Load(),
		Stolen:         s.stolen.Load(),
		Published:      s.published.Load(),
		Completed:      s.completed.Load(),
		DelayedPending: s.delay.pendingCount(),
		Pools:          make([]PoolStats, 0, len(s.pools)),
	}
	for _, p := range s.pools {
		stats.Pools = append(stats.Pools, p.Stats())
	}
	return stats
}

// RecentExecutions returns up to limit most recent task execution records,
// newest first.
func (s *Scheduler) RecentExecutions(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}

// =============================================================================
// Engine plumbing shared by pools
// =============================================================================

func (s *Scheduler) poolAt(index uint32) *TaskPool {
	if index >= uint32(len(s.pools)) {
		return nil
	}
	return s.pools[index]
}

// resolveLive maps id to its slot and pool, wherever it lives.
func (s *Scheduler) resolveLive(id TaskID) (*taskSlot, *TaskPool, error) {
	if !id.IsValid() {
		return nil, nil, fmt.Errorf("%w: %#x", ErrInvalidTaskID, uint32(id))
	}
	p := s.poolAt(id.PoolIndex())
	if p == nil {
		return nil, nil, fmt.Errorf("%w: %#x names unknown pool %d", ErrInvalidTaskID, uint32(id), id.PoolIndex())
	}
	slot, err := p.resolve(id)
	if err != nil {
		return nil, nil, err
	}
	return slot, p, nil
}

func (s *Scheduler) idLive(id TaskID) bool {
	_, _, err := s.resolveLive(id)
	return err == nil
}

// stealFor picks victims uniformly at random and tries to take the oldest
// ready task from one of them. Called by thief's owner goroutine only.
func (s *Scheduler) stealFor(thief *TaskPool) (TaskID, bool) {
	if !thief.caps.Has(CapSteal) || len(s.pools) < 2 {
		return InvalidTaskID, false
	}
	attempts := 2 * len(s.pools)
	for i := 0; i < attempts; i++ {
		victim := s.pools[thief.rng.IntN(len(s.pools))]
		if victim == thief {
			continue
		}
		if id, ok := victim.ready.Steal(); ok {
			s.stolen.Add(1)
			s.metrics.RecordTaskStolen(victim.name, thief.name)
			return id, true
		}
	}
	return InvalidTaskID, false
}

// notifyStealable hints parked thieves that work appeared somewhere.
func (s *Scheduler) notifyStealable() {
	select {
	case s.stealSignal <- struct{}{}:
	default:
	}
}

// signalCompletion hints parked Wait callers that a completion landed.
func (s *Scheduler) signalCompletion() {
	select {
	case s.completionSignal <- struct{}{}:
	default:
	}
}

// runTask executes one ready task on the goroutine owning p. The task's
// storage may live in another pool when it was stolen; children it creates
// go to p.
func (s *Scheduler) runTask(p *TaskPool, id TaskID) {
	tpool := s.poolAt(id.PoolIndex())
	if tpool == nil {
		s.logger.Warn("dropping task from unknown pool", F("id", uint32(id)))
		return
	}
	slot := &tpool.slots[id.SlotIndex()]
	if slot.generation.Load() != id.Generation() {
		// Completed out from under the queue; contract violation by
		// an external completer, not a crash.
		s.logger.Warn("skipping stale queued task", F("id", uint32(id)))
		return
	}

	slot.mu.Lock()
	entry := slot.def.Entry
	completion := slot.def.Completion
	slot.mu.Unlock()

	tc := &TaskContext{
		Ctx:           s.ctx,
		Scheduler:     s,
		Pool:          p,
		ID:            id,
		Args:          tpool.argsOf(id.SlotIndex()),
		WorkerIndex:   p.workerIndex,
		WorkerCount:   len(s.workers),
		WorkerContext: p.workerCtx,
	}

	start := time.Now()
	panicked := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				s.panicHandler.HandlePanic(s.ctx, tpool.name, p.workerIndex, r, debug.Stack())
				s.metrics.RecordTaskPanic(tpool.name, r)
			}
		}()
		entry(tc)
	}()

	duration := time.Since(start)
	s.executed.Add(1)
	s.metrics.RecordTaskDuration(tpool.name, duration)
	s.history.Add(TaskExecutionRecord{
		ID:          id,
		Pool:        tpool.name,
		WorkerIndex: p.workerIndex,
		StartedAt:   start,
		Duration:    duration,
		Panicked:    panicked,
	})

	if completion == CompletionAutomatic {
		if _, err := p.Complete(id); err != nil {
			s.logger.Warn("automatic completion failed", F("id", uint32(id)), F("err", err))
		}
	}
}
