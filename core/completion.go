package core

import (
	"fmt"
	"time"
)

// Publish makes previously created tasks eligible to run once every id in
// deps has completed. Owner goroutine only, at most once per task.
//
// Dependency registration is race-safe against concurrent completions: each
// dependency is tested and registered under that dependency slot's lock,
// the same lock Complete holds while scanning waiters, and the new task's
// dependency count carries a +1 guard until registration finishes. A
// dependency whose generation no longer matches has observably completed
// and counts as satisfied; a structurally malformed dependency id fails the
// whole call with ErrPublish.
//
// Returns the number of tasks that became ready in this call. Tasks with
// CompletionExternal are never enqueued; their readiness is meaningless by
// contract.
func (p *TaskPool) Publish(ids, deps []TaskID) (int, error) {
	return p.publish(ids, deps, 0)
}

func (p *TaskPool) publish(ids, deps []TaskID, delay time.Duration) (int, error) {
	if !p.caps.Has(CapPublish) {
		return 0, fmt.Errorf("%w: publish on pool %s (caps %s)", ErrCapabilityViolation, p.name, p.caps)
	}
	s := p.sched
	if s.shuttingDown.Load() {
		s.metrics.RecordTaskRejected(p.name, "shutdown")
		return 0, fmt.Errorf("%w: publish on pool %s", ErrSchedulerStopped, p.name)
	}

	// Validate dependency handles up front so a bad dep rejects the call
	// before any task changes state.
	for _, dep := range deps {
		if !dep.IsValid() {
			return 0, fmt.Errorf("%w: dependency %#x is not a task id", ErrPublish, uint32(dep))
		}
		if s.poolAt(dep.PoolIndex()) == nil {
			return 0, fmt.Errorf("%w: dependency %#x names unknown pool %d", ErrPublish, uint32(dep), dep.PoolIndex())
		}
	}

	ready := 0
	for _, id := range ids {
		slot, err := p.resolve(id)
		if err != nil {
			return ready, fmt.Errorf("%w: %v", ErrPublish, err)
		}

		slot.mu.Lock()
		if slot.state != slotReserved {
			slot.mu.Unlock()
			return ready, fmt.Errorf("%w: %w: %#x", ErrPublish, ErrAlreadyPublished, uint32(id))
		}
		if slot.def.Entry == nil && slot.def.Completion != CompletionExternal {
			slot.mu.Unlock()
			return ready, fmt.Errorf("%w: task %#x has no entry point", ErrPublish, uint32(id))
		}
		slot.state = slotPublished
		parent := slot.def.Parent
		slot.mu.Unlock()

		// Tie into the parent's lifetime. The parent cannot fully
		// complete while its own body guard or another live child
		// holds its count, so the increment cannot race a recycle of
		// a still-valid parent.
		if parent != InvalidTaskID {
			pslot, _, perr := s.resolveLive(parent)
			if perr != nil {
				return ready, fmt.Errorf("%w: parent of %#x: %v", ErrPublish, uint32(id), perr)
			}
			pslot.pendingChildren.Add(1)
		}

		// Guard at 1 while dependencies are registered, so a
		// completion arriving mid-registration cannot release the
		// task early. A delayed publish adds a second guard that the
		// timer releases.
		guard := int32(1)
		if delay > 0 {
			guard = 2
		}
		slot.pendingDeps.Store(guard)

		for _, dep := range deps {
			dpool := s.poolAt(dep.PoolIndex())
			ds := &dpool.slots[dep.SlotIndex()]

			ds.mu.Lock()
			live := ds.generation.Load() == dep.Generation() &&
				(ds.state == slotReserved || ds.state == slotPublished)
			if live {
				ds.waiters = append(ds.waiters, id)
				slot.pendingDeps.Add(1)
			}
			ds.mu.Unlock()
		}

		// Hand the timer guard to the delay manager before this id's
		// fate is decided, so a failure later in the batch cannot
		// strand an already-published task behind a hold nobody will
		// release.
		if delay > 0 {
			s.delay.hold(id, delay)
		}

		if slot.pendingDeps.Add(-1) == 0 {
			if p.enqueueReady(p, id, slot) {
				ready++
			}
		}
	}

	s.published.Add(int64(len(ids)))
	if ready > 0 {
		s.metrics.RecordTasksReady(p.name, ready)
		s.notifyStealable()
	}
	return ready, nil
}

// PublishAfter publishes like Publish but holds the tasks back for at least
// delay before they can become ready, on top of any dependencies. The hold
// is released through the same path a completed dependency takes.
func (p *TaskPool) PublishAfter(ids, deps []TaskID, delay time.Duration) error {
	if delay <= 0 {
		_, err := p.Publish(ids, deps)
		return err
	}
	_, err := p.publish(ids, deps, delay)
	return err
}

// Complete records that id's completion contract has been satisfied: the
// worker calls it after an Automatic entry point returns, the task body
// calls it for Internal tasks, and external event handlers call it for
// External tasks. The receiving pool needs the Complete capability; id may
// live in any pool, since completions race across workers.
//
// When the task's own body and all of its children have finished, waiters
// are notified (possibly cascading into other pools' ready queues), the
// parent chain is advanced, and the slot is recycled. Returns the number of
// tasks newly made ready.
func (p *TaskPool) Complete(id TaskID) (int, error) {
	if !p.caps.Has(CapComplete) {
		return 0, fmt.Errorf("%w: complete on pool %s (caps %s)", ErrCapabilityViolation, p.name, p.caps)
	}
	s := p.sched
	_, tpool, err := s.resolveLive(id)
	if err != nil {
		return 0, err
	}

	ready := s.finish(p, tpool, id)
	if ready > 0 {
		s.notifyStealable()
	}
	return ready, nil
}

// finish walks the completion cascade starting at id, climbing the parent
// chain iteratively. local is the calling pool: waiters that belong to it
// go straight onto its deque, everything else through the target pool's
// inbox.
func (s *Scheduler) finish(local *TaskPool, tpool *TaskPool, id TaskID) int {
	ready := 0
	for {
		slot := &tpool.slots[id.SlotIndex()]
		if slot.pendingChildren.Add(-1) != 0 {
			// Children still outstanding; the last of them
			// resumes the cascade.
			break
		}

		slot.mu.Lock()
		slot.state = slotCompleted
		waiters := slot.waiters
		slot.waiters = nil
		parent := slot.def.Parent
		slot.def = Task{}
		slot.state = slotFree
		slot.mu.Unlock()

		for _, w := range waiters {
			wpool := s.poolAt(w.PoolIndex())
			wslot := &wpool.slots[w.SlotIndex()]
			if wslot.pendingDeps.Add(-1) == 0 {
				if local.enqueueReady(wpool, w, wslot) {
					ready++
					s.metrics.RecordTasksReady(wpool.name, 1)
				}
			}
		}

		tpool.recycle(id.SlotIndex(), slot)
		s.completed.Add(1)
		s.signalCompletion()

		if parent == InvalidTaskID {
			break
		}
		_, ppool, err := s.resolveLive(parent)
		if err != nil {
			// Parent already gone; nothing left to cascade into.
			break
		}
		tpool, id = ppool, parent
	}
	return ready
}

// enqueueReady pushes id onto target's ready queue. Returns false for
// External tasks, which by contract are never enqueued. local is the pool
// of the calling goroutine: pushes into its own deque take the owner fast
// path, everything else goes through the inbox and wakes the target owner.
func (local *TaskPool) enqueueReady(target *TaskPool, id TaskID, slot *taskSlot) bool {
	if slot.def.Completion == CompletionExternal {
		return false
	}
	if target == local {
		target.ready.PushBottom(id)
	} else {
		target.inbox.push(id)
		target.wake()
	}
	return true
}

// Wait executes available work until id has fully completed: tasks from
// this pool's own queue first, then steals from other pools. The goroutine
// parks only when no work is available anywhere. Returns immediately when
// id is already complete, so repeated waits on the same handle are cheap.
// Re-entrant: task bodies may wait on sub-tasks.
//
// Wait is also how a pool outside the managed worker set pumps its own
// queue: readiness delivered cross-pool lands in this pool's inbox, which
// only the owner drains and thieves cannot see, so tasks readied into an
// acquired pool whose owner never waits make no progress.
func (p *TaskPool) Wait(id TaskID) error {
	if !p.caps.Has(CapExecute) {
		return fmt.Errorf("%w: wait on pool %s (caps %s)", ErrCapabilityViolation, p.name, p.caps)
	}
	s := p.sched

	for {
		// A stale generation is the completion signal: the slot was
		// recycled after the task's full lifetime ended.
		if !p.sched.idLive(id) {
			return nil
		}
		if s.shuttingDown.Load() {
			return fmt.Errorf("%w: wait for %#x", ErrSchedulerStopped, uint32(id))
		}

		if tid, ok := p.nextLocalTask(); ok {
			s.runTask(p, tid)
			continue
		}
		if tid, ok := s.stealFor(p); ok {
			s.runTask(p, tid)
			continue
		}

		p.parkBrief()
	}
}

// parkBrief blocks until this pool is signalled, any completion lands, or a
// short timeout elapses. The timeout bounds the cost of a lost wakeup race
// instead of trying to close it exactly.
func (p *TaskPool) parkBrief() {
	s := p.sched
	timer := time.NewTimer(parkInterval)
	defer timer.Stop()
	select {
	case <-p.signal:
	case <-s.stealSignal:
	case <-s.completionSignal:
	case <-s.ctx.Done():
	case <-timer.C:
	}
}

const parkInterval = time.Millisecond
