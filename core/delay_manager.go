package core

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"
)

// delayedHold is one task held back by PublishAfter until its deadline.
type delayedHold struct {
	runAt time.Time
	id    TaskID
}

func byRunAt(a, b interface{}) int {
	ta, tb := a.(*delayedHold).runAt, b.(*delayedHold).runAt
	switch {
	case ta.Before(tb):
		return -1
	case ta.After(tb):
		return 1
	default:
		return 0
	}
}

// DelayManager releases timer holds taken by PublishAfter. Expiry runs on
// the manager's own goroutine, so released tasks always reach their pool
// through the remote-readiness path, exactly like a dependency completed on
// another worker.
type DelayManager struct {
	sched *Scheduler

	mu sync.Mutex
	pq *binaryheap.Heap

	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newDelayManager(s *Scheduler) *DelayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		sched:  s,
		pq:     binaryheap.NewWith(byRunAt),
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go dm.loop()
	return dm
}

// hold schedules the release of id's timer guard after delay.
func (dm *DelayManager) hold(id TaskID, delay time.Duration) {
	item := &delayedHold{
		runAt: time.Now().Add(delay),
		id:    id,
	}

	dm.mu.Lock()
	dm.pq.Push(item)
	top, _ := dm.pq.Peek()
	isNext := top == interface{}(item)
	dm.mu.Unlock()

	if isNext {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

func (dm *DelayManager) pendingCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.pq.Size()
}

func (dm *DelayManager) stop() {
	dm.cancel()
	<-dm.done
}

func (dm *DelayManager) loop() {
	defer close(dm.done)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		next := dm.nextDeadline()
		if next <= 0 {
			next = 1000 * time.Hour // nothing queued
		}
		timer.Reset(next)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.releaseExpired()
		case <-dm.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// nextDeadline returns the time until the earliest hold, 0 when empty.
func (dm *DelayManager) nextDeadline() time.Duration {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	top, ok := dm.pq.Peek()
	if !ok {
		return 0
	}
	d := time.Until(top.(*delayedHold).runAt)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// releaseExpired pops every hold whose deadline has passed and drops its
// timer guard, enqueueing tasks whose dependency count reaches zero.
func (dm *DelayManager) releaseExpired() {
	now := time.Now()
	var expired []*delayedHold

	dm.mu.Lock()
	for {
		top, ok := dm.pq.Peek()
		if !ok || top.(*delayedHold).runAt.After(now) {
			break
		}
		item, _ := dm.pq.Pop()
		expired = append(expired, item.(*delayedHold))
	}
	dm.mu.Unlock()

	s := dm.sched
	released := 0
	for _, item := range expired {
		slot, tpool, err := s.resolveLive(item.id)
		if err != nil {
			// Deleted or shut down in the meantime.
			continue
		}
		if slot.pendingDeps.Add(-1) == 0 {
			slot.mu.Lock()
			external := slot.def.Completion == CompletionExternal
			slot.mu.Unlock()
			if !external {
				tpool.inbox.push(item.id)
				tpool.wake()
				released++
				s.metrics.RecordTasksReady(tpool.name, 1)
			}
		}
	}
	if released > 0 {
		s.notifyStealable()
	}
}
