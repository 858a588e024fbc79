package core

import "fmt"

// worker is one managed goroutine bound 1:1 to a task pool. Its loop pops
// from the pool's own queue, steals when that runs dry, and parks when no
// pool has work.
type worker struct {
	index int
	kind  WorkerKind
	pool  *TaskPool
	sched *Scheduler
}

// run initializes the worker, reports the result on initErrs, waits for the
// start barrier, then enters the work loop.
func (w *worker) run(start <-chan struct{}, initErrs chan<- error) {
	s := w.sched
	defer s.wg.Done()

	if s.cfg.WorkerInit != nil {
		ctxVal, err := s.cfg.WorkerInit(WorkerInfo{
			Index:       w.index,
			Kind:        w.kind,
			Pool:        w.pool,
			WorkerCount: len(s.workers),
		})
		if err != nil {
			initErrs <- &workerInitError{index: w.index, kind: w.kind, err: err}
			<-start
			return
		}
		w.pool.workerCtx = ctxVal
	}
	initErrs <- nil

	select {
	case <-start:
	case <-s.ctx.Done():
		return
	}

	s.logger.Debug("worker running", F("worker", w.index), F("kind", w.kind.String()), F("pool", w.pool.name))

	for {
		if s.ctx.Err() != nil {
			return
		}
		if id, ok := w.pool.nextLocalTask(); ok {
			s.runTask(w.pool, id)
			continue
		}
		if id, ok := s.stealFor(w.pool); ok {
			s.runTask(w.pool, id)
			continue
		}
		w.pool.parkBrief()
	}
}

type workerInitError struct {
	index int
	kind  WorkerKind
	err   error
}

func (e *workerInitError) Error() string {
	return fmt.Sprintf("%s worker %d init: %v", e.kind, e.index, e.err)
}

func (e *workerInitError) Unwrap() error { return e.err }
