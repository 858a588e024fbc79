package core

import "context"

// TaskArgsSize is the capacity in bytes of the inline argument buffer that
// accompanies every task slot. The buffer is 16-byte aligned and private to
// the task: the publisher writes it before Publish, only the executing
// worker touches it afterwards.
const TaskArgsSize = 64

const taskArgsAlign = 16

// =============================================================================
// CompletionType: how a task signals that its own body is finished
// =============================================================================

type CompletionType uint8

const (
	// CompletionAutomatic: the worker calls Complete right after the
	// entry point returns. This is the default.
	CompletionAutomatic CompletionType = iota

	// CompletionInternal: the task body calls Complete itself, before or
	// after its entry point returns (for example after sub-tasks it
	// waited on have finished).
	CompletionInternal

	// CompletionExternal: completion is signalled from outside the task
	// graph, typically an I/O callback. External tasks are never pushed
	// onto a ready queue; they exist only as completion placeholders for
	// dependency edges.
	CompletionExternal
)

func (t CompletionType) String() string {
	switch t {
	case CompletionAutomatic:
		return "automatic"
	case CompletionInternal:
		return "internal"
	case CompletionExternal:
		return "external"
	default:
		return "unknown"
	}
}

// =============================================================================
// Capability: per-pool operation flags
// =============================================================================

// Capability flags declare which operations may legally be invoked through a
// pool. Creation is exclusive to the pool's owner goroutine; Complete may be
// exercised from any pool carrying the flag, since completions race across
// workers by design.
type Capability uint8

const (
	CapCreate Capability = 1 << iota
	CapPublish
	CapExecute
	CapComplete
	CapSteal
)

// CapAll is the full capability set carried by worker pools and the main
// pool. Workers need Create and Publish because executing a task may spawn
// child tasks into the worker's own pool.
const CapAll = CapCreate | CapPublish | CapExecute | CapComplete | CapSteal

// Has reports whether every flag in want is present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	names := []struct {
		flag Capability
		name string
	}{
		{CapCreate, "create"},
		{CapPublish, "publish"},
		{CapExecute, "execute"},
		{CapComplete, "complete"},
		{CapSteal, "steal"},
	}
	out := ""
	for _, n := range names {
		if c.Has(n.flag) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	return out
}

// =============================================================================
// Task: the caller-visible task record
// =============================================================================

// EntryPoint is the callable a task executes. Status flows back through
// completion and the argument buffer, not a return value.
type EntryPoint func(tc *TaskContext)

// Task is the record a caller fills in between Create and Publish via
// GetData. The engine reads it at Publish time and never lets the caller
// mutate it afterwards.
type Task struct {
	// Entry is invoked by the executing worker. Required unless
	// Completion is CompletionExternal.
	Entry EntryPoint

	// Parent, when valid, ties this task's full completion into the
	// parent's lifetime: the parent does not finally complete until
	// every child has.
	Parent TaskID

	// Completion selects the completion contract. Defaults to
	// CompletionAutomatic.
	Completion CompletionType
}

// =============================================================================
// TaskContext: execution context handed to entry points
// =============================================================================

// TaskContext carries everything a running task may need. Pool is the
// executing worker's own pool: use it to create, publish and wait on child
// tasks. ID identifies the running task itself (whose storage may live in a
// different pool when the task was stolen).
type TaskContext struct {
	Ctx       context.Context
	Scheduler *Scheduler
	Pool      *TaskPool
	ID        TaskID

	// Args aliases the task's inline argument buffer.
	Args []byte

	// WorkerIndex is the executing worker's index, or -1 when the task
	// runs on an externally bound pool (for example inside Wait on the
	// main goroutine). WorkerCount is the number of managed workers.
	WorkerIndex int
	WorkerCount int

	// WorkerContext is the opaque value returned by the worker init
	// callback, nil for externally bound pools.
	WorkerContext any
}

// Complete signals completion of the running task. Only meaningful for
// CompletionInternal tasks; Automatic tasks are completed by the worker.
func (tc *TaskContext) Complete() (int, error) {
	return tc.Pool.Complete(tc.ID)
}

// Wait drains and steals work until id has fully completed. See
// TaskPool.Wait.
func (tc *TaskContext) Wait(id TaskID) error {
	return tc.Pool.Wait(id)
}
