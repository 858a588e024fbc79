package core

import "errors"

// Sentinel errors returned by pool and scheduler operations. Callers match
// them with errors.Is; operations wrap them with contextual detail.
var (
	// ErrOutOfSlots is returned by Create when the pool's fixed slot
	// capacity is exhausted. The pool never grows; callers apply
	// backpressure or retry after completions free slots.
	ErrOutOfSlots = errors.New("task pool out of slots")

	// ErrInvalidTaskID is returned when a handle is malformed, refers to
	// a different pool than required, or its generation no longer matches
	// the slot (the task completed and the slot was recycled).
	ErrInvalidTaskID = errors.New("invalid task id")

	// ErrPublish is returned by Publish when a task cannot be made
	// eligible to run: it was already published, has no entry point, or
	// one of its dependency handles is malformed.
	ErrPublish = errors.New("publish failed")

	// ErrAlreadyPublished marks a re-publish attempt. It is always
	// wrapped in ErrPublish.
	ErrAlreadyPublished = errors.New("task already published")

	// ErrCapabilityViolation is returned when an operation is invoked
	// through a pool that lacks the required capability flag.
	ErrCapabilityViolation = errors.New("pool capability violation")

	// ErrWorkerInit is returned by NewScheduler when a worker's
	// application-supplied init callback fails. It aborts construction
	// of the whole scheduler.
	ErrWorkerInit = errors.New("worker init failed")

	// ErrSchedulerStopped is returned by blocking operations when the
	// scheduler shuts down underneath them.
	ErrSchedulerStopped = errors.New("scheduler stopped")
)
