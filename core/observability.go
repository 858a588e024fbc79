package core

import "time"

// TaskExecutionRecord captures one completed entry-point invocation.
type TaskExecutionRecord struct {
	ID          TaskID
	Pool        string
	WorkerIndex int
	StartedAt   time.Time
	Duration    time.Duration
	Panicked    bool
}

// PoolStats represents runtime observability state for one task pool.
type PoolStats struct {
	Name      string
	TypeID    int
	Slots     int
	FreeSlots int
	Ready     int // ready-deque depth
	Inbox     int // remote readiness not yet drained by the owner
}

// LiveTasks returns the number of slots currently in use.
func (p PoolStats) LiveTasks() int {
	return p.Slots - p.FreeSlots
}

// SchedulerStats represents runtime observability state for the scheduler.
type SchedulerStats struct {
	Workers        int
	Executed       int64
	Stolen         int64
	Published      int64
	Completed      int64
	DelayedPending int
	Pools          []PoolStats
}
