package taskpool

import "taskpool/core"

// Re-export commonly used types from the core package for convenience.
// This allows users to import only the taskpool package for most use cases.

// TaskID is the packed generational handle identifying a task slot.
type TaskID = core.TaskID

// Task is the record a caller fills in between Create and Publish.
type Task = core.Task

// TaskContext carries execution state into a running task's entry point.
type TaskContext = core.TaskContext

// EntryPoint is the callable a task executes.
type EntryPoint = core.EntryPoint

// TaskPool is fixed-capacity task storage bound to one owner goroutine.
type TaskPool = core.TaskPool

// Scheduler owns the pools and the managed worker goroutines.
type Scheduler = core.Scheduler

// Config holds scheduler construction options.
type Config = core.Config

// PoolTypeConfig declares a user-defined pool type.
type PoolTypeConfig = core.PoolTypeConfig

// WorkerInfo describes a managed worker to its init callback.
type WorkerInfo = core.WorkerInfo

// WorkerInitFunc runs once on each worker goroutine before its loop.
type WorkerInitFunc = core.WorkerInitFunc

// CompletionType selects a task's completion contract.
type CompletionType = core.CompletionType

// Capability flags declare the operations a pool may perform.
type Capability = core.Capability

// InvalidTaskID is the "no task" sentinel.
const InvalidTaskID = core.InvalidTaskID

// TaskArgsSize is the capacity of each task's inline argument buffer.
const TaskArgsSize = core.TaskArgsSize

// Completion contract constants.
const (
	CompletionAutomatic CompletionType = core.CompletionAutomatic
	CompletionInternal  CompletionType = core.CompletionInternal
	CompletionExternal  CompletionType = core.CompletionExternal
)

// Capability constants.
const (
	CapCreate   Capability = core.CapCreate
	CapPublish  Capability = core.CapPublish
	CapExecute  Capability = core.CapExecute
	CapComplete Capability = core.CapComplete
	CapSteal    Capability = core.CapSteal
	CapAll      Capability = core.CapAll
)

// Pool type constants.
const (
	PoolTypeMain        = core.PoolTypeMain
	PoolTypeCPUWorker   = core.PoolTypeCPUWorker
	PoolTypeAsyncWorker = core.PoolTypeAsyncWorker
	PoolTypeUser        = core.PoolTypeUser
)

// Sentinel errors, matched with errors.Is.
var (
	ErrOutOfSlots          = core.ErrOutOfSlots
	ErrInvalidTaskID       = core.ErrInvalidTaskID
	ErrPublish             = core.ErrPublish
	ErrAlreadyPublished    = core.ErrAlreadyPublished
	ErrCapabilityViolation = core.ErrCapabilityViolation
	ErrWorkerInit          = core.ErrWorkerInit
	ErrSchedulerStopped    = core.ErrSchedulerStopped
)

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return core.DefaultConfig()
}

// LoadConfig reads a YAML config file and overlays it on the defaults.
func LoadConfig(path string) (Config, error) {
	return core.LoadConfig(path)
}

// NewScheduler builds a standalone scheduler. Most applications use the
// global scheduler helpers instead.
func NewScheduler(cfg Config) (*Scheduler, error) {
	return core.NewScheduler(cfg)
}
