// Package taskpool provides a slot-based parallel task system with work
// stealing.
//
// Tasks live in fixed-capacity pools and are addressed by small packed
// generational handles (TaskID) instead of pointers. Each pool is bound to
// one owner goroutine; a scheduler runs a set of managed workers, each
// owning its own pool, and idle workers steal ready tasks from other pools
// through lock-free deques.
//
// # Quick Start
//
// Initialize the global scheduler at application startup:
//
//	taskpool.InitGlobalScheduler(taskpool.Config{CPUWorkers: 4})
//	defer taskpool.ShutdownGlobalScheduler()
//
// Create, describe and publish a task from the main pool, then wait on it:
//
//	pool := taskpool.GetGlobalScheduler().MainPool()
//	ids, _ := pool.Create(1)
//	task, args, _ := pool.GetData(ids[0])
//	copy(args, payload) // inline 64-byte argument buffer
//	task.Entry = func(tc *taskpool.TaskContext) {
//		// runs on some worker; spawn children via tc.Pool
//	}
//	pool.Publish(ids, nil)
//	pool.Wait(ids[0])
//
// # Key Concepts
//
// TaskID: a 32-bit handle packing pool index, slot index and a generation
// counter. Handles go observably stale when their slot is recycled, so a
// completed task can never be confused with its slot's next occupant.
//
// Dependencies: Publish takes a list of TaskIDs the new tasks wait on. A
// task becomes ready only when every dependency has fully completed, where
// "fully" includes all of the dependency's children.
//
// Completion: Automatic tasks complete when their entry point returns,
// Internal tasks complete themselves, and External tasks are completed from
// outside the task graph (an I/O callback, for example) and are never
// executed by workers.
//
// Waiting: Wait does not block idly. The waiting goroutine executes ready
// tasks from its own pool and steals from others until the target task has
// completed, so a single worker can join on tasks it must itself execute.
//
// # Example
//
//	import (
//		"taskpool"
//	)
//
//	func main() {
//		taskpool.InitGlobalScheduler(taskpool.Config{CPUWorkers: 4})
//		defer taskpool.ShutdownGlobalScheduler()
//
//		pool := taskpool.GetGlobalScheduler().MainPool()
//		ids, _ := pool.Create(1)
//		task, _, _ := pool.GetData(ids[0])
//		task.Entry = func(tc *taskpool.TaskContext) {
//			// fan out into the worker's own pool here
//		}
//		pool.Publish(ids, nil)
//		pool.Wait(ids[0])
//	}
package taskpool
