package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task entry point panics during execution.
// A panicked Automatic task still completes; the scheduler has no notion of
// a failed task, only completed vs. not yet completed.
//
// Implementations must be safe for concurrent use.
type PanicHandler interface {
	// HandlePanic is called with the panicking task's pool name, the
	// executing worker index (-1 for externally bound pools), the
	// recovered value and the stack trace captured at recovery.
	HandlePanic(ctx context.Context, poolName string, workerIndex int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler prints panic information to stdout.
type DefaultPanicHandler struct{}

func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolName string, workerIndex int, panicInfo any, stackTrace []byte) {
	if workerIndex >= 0 {
		fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
			workerIndex, poolName, panicInfo, stackTrace)
	} else {
		fmt.Printf("[Pool %s] Panic: %v\nStack trace:\n%s",
			poolName, panicInfo, stackTrace)
	}
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics collects scheduler execution metrics. Implementations can forward
// to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods must be safe for concurrent use, non-blocking and fast: they sit
// on the task execution path.
type Metrics interface {
	// RecordTaskDuration records how long a task's entry point ran.
	RecordTaskDuration(poolName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(poolName string, panicInfo any)

	// RecordTaskStolen records one successful steal from victim's ready
	// queue by thief.
	RecordTaskStolen(victim, thief string)

	// RecordTasksReady records tasks newly made ready in poolName's
	// queue, either at publish time or by a completion cascade.
	RecordTasksReady(poolName string, count int)

	// RecordQueueDepth records a ready-queue depth sample; typically
	// driven by a periodic poller rather than the hot path.
	RecordQueueDepth(poolName string, depth int)

	// RecordTaskRejected records a rejected operation (pool exhausted,
	// scheduler shutting down).
	RecordTaskRejected(poolName string, reason string)
}

// NilMetrics is the no-op default.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(poolName string, panicInfo any)             {}
func (m *NilMetrics) RecordTaskStolen(victim, thief string)                      {}
func (m *NilMetrics) RecordTasksReady(poolName string, count int)                {}
func (m *NilMetrics) RecordQueueDepth(poolName string, depth int)                {}
func (m *NilMetrics) RecordTaskRejected(poolName string, reason string)          {}
