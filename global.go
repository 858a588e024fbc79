package taskpool

import (
	"sync"
)

// =============================================================================
// Global Scheduler Helper (Singleton)
// =============================================================================

var (
	globalScheduler *Scheduler
	globalMu        sync.Mutex
)

// InitGlobalScheduler initializes the process-wide scheduler. Workers start
// immediately. Calling it again while initialized is a no-op returning nil;
// construction failures (for example a failing worker init callback) are
// returned as-is.
func InitGlobalScheduler(cfg Config) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		return nil // Already initialized
	}

	s, err := NewScheduler(cfg)
	if err != nil {
		return err
	}
	globalScheduler = s
	return nil
}

// GetGlobalScheduler returns the global scheduler instance.
// It panics if InitGlobalScheduler has not been called.
func GetGlobalScheduler() *Scheduler {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler == nil {
		panic("global scheduler not initialized. Call InitGlobalScheduler() first.")
	}
	return globalScheduler
}

// ShutdownGlobalScheduler stops the global scheduler and forgets it, so a
// later InitGlobalScheduler builds a fresh one.
func ShutdownGlobalScheduler() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		globalScheduler.Shutdown()
		globalScheduler = nil
	}
}

// MainPool returns the global scheduler's main pool. This is the
// recommended entry point for posting work from the main goroutine.
func MainPool() *TaskPool {
	return GetGlobalScheduler().MainPool()
}
