package prometheus

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"taskpool/core"
)

type schedulerStub struct {
	stats core.SchedulerStats
}

func (s schedulerStub) Stats() core.SchedulerStats { return s.stats }

func TestSnapshotPoller_CollectsSchedulerStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddScheduler("render", schedulerStub{stats: core.SchedulerStats{
		Workers:        4,
		Executed:       100,
		Stolen:         12,
		Published:      110,
		Completed:      100,
		DelayedPending: 2,
		Pools: []core.PoolStats{{
			Name:      "cpu-0",
			Slots:     1024,
			FreeSlots: 1000,
			Ready:     5,
			Inbox:     1,
		}},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		workers := testutil.ToFloat64(poller.schedWorkers.WithLabelValues("render"))
		ready := testutil.ToFloat64(poller.poolReady.WithLabelValues("render", "cpu-0"))
		return workers == 4 && ready == 5
	})

	if got := testutil.ToFloat64(poller.schedStolen.WithLabelValues("render")); got != 12 {
		t.Fatalf("stolen gauge = %v, want 12", got)
	}
	if got := testutil.ToFloat64(poller.schedDelayed.WithLabelValues("render")); got != 2 {
		t.Fatalf("delayed gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.poolLiveTasks.WithLabelValues("render", "cpu-0")); got != 24 {
		t.Fatalf("live-tasks gauge = %v, want 24", got)
	}
	if got := testutil.ToFloat64(poller.poolFreeSlots.WithLabelValues("render", "cpu-0")); got != 1000 {
		t.Fatalf("free-slots gauge = %v, want 1000", got)
	}
}

func TestSnapshotPoller_LiveScheduler(t *testing.T) {
	s, err := core.NewScheduler(core.Config{CPUWorkers: 1, MainSlots: 8})
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	defer s.Shutdown()

	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	poller.AddScheduler("default", s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		return testutil.ToFloat64(poller.schedWorkers.WithLabelValues("default")) == 1
	})
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
