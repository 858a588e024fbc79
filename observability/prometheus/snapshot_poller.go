package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"taskpool/core"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// SnapshotPoller periodically exports scheduler Stats() snapshots into
// Prometheus gauges: per-pool queue state plus scheduler-wide counters.
type SnapshotPoller struct {
	interval time.Duration

	schedsMu sync.RWMutex
	scheds   map[string]SchedulerSnapshotProvider

	schedWorkers   *prom.GaugeVec
	schedExecuted  *prom.GaugeVec
	schedStolen    *prom.GaugeVec
	schedPublished *prom.GaugeVec
	schedCompleted *prom.GaugeVec
	schedDelayed   *prom.GaugeVec

	poolReady     *prom.GaugeVec
	poolInbox     *prom.GaugeVec
	poolLiveTasks *prom.GaugeVec
	poolFreeSlots *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	schedWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskpool",
		Name:      "scheduler_workers",
		Help:      "Managed worker count per scheduler.",
	}, []string{"scheduler"})
	schedExecuted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskpool",
		Name:      "scheduler_executed_total",
		Help:      "Executed task count snapshot.",
	}, []string{"scheduler"})
	schedStolen := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskpool",
		Name:      "scheduler_stolen_total",
		Help:      "Stolen task count snapshot.",
	}, []string{"scheduler"})
	schedPublished := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskpool",
		Name:      "scheduler_published_total",
		Help:      "Published task count snapshot.",
	}, []string{"scheduler"})
	schedCompleted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskpool",
		Name:      "scheduler_completed_total",
		Help:      "Fully completed task count snapshot.",
	}, []string{"scheduler"})
	schedDelayed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskpool",
		Name:      "scheduler_delayed_pending",
		Help:      "Tasks currently held by a publish delay.",
	}, []string{"scheduler"})

	poolReady := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskpool",
		Name:      "pool_ready",
		Help:      "Ready tasks in each pool's deque.",
	}, []string{"scheduler", "pool"})
	poolInbox := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskpool",
		Name:      "pool_inbox",
		Help:      "Tasks parked in each pool's remote inbox.",
	}, []string{"scheduler", "pool"})
	poolLiveTasks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskpool",
		Name:      "pool_live_tasks",
		Help:      "Occupied task slots per pool.",
	}, []string{"scheduler", "pool"})
	poolFreeSlots := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskpool",
		Name:      "pool_free_slots",
		Help:      "Free task slots per pool.",
	}, []string{"scheduler", "pool"})

	var err error
	if schedWorkers, err = registerCollector(reg, schedWorkers); err != nil {
		return nil, err
	}
	if schedExecuted, err = registerCollector(reg, schedExecuted); err != nil {
		return nil, err
	}
	if schedStolen, err = registerCollector(reg, schedStolen); err != nil {
		return nil, err
	}
	if schedPublished, err = registerCollector(reg, schedPublished); err != nil {
		return nil, err
	}
	if schedCompleted, err = registerCollector(reg, schedCompleted); err != nil {
		return nil, err
	}
	if schedDelayed, err = registerCollector(reg, schedDelayed); err != nil {
		return nil, err
	}
	if poolReady, err = registerCollector(reg, poolReady); err != nil {
		return nil, err
	}
	if poolInbox, err = registerCollector(reg, poolInbox); err != nil {
		return nil, err
	}
	if poolLiveTasks, err = registerCollector(reg, poolLiveTasks); err != nil {
		return nil, err
	}
	if poolFreeSlots, err = registerCollector(reg, poolFreeSlots); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:       interval,
		scheds:         make(map[string]SchedulerSnapshotProvider),
		schedWorkers:   schedWorkers,
		schedExecuted:  schedExecuted,
		schedStolen:    schedStolen,
		schedPublished: schedPublished,
		schedCompleted: schedCompleted,
		schedDelayed:   schedDelayed,
		poolReady:      poolReady,
		poolInbox:      poolInbox,
		poolLiveTasks:  poolLiveTasks,
		poolFreeSlots:  poolFreeSlots,
	}, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedsMu.Lock()
	p.scheds[name] = provider
	p.schedsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.schedsMu.RLock()
	defer p.schedsMu.RUnlock()

	for name, provider := range p.scheds {
		stats := provider.Stats()
		p.schedWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.schedExecuted.WithLabelValues(name).Set(float64(stats.Executed))
		p.schedStolen.WithLabelValues(name).Set(float64(stats.Stolen))
		p.schedPublished.WithLabelValues(name).Set(float64(stats.Published))
		p.schedCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.schedDelayed.WithLabelValues(name).Set(float64(stats.DelayedPending))

		for _, ps := range stats.Pools {
			pool := normalizeLabel(ps.Name, "pool")
			p.poolReady.WithLabelValues(name, pool).Set(float64(ps.Ready))
			p.poolInbox.WithLabelValues(name, pool).Set(float64(ps.Inbox))
			p.poolLiveTasks.WithLabelValues(name, pool).Set(float64(ps.LiveTasks()))
			p.poolFreeSlots.WithLabelValues(name, pool).Set(float64(ps.FreeSlots))
		}
	}
}
