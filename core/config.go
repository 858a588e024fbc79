package core

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	yaml "github.com/goccy/go-yaml"
)

// Built-in pool type ids. User-defined pool types start at PoolTypeUser.
const (
	PoolTypeMain = iota
	PoolTypeCPUWorker
	PoolTypeAsyncWorker
	PoolTypeUser = 8
)

// WorkerKind distinguishes the two managed worker flavors.
type WorkerKind uint8

const (
	WorkerKindCPU WorkerKind = iota
	WorkerKindAsyncIO
)

func (k WorkerKind) String() string {
	if k == WorkerKindAsyncIO {
		return "async"
	}
	return "cpu"
}

// WorkerInfo describes a managed worker to its init callback.
type WorkerInfo struct {
	Index       int
	Kind        WorkerKind
	Pool        *TaskPool
	WorkerCount int
}

// WorkerInitFunc runs once on each worker goroutine before it enters its
// loop. The returned value becomes TaskContext.WorkerContext for every task
// the worker executes. A non-nil error aborts construction of the whole
// scheduler.
type WorkerInitFunc func(info WorkerInfo) (any, error)

// PoolTypeConfig declares a user-defined pool type: pools that are not
// bound to managed workers and must be acquired with AcquirePool.
type PoolTypeConfig struct {
	TypeID       int
	Name         string
	Count        int
	SlotCount    int
	Capabilities Capability
}

// Config holds scheduler construction options. Zero values fall back to the
// defaults applied by normalize; DefaultConfig returns them explicitly.
type Config struct {
	// CPUWorkers and AsyncWorkers size the managed worker set. Each
	// worker is bound 1:1 to its own task pool.
	CPUWorkers   int
	AsyncWorkers int

	// MaxAsyncRequests caps concurrently outstanding async I/O requests
	// admitted through AcquireAsyncRequest.
	MaxAsyncRequests int

	// WorkerSlots and MainSlots fix the per-pool task slot capacity.
	// Pools never grow; exhaustion surfaces as ErrOutOfSlots.
	WorkerSlots int
	MainSlots   int

	// PoolTypes adds user-defined pool types on top of the built-ins.
	PoolTypes []PoolTypeConfig

	// WorkerInit optionally initializes per-worker state.
	WorkerInit WorkerInitFunc

	// HistoryCapacity sizes the recent-execution ring. Zero keeps the
	// default, negative disables history.
	HistoryCapacity int

	Logger       Logger
	Metrics      Metrics
	PanicHandler PanicHandler

	// NewRandomSource overrides victim-selection randomness, mainly for
	// deterministic tests.
	NewRandomSource NewRandomSourceFunc

	// Arena overrides the backing storage allocator for slot argument
	// buffers. Defaults to a FixedArena sized from the pool layout.
	Arena Arena
}

const (
	defaultWorkerSlots      = 1024
	defaultMainSlots        = 4096
	defaultAsyncWorkers     = 2
	defaultMaxAsyncRequests = 64
)

// DefaultConfig returns the configuration used when fields are left zero:
// one CPU worker per logical CPU, two async workers, and the default slot
// capacities.
func DefaultConfig() Config {
	return Config{
		CPUWorkers:       runtime.NumCPU(),
		AsyncWorkers:     defaultAsyncWorkers,
		MaxAsyncRequests: defaultMaxAsyncRequests,
		WorkerSlots:      defaultWorkerSlots,
		MainSlots:        defaultMainSlots,
	}
}

// normalize applies defaults and sanity clamps in place.
func (c *Config) normalize() {
	if c.CPUWorkers <= 0 {
		c.CPUWorkers = runtime.NumCPU()
	}
	if c.AsyncWorkers < 0 {
		c.AsyncWorkers = 0
	}
	if c.MaxAsyncRequests <= 0 {
		c.MaxAsyncRequests = defaultMaxAsyncRequests
	}
	if c.WorkerSlots <= 0 {
		c.WorkerSlots = defaultWorkerSlots
	}
	if c.WorkerSlots > MaxSlotsPerPool {
		c.WorkerSlots = MaxSlotsPerPool
	}
	if c.MainSlots <= 0 {
		c.MainSlots = defaultMainSlots
	}
	if c.MainSlots > MaxSlotsPerPool {
		c.MainSlots = MaxSlotsPerPool
	}
	if c.Logger == nil {
		c.Logger = NewNoOpLogger()
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	if c.PanicHandler == nil {
		c.PanicHandler = &DefaultPanicHandler{}
	}
	if c.NewRandomSource == nil {
		c.NewRandomSource = defaultRandomSource
	}
	if c.HistoryCapacity == 0 {
		c.HistoryCapacity = defaultHistoryCapacity
	}
	for i := range c.PoolTypes {
		pt := &c.PoolTypes[i]
		if pt.Count <= 0 {
			pt.Count = 1
		}
		if pt.SlotCount <= 0 {
			pt.SlotCount = defaultWorkerSlots
		}
		if pt.SlotCount > MaxSlotsPerPool {
			pt.SlotCount = MaxSlotsPerPool
		}
		if pt.Capabilities == 0 {
			pt.Capabilities = CapAll
		}
		if pt.Name == "" {
			pt.Name = fmt.Sprintf("user-%d", pt.TypeID)
		}
	}
}

// poolCount returns the total number of pools the config describes.
func (c *Config) poolCount() int {
	n := 1 + c.CPUWorkers + c.AsyncWorkers
	for _, pt := range c.PoolTypes {
		n += pt.Count
	}
	return n
}

// =============================================================================
// YAML loading
// =============================================================================

// yamlConfig mirrors the on-disk layout; capabilities are spelled as string
// lists there and converted on load.
type yamlConfig struct {
	CPUWorkers       int `yaml:"cpu_workers"`
	AsyncWorkers     int `yaml:"async_workers"`
	MaxAsyncRequests int `yaml:"max_async_requests"`
	WorkerSlots      int `yaml:"worker_slots"`
	MainSlots        int `yaml:"main_slots"`
	HistoryCapacity  int `yaml:"history_capacity"`

	PoolTypes []struct {
		TypeID       int      `yaml:"type_id"`
		Name         string   `yaml:"name"`
		Count        int      `yaml:"count"`
		Slots        int      `yaml:"slots"`
		Capabilities []string `yaml:"capabilities"`
	} `yaml:"pool_types"`
}

// LoadConfig reads a YAML config file and overlays it on the defaults. An
// empty path returns the defaults; a missing or unreadable file is an
// error, a malformed capability name too.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}

	if yc.CPUWorkers > 0 {
		cfg.CPUWorkers = yc.CPUWorkers
	}
	if yc.AsyncWorkers > 0 {
		cfg.AsyncWorkers = yc.AsyncWorkers
	}
	if yc.MaxAsyncRequests > 0 {
		cfg.MaxAsyncRequests = yc.MaxAsyncRequests
	}
	if yc.WorkerSlots > 0 {
		cfg.WorkerSlots = yc.WorkerSlots
	}
	if yc.MainSlots > 0 {
		cfg.MainSlots = yc.MainSlots
	}
	if yc.HistoryCapacity != 0 {
		cfg.HistoryCapacity = yc.HistoryCapacity
	}

	for _, pt := range yc.PoolTypes {
		caps, err := parseCapabilities(pt.Capabilities)
		if err != nil {
			return cfg, fmt.Errorf("load config: pool type %d: %w", pt.TypeID, err)
		}
		cfg.PoolTypes = append(cfg.PoolTypes, PoolTypeConfig{
			TypeID:       pt.TypeID,
			Name:         pt.Name,
			Count:        pt.Count,
			SlotCount:    pt.Slots,
			Capabilities: caps,
		})
	}

	cfg.normalize()
	return cfg, nil
}

func parseCapabilities(names []string) (Capability, error) {
	var caps Capability
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "create":
			caps |= CapCreate
		case "publish":
			caps |= CapPublish
		case "execute":
			caps |= CapExecute
		case "complete":
			caps |= CapComplete
		case "steal":
			caps |= CapSteal
		case "all":
			caps |= CapAll
		default:
			return 0, fmt.Errorf("unknown capability %q", n)
		}
	}
	return caps, nil
}
